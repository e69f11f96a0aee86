package clustersync

import (
	"bytes"
	"sort"

	"github.com/clusterd/clusterd/integrity"
)

// MergeExtraValid implements the extra-valid loop's merge step:
// concatenate the listed per-agent-group files into one file of
// type "agent-groups", each section separated by a newline and sorted
// by relpath for a deterministic merge result across retries.
func MergeExtraValid(records []integrity.FileRecord, bodies map[string][]byte) []byte {
	sorted := make([]integrity.FileRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	var out bytes.Buffer
	for i, r := range sorted {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.Write(bodies[r.RelPath])
	}
	return out.Bytes()
}
