package clustersync

import (
	"github.com/lufia/iostat"

	"github.com/clusterd/clusterd/cmn/nlog"
)

// logDiskSample reports local disk I/O counters around a large
// atomic-apply write, in the style of dstat-style counters logged
// alongside long-running disk operations. Sampling is best-effort: some
// platforms lufia/iostat supports return an empty list rather than an
// error, and that is not worth failing a sync cycle over.
func logDiskSample(label string) {
	drives, err := iostat.ReadDriveStats()
	if err != nil {
		nlog.Warningf("clustersync: %s: disk sample unavailable: %v", label, err)
		return
	}
	for _, d := range drives {
		nlog.Infof("clustersync: %s: drive=%s read=%d write=%d", label, d.Name, d.BytesRead, d.BytesWritten)
	}
}
