// Package manifest models the cluster-items manifest: a static mapping
// from directory key to how that directory's files are scanned and
// applied.
package manifest

import (
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/clusterd/clusterd/cmn"
)

type WriteMode string

const (
	Atomic WriteMode = "atomic"
	Inline WriteMode = "inline"
)

type Source string

const (
	SourceMaster Source = "master"
	SourceWorker Source = "worker"
	SourceAll    Source = "all"
)

// Entry is one cluster-items manifest entry.
type Entry struct {
	Recursive            bool      `json:"recursive"`
	Files                []string  `json:"files"` // ["all"] or explicit names
	Source               Source    `json:"source"`
	Umask                string    `json:"umask"` // octal, e.g. "0640"
	WriteMode             WriteMode `json:"write_mode"`
	RemoveSubdirsIfEmpty  bool      `json:"remove_subdirs_if_empty"`
}

func (e Entry) AllFiles() bool {
	return len(e.Files) == 1 && e.Files[0] == "all"
}

// AppliesTo reports whether this node (by type) should scan this entry:
// source must equal either the node's own type or "all".
func (e Entry) AppliesTo(nodeType cmn.NodeType) bool {
	return e.Source == SourceAll || string(e.Source) == string(nodeType)
}

func (e Entry) UmaskValue() (os.FileMode, error) {
	if e.Umask == "" {
		return 0o644, nil
	}
	v, err := strconv.ParseUint(e.Umask, 8, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid umask %q", e.Umask)
	}
	return os.FileMode(v), nil
}

// Manifest is the full static document: directory key -> Entry, plus the
// flat excluded_files set.
type Manifest struct {
	Items         map[string]Entry `json:"items"`
	ExcludedFiles []string         `json:"excluded_files"`
}

func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}
	var m Manifest
	if err := jsoniter.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", path)
	}
	return &m, nil
}

// Excluded reports whether basename should be skipped during a scan:
// either it is listed in excluded_files, or it ends with "~" (see
// DESIGN.md Open Question #2).
func (m *Manifest) Excluded(basename string) bool {
	if strings.HasSuffix(basename, "~") {
		return true
	}
	for _, f := range m.ExcludedFiles {
		if f == basename {
			return true
		}
	}
	return false
}

// Owner returns the declared Source for cluster-item key key, defaulting to
// SourceMaster when the key is unknown (conservative: unknown keys are
// treated as master-authoritative rather than silently merged).
func (m *Manifest) Owner(key string) Source {
	if e, ok := m.Items[key]; ok {
		return e.Source
	}
	return SourceMaster
}
