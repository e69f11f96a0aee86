// Package integrity implements the filesystem scanner and cross-node diff
// classifier used by the sync engine.
package integrity

import (
	"time"

	"github.com/clusterd/clusterd/manifest"
	"github.com/clusterd/clusterd/transport"
)

// FileRecord is one scanned file's descriptor.
type FileRecord struct {
	RelPath        string             `json:"relpath"`
	Digest         transport.Digest128 `json:"digest"`
	MTime          time.Time          `json:"mtime"`
	Size           int64              `json:"size"`
	ClusterItemKey string             `json:"cluster_item_key"`
	WriteMode      manifest.WriteMode `json:"write_mode"`
}
