package integrity

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
	"github.com/clusterd/clusterd/manifest"
	"github.com/clusterd/clusterd/transport"
)

// alreadySyncedGrace is the "already synchronized" window: on a worker, a
// file whose mtime is older than this is assumed not to have changed since
// the last successful sync and can skip re-digesting.
const alreadySyncedGrace = 30 * time.Minute

// Scanner walks the directories named by a manifest and produces the
// file records a sync cycle diffs against the peer's.
type Scanner struct {
	Root     string
	Man      *manifest.Manifest
	NodeType cmn.NodeType

	// synced is an approximate membership cache of relpaths the scanner
	// has already found past the grace window with an unchanged mtime,
	// so repeat cycles can skip the stat+digest pair for cold files
	// without growing an exact set that never shrinks.
	synced *cuckoo.Filter

	// cache remembers the mtime+digest last observed for a path admitted
	// into synced, so a later mtime change still forces a re-digest
	// despite the filter's "maybe-present" answer, and so a skipped
	// cycle can still report a correct digest.
	cache map[string]cachedRecord
}

type cachedRecord struct {
	mtime  time.Time
	digest transport.Digest128
}

func NewScanner(root string, man *manifest.Manifest, nodeType cmn.NodeType) *Scanner {
	return &Scanner{
		Root:       root,
		Man:        man,
		NodeType:   nodeType,
		synced: cuckoo.NewFilter(1 << 16),
		cache:  make(map[string]cachedRecord),
	}
}

// Scan walks every manifest entry whose source applies to this node,
// expands the directory (recursively or not), skips excluded_files, and
// builds a FileRecord per remaining file.
func (s *Scanner) Scan() ([]FileRecord, error) {
	var records []FileRecord
	now := time.Now()

	for key, entry := range s.Man.Items {
		if !entry.AppliesTo(s.NodeType) {
			continue
		}
		dir := filepath.Join(s.Root, key)
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to stat %s", dir)
		}
		if !info.IsDir() {
			rec, ok, err := s.record(dir, key, entry, now)
			if err != nil {
				return nil, err
			}
			if ok {
				records = append(records, rec)
			}
			continue
		}

		walkErr := godirwalk.Walk(dir, &godirwalk.Options{
			Unsorted: true,
			Callback: func(path string, de *godirwalk.Dirent) error {
				if de.IsDir() {
					if !entry.Recursive && path != dir {
						return filepath.SkipDir
					}
					return nil
				}
				base := filepath.Base(path)
				if s.Man.Excluded(base) {
					return nil
				}
				if !entry.AllFiles() && !containsName(entry.Files, base) {
					return nil
				}
				rec, ok, ferr := s.record(path, key, entry, now)
				if ferr != nil {
					nlog.Warningf("integrity: skipping %s: %v", path, ferr)
					return nil
				}
				if ok {
					records = append(records, rec)
				}
				return nil
			},
		})
		if walkErr != nil {
			return nil, errors.Wrapf(walkErr, "failed to walk %s", dir)
		}
	}
	return records, nil
}

func containsName(files []string, name string) bool {
	for _, f := range files {
		if f == name {
			return true
		}
	}
	return false
}

func (s *Scanner) record(path, key string, entry manifest.Entry, now time.Time) (FileRecord, bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileRecord{}, false, nil
		}
		return FileRecord{}, false, err
	}
	if !info.Mode().IsRegular() {
		return FileRecord{}, false, nil
	}

	relpath := strings.TrimPrefix(path, s.Root+string(filepath.Separator))
	mtime := info.ModTime()

	if s.NodeType == cmn.Worker && now.Sub(mtime) > alreadySyncedGrace {
		if c, ok := s.cache[relpath]; ok && c.mtime.Equal(mtime) && s.synced.Lookup([]byte(relpath)) {
			return FileRecord{RelPath: relpath, Digest: c.digest, MTime: mtime, Size: info.Size(), ClusterItemKey: key, WriteMode: entry.WriteMode}, true, nil
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return FileRecord{}, false, err
	}
	digest := transport.DigestBytes(b)

	if s.NodeType == cmn.Worker && now.Sub(mtime) > alreadySyncedGrace {
		s.synced.InsertUnique([]byte(relpath))
		s.cache[relpath] = cachedRecord{mtime: mtime, digest: digest}
	}

	return FileRecord{
		RelPath:        relpath,
		Digest:         digest,
		MTime:          mtime,
		Size:           info.Size(),
		ClusterItemKey: key,
		WriteMode:      entry.WriteMode,
	}, true, nil
}
