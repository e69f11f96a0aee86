package clustersync

import (
	"bytes"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"

	"github.com/clusterd/clusterd/integrity"
)

// bundleEntry is one file's slot in the archive index.
type bundleEntry struct {
	Record integrity.FileRecord `json:"record"`
	Offset int64                `json:"offset"`
	Size   int64                `json:"size"`
}

// bundleHeader is the single JSON index at the front of a bundle,
// followed by the concatenation of file bodies; index and bodies share
// one lz4 stream.
type bundleHeader struct {
	Entries []bundleEntry `json:"entries"`
}

// WriteBundle serializes records (metadata-only when bodies is nil, as the
// integrity loop does) into a single lz4-compressed archive: a length-
// prefixed JSON index, then each file's raw bytes back to back.
func WriteBundle(w io.Writer, records []integrity.FileRecord, bodies map[string][]byte) error {
	hdr := bundleHeader{Entries: make([]bundleEntry, 0, len(records))}
	var blob bytes.Buffer
	var offset int64
	for _, r := range records {
		b := bodies[r.RelPath]
		hdr.Entries = append(hdr.Entries, bundleEntry{Record: r, Offset: offset, Size: int64(len(b))})
		blob.Write(b)
		offset += int64(len(b))
	}

	idx, err := jsoniter.Marshal(hdr)
	if err != nil {
		return errors.Wrap(err, "failed to marshal bundle index")
	}

	zw := lz4.NewWriter(w)
	defer zw.Close()

	var lenBuf [8]byte
	putUint64(lenBuf[:], uint64(len(idx)))
	if _, err := zw.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "failed to write bundle index length")
	}
	if _, err := zw.Write(idx); err != nil {
		return errors.Wrap(err, "failed to write bundle index")
	}
	if _, err := zw.Write(blob.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write bundle body")
	}
	return zw.Flush()
}

// ReadBundle is the inverse of WriteBundle.
func ReadBundle(r io.Reader) ([]integrity.FileRecord, map[string][]byte, error) {
	zr := lz4.NewReader(r)

	var lenBuf [8]byte
	if _, err := io.ReadFull(zr, lenBuf[:]); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read bundle index length")
	}
	idxLen := getUint64(lenBuf[:])

	idx := make([]byte, idxLen)
	if _, err := io.ReadFull(zr, idx); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read bundle index")
	}
	var hdr bundleHeader
	if err := jsoniter.Unmarshal(idx, &hdr); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse bundle index")
	}

	blob, err := io.ReadAll(zr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read bundle body")
	}

	records := make([]integrity.FileRecord, 0, len(hdr.Entries))
	bodies := make(map[string][]byte, len(hdr.Entries))
	for _, e := range hdr.Entries {
		records = append(records, e.Record)
		if e.Size > 0 {
			if e.Offset+e.Size > int64(len(blob)) {
				return nil, nil, errors.Errorf("bundle entry %q out of bounds", e.Record.RelPath)
			}
			bodies[e.Record.RelPath] = blob[e.Offset : e.Offset+e.Size]
		}
	}
	return records, bodies, nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
