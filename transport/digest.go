package transport

import (
	"encoding/binary"
	"hash"

	"github.com/OneOfOne/xxhash"
)

// Digest128 is the spec's "128-bit content hash": two independent 64-bit
// xxhash streams (different seeds) concatenated. xxhash has no native
// 128-bit variant in the vendored version, so this combines two seeded
// instances rather than reaching for a different hash family.
type Digest128 [16]byte

type digestWriter struct {
	h1, h2 hash.Hash64
}

func newDigestWriter() *digestWriter {
	return &digestWriter{h1: xxhash.NewS64(0), h2: xxhash.NewS64(1)}
}

func (d *digestWriter) Write(p []byte) (int, error) {
	d.h1.Write(p) //nolint:errcheck // xxhash.Write never errors
	d.h2.Write(p) //nolint:errcheck
	return len(p), nil
}

func (d *digestWriter) Sum() Digest128 {
	var out Digest128
	binary.BigEndian.PutUint64(out[0:8], d.h1.Sum64())
	binary.BigEndian.PutUint64(out[8:16], d.h2.Sum64())
	return out
}

// DigestBytes is exported for the integrity scanner, which needs the same
// 128-bit digest over on-disk files.
func DigestBytes(b []byte) Digest128 {
	w := newDigestWriter()
	_, _ = w.Write(b)
	return w.Sum()
}
