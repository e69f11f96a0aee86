// Package cos ("common OS") holds small, dependency-free helpers shared by
// every other package in the module.
package cos

import (
	"fmt"
	"io"
	"strings"
)

// ReadOpenCloser is a reader that can be closed and reopened from the start
// — used for chunk senders that may need to restart a transfer.
type ReadOpenCloser interface {
	io.ReadCloser
	Open() (io.ReadCloser, error)
}

func Close(c io.Closer) {
	if c == nil {
		return
	}
	_ = c.Close()
}

// JoinWords joins words with a single space, matching the wire format of
// the "hello" payload and similar space-delimited control strings.
func JoinWords(words ...string) string { return strings.Join(words, " ") }

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

func ToSizeIEC(size int64, digits int) string {
	switch {
	case size >= GiB:
		return formatDiv(size, GiB, digits) + "GiB"
	case size >= MiB:
		return formatDiv(size, MiB, digits) + "MiB"
	case size >= KiB:
		return formatDiv(size, KiB, digits) + "KiB"
	default:
		return formatDiv(size, 1, digits) + "B"
	}
}

func formatDiv(size int64, unit int64, digits int) string {
	v := float64(size) / float64(unit)
	return fmt.Sprintf("%.*f", digits, v)
}
