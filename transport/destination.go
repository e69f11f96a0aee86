package transport

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileDestination writes incoming chunk data to a temp file
// ("queue/cluster/<name>/<task-id>.tmp"); Finalize syncs and closes it.
// It never renames the file: moving it to a real target path is left to
// the caller, and this type only owns the temp file itself.
type FileDestination struct {
	tmp  *os.File
	path string
}

func NewFileDestination(queueDir, taskID string) (*FileDestination, error) {
	if err := os.MkdirAll(queueDir, 0o750); err != nil {
		return nil, errors.Wrap(err, "failed to create queue dir")
	}
	path := filepath.Join(queueDir, taskID+".tmp")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp destination")
	}
	return &FileDestination{tmp: f, path: path}, nil
}

func (d *FileDestination) Write(p []byte) (int, error) { return d.tmp.Write(p) }
func (d *FileDestination) Path() string                 { return d.path }

func (d *FileDestination) Finalize() error {
	if err := d.tmp.Sync(); err != nil {
		return err
	}
	return d.tmp.Close()
}

func (d *FileDestination) Abort() {
	_ = d.tmp.Close()
	_ = os.Remove(d.path)
}

// BufferDestination is an in-memory Destination for string transfers
// (e.g. a dapi_res JSON payload too large for one frame).
type BufferDestination struct {
	buf  bytes.Buffer
	name string
}

func NewBufferDestination(name string) *BufferDestination { return &BufferDestination{name: name} }

func (d *BufferDestination) Write(p []byte) (int, error) { return d.buf.Write(p) }
func (d *BufferDestination) Path() string                 { return d.name }
func (d *BufferDestination) Finalize() error               { return nil }
func (d *BufferDestination) Abort()                         { d.buf.Reset() }
func (d *BufferDestination) Bytes() []byte                  { return d.buf.Bytes() }
