// Package hostfile implements the host file handle the engine performs
// all its I/O through: absolute seek, read, write, and create, layered
// over any io.ReadWriteSeeker.
package hostfile

import (
	"io"
	"os"

	"github.com/mhaas/imgtool/errs"
)

// Handle is the engine's view of the backing storage for one FAT
// partition. All offsets it accepts are relative to the partition's start,
// not the whole image; `base` is added once here so the rest of the engine
// never has to know where in the image its partition begins. Every
// operation seeks before reading or writing, so the stream position is
// never trusted between calls.
type Handle struct {
	stream io.ReadWriteSeeker
	base   int64
	size   int64
}

// Open wraps an existing stream as a Handle whose operations are relative
// to `base` bytes into the stream. `size` is the handle's usable length
// starting at `base`; it is not enforced strictly (callers may read or
// write past it if the underlying stream allows it) but is reported by
// Size for callers that want to bounds-check.
func Open(stream io.ReadWriteSeeker, base, size int64) *Handle {
	return &Handle{stream: stream, base: base, size: size}
}

// OpenFile opens a regular file on the host filesystem and wraps it as a
// Handle. The partition occupies the entire file, starting at byte 0.
func OpenFile(path string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}
	return Open(f, 0, info.Size()), nil
}

// Create truncates or creates a regular host file of exactly `size`
// bytes and wraps it as a Handle.
func Create(path string, size int64) (*Handle, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}
	return Open(f, 0, size), nil
}

// Size reports the handle's usable length in bytes.
func (h *Handle) Size() int64 {
	return h.size
}

// Seek moves the stream pointer to `offset` bytes from the start of this
// handle's region (i.e. partition-relative, not image-relative).
func (h *Handle) Seek(offset int64) error {
	_, err := h.stream.Seek(h.base+offset, io.SeekStart)
	if err != nil {
		return errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}
	return nil
}

// ReadAt seeks to `offset` and reads exactly len(buf) bytes. Short reads
// on an image file are not expected; any short read is treated as an I/O
// error.
func (h *Handle) ReadAt(offset int64, buf []byte) error {
	if err := h.Seek(offset); err != nil {
		return err
	}
	n, err := io.ReadFull(h.stream, buf)
	if err != nil {
		return errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}
	if n != len(buf) {
		return errs.NewDriverErrorWithMessage(errs.KindIO, "short read")
	}
	return nil
}

// WriteAt seeks to `offset` and writes all of `buf`.
func (h *Handle) WriteAt(offset int64, buf []byte) error {
	if err := h.Seek(offset); err != nil {
		return err
	}
	n, err := h.stream.Write(buf)
	if err != nil {
		return errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}
	if n != len(buf) {
		return errs.NewDriverErrorWithMessage(errs.KindIO, "short write")
	}
	return nil
}

// Close releases the underlying stream if it implements io.Closer.
func (h *Handle) Close() error {
	if closer, ok := h.stream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
