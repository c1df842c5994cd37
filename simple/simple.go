// Package simple exposes the engine through a process-wide, single-mount
// surface with small-integer status codes, the shape embedded callers and
// conformance harnesses expect.
//
// Exactly one volume can be mounted at a time. Every call returns a status
// from the table below instead of an error value:
//
//	Format, Mount        0 ok, -1 failure
//	Create               0 ok, -1 exists, -2 no free inode, -3 other
//	Delete               0 ok, -1 not found, -2 other
//	List                 count, -1 failure
//	Write                0 ok, -1 not found, -2 out of space, -3 other
//	Read                 count, -1 not found, -3 other
//	FreeBlockCount       count, -1 not mounted
//
// "Other" covers bad arguments, I/O failures, and calls made while no
// volume is mounted.
//
// Like the engine itself, this package is not safe for concurrent use.
package simple

import (
	"errors"

	"github.com/dperrone/flatfs"
)

const (
	// StatusOK is returned by every mutating call that succeeds.
	StatusOK = 0
	// StatusFailed is the generic failure for Format, Mount, and List.
	StatusFailed = -1
)

// current is the mounted volume, nil otherwise. One global mount is the
// whole point of this package.
var current *flatfs.FileSystem

// Format writes a canonical empty volume with the default geometry to
// `path`. It refuses to run while a volume is mounted.
func Format(path string) int {
	if current != nil {
		return StatusFailed
	}
	if err := flatfs.Format(path, flatfs.DefaultGeometry(), flatfs.FormatOptions{}); err != nil {
		return StatusFailed
	}
	return StatusOK
}

// Mount opens and validates the image at `path`. It fails if a volume is
// already mounted.
func Mount(path string) int {
	if current != nil {
		return StatusFailed
	}
	fs, err := flatfs.Mount(path, flatfs.DefaultGeometry())
	if err != nil {
		return StatusFailed
	}
	current = fs
	return StatusOK
}

// Unmount detaches the current volume. Unmounting when nothing is mounted
// is a no-op.
func Unmount() {
	if current == nil {
		return
	}
	current.Unmount()
	current = nil
}

// Create adds an empty file.
func Create(name string) int {
	if current == nil {
		return -3
	}
	err := current.Create(name)
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, flatfs.ErrExists):
		return -1
	case errors.Is(err, flatfs.ErrNoSpaceOnDevice):
		return -2
	default:
		return -3
	}
}

// Delete removes a file and frees its blocks.
func Delete(name string) int {
	if current == nil {
		return -2
	}
	err := current.Delete(name)
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, flatfs.ErrNotFound):
		return -1
	default:
		return -2
	}
}

// List fills `out` with up to `max` file names and returns how many were
// written. Names are emitted with fixed-width field semantics: longer names
// are truncated to MaxFilenameLength-1 bytes, leaving room for a
// terminator.
func List(out []string, max int) int {
	if current == nil || out == nil || max <= 0 || max > len(out) {
		return StatusFailed
	}
	names, err := current.List(max)
	if err != nil {
		return StatusFailed
	}
	for i, name := range names {
		if len(name) > flatfs.MaxFilenameLength-1 {
			name = name[:flatfs.MaxFilenameLength-1]
		}
		out[i] = name
	}
	return len(names)
}

// Write replaces the contents of `name` with `data`. Pass an empty non-nil
// slice to truncate the file to zero bytes.
func Write(name string, data []byte) int {
	if current == nil {
		return -3
	}
	err := current.Write(name, data)
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, flatfs.ErrNotFound):
		return -1
	case errors.Is(err, flatfs.ErrNoSpaceOnDevice), errors.Is(err, flatfs.ErrFileTooLarge):
		return -2
	default:
		return -3
	}
}

// Read copies the contents of `name` into `buf` and returns the number of
// bytes copied, clamped to the file's size.
func Read(name string, buf []byte) int {
	if current == nil {
		return -3
	}
	n, err := current.Read(name, buf)
	switch {
	case err == nil:
		return n
	case errors.Is(err, flatfs.ErrNotFound):
		return -1
	default:
		return -3
	}
}

// FreeBlockCount reports the superblock's free data block counter.
func FreeBlockCount() int {
	if current == nil {
		return StatusFailed
	}
	free, err := current.FreeBlockCount()
	if err != nil {
		return StatusFailed
	}
	return int(free)
}
