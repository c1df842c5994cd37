// Package imageutil provides snapshot and restore helpers for disk images.
//
// A snapshot is the raw image run through an lz4 frame. Freshly formatted
// volumes are almost entirely zeroes, so snapshots of mostly-empty images
// compress to a tiny fraction of the image size.
package imageutil

import (
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4"
)

// Snapshot compresses everything from `image` into `out` and returns the
// number of uncompressed bytes consumed.
func Snapshot(out io.Writer, image io.Reader) (int64, error) {
	zw := lz4.NewWriter(out)
	written, err := io.Copy(zw, image)
	if err != nil {
		zw.Close()
		return written, fmt.Errorf("compressing image: %w", err)
	}
	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("finishing snapshot: %w", err)
	}
	return written, nil
}

// Restore decompresses a snapshot from `snapshot` into `image` and returns
// the number of uncompressed bytes produced.
func Restore(image io.Writer, snapshot io.Reader) (int64, error) {
	zr := lz4.NewReader(snapshot)
	written, err := io.Copy(image, zr)
	if err != nil {
		return written, fmt.Errorf("decompressing snapshot: %w", err)
	}
	return written, nil
}

// SnapshotFile writes a compressed snapshot of the image at `imagePath` to
// `outPath`, replacing any existing file there.
func SnapshotFile(imagePath, outPath string) error {
	image, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer image.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := Snapshot(out, image); err != nil {
		return err
	}
	return out.Sync()
}

// RestoreFile recreates a disk image at `imagePath` from the snapshot at
// `snapshotPath`.
func RestoreFile(snapshotPath, imagePath string) error {
	snapshot, err := os.Open(snapshotPath)
	if err != nil {
		return err
	}
	defer snapshot.Close()

	image, err := os.Create(imagePath)
	if err != nil {
		return err
	}
	defer image.Close()

	if _, err := Restore(image, snapshot); err != nil {
		return err
	}
	return image.Sync()
}
