// Package testutil provides in-memory disk images for tests.
package testutil

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dperrone/flatfs"
	"github.com/dperrone/flatfs/blockdev"
)

// NewBlankImage returns a zero-filled in-memory image stream sized for the
// given geometry. Writes go to the returned backing slice.
func NewBlankImage(t *testing.T, geo flatfs.Geometry) (io.ReadWriteSeeker, []byte) {
	t.Helper()
	require.NoError(t, geo.Validate(), "geometry is not usable")

	storage := make([]byte, geo.SizeBytes())
	return bytesextra.NewReadWriteSeeker(storage), storage
}

// NewFormattedDevice returns an in-memory device holding a canonical empty
// volume, plus its backing slice for byte-level assertions.
func NewFormattedDevice(t *testing.T, geo flatfs.Geometry) (*blockdev.Device, []byte) {
	t.Helper()

	_, storage := NewBlankImage(t, geo)
	dev, err := blockdev.WrapSlice(storage, geo.BlockSize)
	require.NoError(t, err, "failed to wrap the image")

	err = flatfs.FormatDevice(dev, geo, flatfs.FormatOptions{})
	require.NoError(t, err, "formatting the image failed")
	return dev, storage
}

// MountFormatted formats an in-memory image and mounts it.
func MountFormatted(t *testing.T, geo flatfs.Geometry) *flatfs.FileSystem {
	t.Helper()

	dev, _ := NewFormattedDevice(t, geo)
	fs, err := flatfs.MountDevice(dev, geo)
	require.NoError(t, err, "mounting the formatted image failed")
	return fs
}
