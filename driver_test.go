package flatfs

import (
	"encoding/binary"
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dperrone/flatfs/blockdev"
)

// newTestVolume formats an in-memory image and returns its device and
// backing storage.
func newTestVolume(t *testing.T, geo Geometry) (*blockdev.Device, []byte) {
	t.Helper()
	storage := make([]byte, geo.SizeBytes())
	dev, err := blockdev.WrapSlice(storage, geo.BlockSize)
	require.NoError(t, err)
	require.NoError(t, FormatDevice(dev, geo, FormatOptions{}))
	return dev, storage
}

// rawInodeBytes serializes one inode record the way the table stores it.
func rawInodeBytes(t *testing.T, raw RawInode) []byte {
	t.Helper()
	buf := make([]byte, InodeSize)
	writer := bytewriter.New(buf)
	require.NoError(t, binary.Write(writer, binary.LittleEndian, &raw))
	return buf
}

// newTestFS formats and mounts an in-memory volume.
func newTestFS(t *testing.T, geo Geometry) *FileSystem {
	t.Helper()
	dev, _ := newTestVolume(t, geo)
	fs, err := MountDevice(dev, geo)
	require.NoError(t, err)
	return fs
}

func TestMountFreshlyFormattedVolume(t *testing.T) {
	geo := tinyGeometry()
	fs := newTestFS(t, geo)

	stat, err := fs.FSStat()
	require.NoError(t, err)
	assert.EqualValues(t, geo.TotalBlocks, stat.TotalBlocks)
	assert.EqualValues(t, geo.DataBlocks(), stat.BlocksFree)
	assert.EqualValues(t, 0, stat.Files)
	assert.EqualValues(t, geo.MaxFiles, stat.FilesFree)
	assert.EqualValues(t, MaxFilenameLength, stat.MaxNameLength)
}

func TestMountRejectsUnformattedImage(t *testing.T) {
	geo := tinyGeometry()
	storage := make([]byte, geo.SizeBytes())
	dev, err := blockdev.WrapSlice(storage, geo.BlockSize)
	require.NoError(t, err)

	_, err = MountDevice(dev, geo)
	assert.ErrorIs(t, err, ErrInvalidFileSystem)
}

func TestMountRejectsMismatchedGeometry(t *testing.T) {
	// Format with one geometry, mount expecting another of the same image
	// size. The superblock's constants give it away.
	formatted := Geometry{BlockSize: 512, TotalBlocks: 32, MaxFiles: 8}
	expected := Geometry{BlockSize: 512, TotalBlocks: 32, MaxFiles: 16}

	dev, _ := newTestVolume(t, formatted)
	_, err := MountDevice(dev, expected)
	assert.ErrorIs(t, err, ErrFileSystemCorrupted)
}

func TestMountRejectsClearedReservedBit(t *testing.T) {
	geo := tinyGeometry()
	dev, storage := newTestVolume(t, geo)

	// Clear the superblock's own allocation bit in the bitmap.
	storage[geo.BlockSize] &^= 0x01

	_, err := MountDevice(dev, geo)
	assert.ErrorIs(t, err, ErrFileSystemCorrupted)
}

func TestMountRejectsInodeWithImpossibleSize(t *testing.T) {
	geo := tinyGeometry()
	dev, storage := newTestVolume(t, geo)

	fs, err := MountDevice(dev, geo)
	require.NoError(t, err)
	require.NoError(t, fs.Create("victim"))
	require.NoError(t, fs.Unmount())

	// Inflate the stored size beyond what direct blocks can address.
	slot, found := fs.findInode("victim")
	require.True(t, found)
	inode := fs.inodes[slot]
	inode.Size = geo.MaxFileSize() + 1
	raw := InodeToRawInode(inode)
	offset := geo.InodeTableStart()*geo.BlockSize + uint(slot)*InodeSize
	copy(storage[offset:], rawInodeBytes(t, raw))

	_, err = MountDevice(dev, geo)
	assert.ErrorIs(t, err, ErrFileSystemCorrupted)
}

func TestMountReportsEveryFaultAtOnce(t *testing.T) {
	geo := tinyGeometry()
	dev, storage := newTestVolume(t, geo)

	// Break two independent things: a reserved bit and the inode count.
	storage[geo.BlockSize] &^= 0x02
	wrong := Geometry{BlockSize: geo.BlockSize, TotalBlocks: geo.TotalBlocks, MaxFiles: 16}

	_, err := MountDevice(dev, wrong)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved block")
	assert.Contains(t, err.Error(), "inodes")
}

func TestOperationsAfterUnmountAreRefused(t *testing.T) {
	fs := newTestFS(t, tinyGeometry())
	require.NoError(t, fs.Create("a"))
	require.NoError(t, fs.Unmount())

	assert.ErrorIs(t, fs.Create("b"), ErrNotMounted)
	assert.ErrorIs(t, fs.Delete("a"), ErrNotMounted)
	assert.ErrorIs(t, fs.Write("a", []byte("x")), ErrNotMounted)
	_, err := fs.Read("a", make([]byte, 8))
	assert.ErrorIs(t, err, ErrNotMounted)
	_, err = fs.List(1)
	assert.ErrorIs(t, err, ErrNotMounted)
	_, err = fs.FreeBlockCount()
	assert.ErrorIs(t, err, ErrNotMounted)
	_, err = fs.FSStat()
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestFreeBlockCountTracksWrites(t *testing.T) {
	geo := tinyGeometry()
	fs := newTestFS(t, geo)

	free, err := fs.FreeBlockCount()
	require.NoError(t, err)
	require.EqualValues(t, geo.DataBlocks(), free)

	require.NoError(t, fs.Create("f"))
	require.NoError(t, fs.Write("f", make([]byte, geo.BlockSize*3)))

	free, err = fs.FreeBlockCount()
	require.NoError(t, err)
	assert.EqualValues(t, geo.DataBlocks()-3, free)
}
