package blockdev

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func newDevice(t *testing.T, blocks, blockSize uint) (*Device, []byte) {
	t.Helper()
	storage := make([]byte, blocks*blockSize)
	dev, err := WrapSlice(storage, blockSize)
	require.NoError(t, err)
	return dev, storage
}

func TestNewRejectsEmptyDevices(t *testing.T) {
	stream := bytesextra.NewReadWriteSeeker(make([]byte, 512))
	_, err := New(stream, 0, 1)
	assert.Error(t, err)
	_, err = New(stream, 512, 0)
	assert.Error(t, err)
}

func TestWrapSliceRejectsRaggedStorage(t *testing.T) {
	_, err := WrapSlice(make([]byte, 700), 512)
	assert.Error(t, err)
}

func TestWrapStreamWithInferredSize(t *testing.T) {
	stream := bytesextra.NewReadWriteSeeker(make([]byte, 512*9))
	dev, err := WrapStreamWithInferredSize(stream, 512)
	require.NoError(t, err)
	assert.EqualValues(t, 9, dev.TotalBlocks())
	assert.EqualValues(t, 512, dev.BytesPerBlock())
	assert.EqualValues(t, 512*9, dev.Size())
}

func TestReadWriteRoundTrip(t *testing.T) {
	dev, _ := newDevice(t, 8, 512)

	payload := bytes.Repeat([]byte{0xA5}, 512*2)
	n, err := dev.WriteAt(payload, 3)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	readback := make([]byte, len(payload))
	n, err = dev.ReadAt(readback, 3)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, readback)
}

func TestWritesLandAtAbsoluteOffsets(t *testing.T) {
	dev, storage := newDevice(t, 8, 512)

	_, err := dev.WriteAt([]byte{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, storage[5*512:5*512+3])
}

func TestShortWriteLeavesRestOfBlockAlone(t *testing.T) {
	dev, storage := newDevice(t, 4, 512)
	copy(storage[512:1024], bytes.Repeat([]byte{0xFF}, 512))

	_, err := dev.WriteAt([]byte{7, 7}, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7}, storage[512:514])
	assert.Equal(t, byte(0xFF), storage[514], "bytes past the short write must survive")
}

func TestAccessOutOfRange(t *testing.T) {
	dev, _ := newDevice(t, 4, 512)

	_, err := dev.ReadAt(make([]byte, 512), 4)
	assert.ErrorIs(t, err, ErrOutOfRange)

	// Starts in range but runs off the end.
	_, err = dev.WriteAt(make([]byte, 512*2), 3)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = dev.ReadAt(make([]byte, 512*2+1), 2)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMinBlocksForSize(t *testing.T) {
	dev, _ := newDevice(t, 4, 512)
	assert.EqualValues(t, 0, dev.MinBlocksForSize(0))
	assert.EqualValues(t, 1, dev.MinBlocksForSize(1))
	assert.EqualValues(t, 1, dev.MinBlocksForSize(512))
	assert.EqualValues(t, 2, dev.MinBlocksForSize(513))
}

func TestSyncOnPlainStreamIsANoOp(t *testing.T) {
	dev, _ := newDevice(t, 4, 512)
	assert.NoError(t, dev.Sync())
}
