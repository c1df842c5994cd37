// Package blockdev provides positioned, block-aligned I/O over a disk image.
//
// A Device wraps any io.ReadWriteSeeker and exposes reads and writes
// addressed by logical block. Every access seeks to an absolute offset; no
// file position is shared between calls and nothing is cached, so a
// successful write is on the backing stream when the call returns.
//
// All block indices begin at 0.
package blockdev

import (
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/bytesextra"
)

type LogicalBlock uint

// ErrOutOfRange is wrapped by every error caused by an access outside the
// device's block range.
var ErrOutOfRange = errors.New("access out of range")

// Syncer is implemented by streams that can flush to stable storage, such as
// [os.File].
type Syncer interface {
	Sync() error
}

type Device struct {
	stream        io.ReadWriteSeeker
	bytesPerBlock uint
	totalBlocks   uint
}

// New creates a Device over `stream`, which must be at least
// bytesPerBlock*totalBlocks bytes long for reads to succeed.
func New(stream io.ReadWriteSeeker, bytesPerBlock, totalBlocks uint) (*Device, error) {
	if bytesPerBlock == 0 || totalBlocks == 0 {
		return nil, fmt.Errorf(
			"device can't be empty: got %d blocks of %d bytes",
			totalBlocks,
			bytesPerBlock,
		)
	}
	return &Device{
		stream:        stream,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}, nil
}

// WrapSlice creates a Device backed by an in-memory byte slice. The slice
// length must be a multiple of bytesPerBlock.
func WrapSlice(storage []byte, bytesPerBlock uint) (*Device, error) {
	if uint(len(storage))%bytesPerBlock != 0 {
		return nil, fmt.Errorf(
			"storage size %d is not a multiple of the block size %d",
			len(storage),
			bytesPerBlock,
		)
	}
	stream := bytesextra.NewReadWriteSeeker(storage)
	return New(stream, bytesPerBlock, uint(len(storage))/bytesPerBlock)
}

// WrapStreamWithInferredSize creates a Device whose block count is derived
// from the current size of the stream, rounded down to a whole block.
func WrapStreamWithInferredSize(stream io.ReadWriteSeeker, bytesPerBlock uint) (*Device, error) {
	eofOffset, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return New(stream, bytesPerBlock, uint(eofOffset)/bytesPerBlock)
}

// BytesPerBlock returns the size of a single block, in bytes.
func (dev *Device) BytesPerBlock() uint {
	return dev.bytesPerBlock
}

// TotalBlocks returns the size of the device, in blocks.
func (dev *Device) TotalBlocks() uint {
	return dev.totalBlocks
}

// Size gives the size of the device, in bytes (not blocks!).
func (dev *Device) Size() int64 {
	return int64(dev.bytesPerBlock) * int64(dev.totalBlocks)
}

// MinBlocksForSize gives the minimum number of blocks required to hold the
// given number of bytes.
func (dev *Device) MinBlocksForSize(size uint) uint {
	return (size + dev.bytesPerBlock - 1) / dev.bytesPerBlock
}

// CheckBounds verifies that `bufferSize` bytes can be accessed on the device
// starting at block `start`. If not, it returns an error describing the exact
// conditions, wrapping ErrOutOfRange.
func (dev *Device) CheckBounds(start LogicalBlock, bufferSize uint) error {
	if uint(start) >= dev.totalBlocks {
		return fmt.Errorf(
			"%w: block %d not in range [0, %d)", ErrOutOfRange, start, dev.totalBlocks)
	}
	numBlocks := dev.MinBlocksForSize(bufferSize)
	if uint(start)+numBlocks > dev.totalBlocks {
		return fmt.Errorf(
			"%w: can't access %d bytes (%d blocks) starting at block %d; requested"+
				" range not in [0, %d)",
			ErrOutOfRange,
			bufferSize,
			numBlocks,
			start,
			dev.totalBlocks,
		)
	}
	return nil
}

// seekToBlock sets the stream position to the first byte of `block`.
func (dev *Device) seekToBlock(block LogicalBlock) error {
	offset := int64(block) * int64(dev.bytesPerBlock)
	_, err := dev.stream.Seek(offset, io.SeekStart)
	return err
}

// ReadAt fills `buffer` with data beginning at the first byte of block
// `start`. The buffer does not need to be an exact multiple of the size of
// one block.
//
// Attempting to read past the end of the device results in an error, and
// `buffer` is left unmodified.
func (dev *Device) ReadAt(buffer []byte, start LogicalBlock) (int, error) {
	if err := dev.CheckBounds(start, uint(len(buffer))); err != nil {
		return 0, err
	}
	if len(buffer) == 0 {
		return 0, nil
	}
	if err := dev.seekToBlock(start); err != nil {
		return 0, err
	}
	return io.ReadFull(dev.stream, buffer)
}

// WriteAt copies `buffer` onto the device beginning at the first byte of
// block `start`. The buffer does not need to be an exact multiple of the
// size of one block; a short buffer leaves the rest of the last block
// untouched.
//
// Attempting to write past the end of the device results in an error, and
// the device is left unmodified.
func (dev *Device) WriteAt(buffer []byte, start LogicalBlock) (int, error) {
	if err := dev.CheckBounds(start, uint(len(buffer))); err != nil {
		return 0, err
	}
	if len(buffer) == 0 {
		return 0, nil
	}
	if err := dev.seekToBlock(start); err != nil {
		return 0, err
	}
	return dev.stream.Write(buffer)
}

// Sync flushes the backing stream if it supports flushing, and is a no-op
// otherwise.
func (dev *Device) Sync() error {
	if syncer, ok := dev.stream.(Syncer); ok {
		return syncer.Sync()
	}
	return nil
}
