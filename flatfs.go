// Package flatfs implements a flat, fixed-capacity file system stored inside
// a single regular file that acts as a virtual disk.
//
// The volume has no directories and no permissions; it is a persistent
// namespace of named byte blobs. Each file is described by an inode holding
// up to MaxDirectBlocks direct block pointers, so the maximum file size is
// MaxDirectBlocks * BlockSize. Allocation state lives in a block bitmap, and
// a superblock caches free counters for the bitmap and the inode table.
//
// On-disk layout, in blocks:
//
//	block 0               superblock
//	block 1               block allocation bitmap, one bit per block
//	blocks 2..firstData   inode table
//	blocks firstData..    file data
//
// All multi-byte integers on disk are little-endian.
package flatfs

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Default volume geometry. A freshly formatted image with DefaultGeometry is
// 10 MiB and can hold 256 files.
const (
	DefaultBlockSize   = 4096
	DefaultTotalBlocks = 2560
	DefaultMaxFiles    = 256
)

// MaxFilenameLength is the width of the on-disk name field. Names shorter
// than the field are null-terminated; a name may use all 28 bytes.
const MaxFilenameLength = 28

// MaxDirectBlocks is the number of direct block pointers in an inode. There
// are no indirect pointers, so this caps the file size.
const MaxDirectBlocks = 12

var log = logrus.StandardLogger()

// SetLogger replaces the package logger. Passing nil restores the standard
// logrus logger.
func SetLogger(logger *logrus.Logger) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log = logger
}

// Geometry describes the capacity constants of a volume. The zero value is
// not usable; start from DefaultGeometry or a profile.
type Geometry struct {
	// BlockSize is the size of one block, in bytes.
	BlockSize uint
	// TotalBlocks is the total number of blocks in the image, including the
	// metadata region.
	TotalBlocks uint
	// MaxFiles is the capacity of the inode table.
	MaxFiles uint
}

func DefaultGeometry() Geometry {
	return Geometry{
		BlockSize:   DefaultBlockSize,
		TotalBlocks: DefaultTotalBlocks,
		MaxFiles:    DefaultMaxFiles,
	}
}

// Validate checks that the geometry describes a volume that can actually be
// laid out: the bitmap must fit in block 1 and there must be at least one
// data block after the metadata region.
func (geo Geometry) Validate() error {
	if geo.BlockSize < 512 || geo.BlockSize%InodeSize != 0 {
		return ErrInvalidArgument.WithMessage(fmt.Sprintf(
			"block size must be at least 512 and a multiple of %d, got %d",
			InodeSize, geo.BlockSize))
	}
	if geo.MaxFiles == 0 {
		return ErrInvalidArgument.WithMessage("inode table capacity can't be 0")
	}
	if geo.BitmapSize() > geo.BlockSize {
		return ErrInvalidArgument.WithMessage(fmt.Sprintf(
			"allocation bitmap needs %d bytes but a block is only %d",
			geo.BitmapSize(), geo.BlockSize))
	}
	if geo.FirstDataBlock() >= geo.TotalBlocks {
		return ErrInvalidArgument.WithMessage(fmt.Sprintf(
			"%d blocks leave no room for data; metadata alone needs %d",
			geo.TotalBlocks, geo.FirstDataBlock()))
	}
	return nil
}

// BitmapSize gives the size of the block allocation bitmap, in bytes.
func (geo Geometry) BitmapSize() uint {
	return (geo.TotalBlocks + 7) / 8
}

// InodeTableBlocks gives the number of blocks occupied by the inode table.
func (geo Geometry) InodeTableBlocks() uint {
	tableBytes := geo.MaxFiles * InodeSize
	return (tableBytes + geo.BlockSize - 1) / geo.BlockSize
}

// InodeTableStart gives the index of the first block of the inode table. The
// table immediately follows the superblock and the bitmap.
func (geo Geometry) InodeTableStart() uint {
	return 2
}

// FirstDataBlock gives the index of the first block usable for file data.
// Every block below it is reserved and permanently marked allocated.
func (geo Geometry) FirstDataBlock() uint {
	return geo.InodeTableStart() + geo.InodeTableBlocks()
}

// DataBlocks gives the number of blocks usable for file data.
func (geo Geometry) DataBlocks() uint {
	return geo.TotalBlocks - geo.FirstDataBlock()
}

// MaxFileSize gives the largest payload a single file can hold, in bytes.
func (geo Geometry) MaxFileSize() int64 {
	return int64(geo.BlockSize) * MaxDirectBlocks
}

// SizeBytes gives the exact size of a disk image with this geometry.
func (geo Geometry) SizeBytes() int64 {
	return int64(geo.BlockSize) * int64(geo.TotalBlocks)
}

// FSStat is a snapshot of the state of a mounted volume.
type FSStat struct {
	// BlockSize is the size of a logical block on the volume, in bytes.
	BlockSize int64
	// TotalBlocks is the total number of blocks on the disk image.
	TotalBlocks uint64
	// BlocksFree is the number of unallocated data blocks on the image.
	BlocksFree uint64
	// Files is the number of used inode table entries.
	Files uint64
	// FilesFree is the number of remaining inode table entries.
	FilesFree uint64
	// MaxNameLength is the longest possible name for a file, in bytes.
	MaxNameLength int64
	// VolumeID is the serial number assigned when the volume was formatted.
	VolumeID uuid.UUID
	// Label is the volume label, if one was set at format time.
	Label string
}
