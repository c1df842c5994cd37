package flatfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Magic is the signature stored in the first four bytes of every volume.
const Magic = uint32(0x73664C46) // "FLfs", little-endian

// LabelSize is the width of the fixed label field in the superblock.
const LabelSize = 32

// RawSuperblock is the on-disk layout of block 0. The rest of the block is
// zero padding.
type RawSuperblock struct {
	Magic       uint32
	TotalBlocks uint32
	BlockSize   uint32
	FreeBlocks  uint32
	TotalInodes uint32
	FreeInodes  uint32
	VolumeID    [16]byte
	Label       [LabelSize]byte
}

// Superblock is the in-memory form of the volume header. FreeBlocks and
// FreeInodes are cached summaries of the bitmap and the inode table; the
// bitmap and the table are authoritative.
type Superblock struct {
	TotalBlocks uint
	BlockSize   uint
	FreeBlocks  uint
	TotalInodes uint
	FreeInodes  uint
	VolumeID    uuid.UUID
	Label       string
}

func (sb Superblock) ToRaw() RawSuperblock {
	raw := RawSuperblock{
		Magic:       Magic,
		TotalBlocks: uint32(sb.TotalBlocks),
		BlockSize:   uint32(sb.BlockSize),
		FreeBlocks:  uint32(sb.FreeBlocks),
		TotalInodes: uint32(sb.TotalInodes),
		FreeInodes:  uint32(sb.FreeInodes),
	}
	copy(raw.VolumeID[:], sb.VolumeID[:])
	copy(raw.Label[:], sb.Label)
	return raw
}

// BytesToSuperblock deserializes block 0. It fails if the signature is
// missing, which is the cheapest way to reject images that were never
// formatted with this file system.
func BytesToSuperblock(data []byte) (Superblock, error) {
	var raw RawSuperblock
	reader := bytes.NewReader(data)
	if err := binary.Read(reader, binary.LittleEndian, &raw); err != nil {
		return Superblock{}, ErrIOFailed.Wrap(err)
	}
	if raw.Magic != Magic {
		return Superblock{}, ErrInvalidFileSystem.WithMessage(fmt.Sprintf(
			"bad signature: expected %#08x, got %#08x", Magic, raw.Magic))
	}

	sb := Superblock{
		TotalBlocks: uint(raw.TotalBlocks),
		BlockSize:   uint(raw.BlockSize),
		FreeBlocks:  uint(raw.FreeBlocks),
		TotalInodes: uint(raw.TotalInodes),
		FreeInodes:  uint(raw.FreeInodes),
		Label:       nameFromBytes(raw.Label[:]),
	}
	copy(sb.VolumeID[:], raw.VolumeID[:])
	return sb, nil
}
