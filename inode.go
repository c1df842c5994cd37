package flatfs

import (
	"bytes"
	"encoding/binary"
)

// InodeSize is the on-disk footprint of one inode record, in bytes.
const InodeSize = 128

// NilBlock is the sentinel stored in an unused block pointer slot.
const NilBlock = int32(-1)

// RawInode is the on-disk layout of a single inode table entry.
type RawInode struct {
	Used     uint32
	Name     [MaxFilenameLength]byte
	Size     uint32
	Blocks   [MaxDirectBlocks]int32
	Reserved [44]byte
}

// Inode is the in-memory form of an inode table entry.
type Inode struct {
	Used bool
	Name string
	// Size is the size of the file in bytes. After a write that ran out of
	// space partway through, it can exceed the capacity of the blocks the
	// inode actually holds.
	Size   int64
	Blocks [MaxDirectBlocks]int32
}

// NewFreeInode returns an inode in the state a freshly formatted table is
// filled with: unused, empty name, every block pointer nil.
func NewFreeInode() Inode {
	inode := Inode{}
	inode.ClearBlocks()
	return inode
}

// CountBlocks returns the number of block pointers that are not NilBlock.
func (inode *Inode) CountBlocks() uint {
	count := uint(0)
	for _, blk := range inode.Blocks {
		if blk != NilBlock {
			count++
		}
	}
	return count
}

// ClearBlocks resets every block pointer to NilBlock.
func (inode *Inode) ClearBlocks() {
	for i := range inode.Blocks {
		inode.Blocks[i] = NilBlock
	}
}

func InodeToRawInode(inode Inode) RawInode {
	raw := RawInode{
		Size:   uint32(inode.Size),
		Blocks: inode.Blocks,
	}
	if inode.Used {
		raw.Used = 1
	}
	copy(raw.Name[:], inode.Name)
	return raw
}

func RawInodeToInode(raw RawInode) Inode {
	return Inode{
		Used:   raw.Used != 0,
		Name:   nameFromBytes(raw.Name[:]),
		Size:   int64(raw.Size),
		Blocks: raw.Blocks,
	}
}

func BytesToInode(data []byte) (Inode, error) {
	var raw RawInode
	reader := bytes.NewReader(data)
	if err := binary.Read(reader, binary.LittleEndian, &raw); err != nil {
		return Inode{}, ErrIOFailed.Wrap(err)
	}
	return RawInodeToInode(raw), nil
}

// nameFromBytes decodes a fixed-width name field, stopping at the first null
// byte. A field with no null byte uses its full width.
func nameFromBytes(field []byte) string {
	end := bytes.IndexByte(field, 0)
	if end < 0 {
		end = len(field)
	}
	return string(field[:end])
}
