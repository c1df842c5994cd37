package flatfs

import (
	bitmap "github.com/boljen/go-bitmap"
)

// blockMap is the block allocation bitmap: one bit per block over the whole
// volume, 1 meaning in use. Bit k lives in byte k/8 at position k%8, which is
// exactly how the bitmap is persisted in block 1.
type blockMap struct {
	bits bitmap.Bitmap
	geo  Geometry
}

// newBlockMap returns a bitmap for a freshly formatted volume: the metadata
// region is marked allocated, every data block is free.
func newBlockMap(geo Geometry) blockMap {
	bits := bitmap.New(int(geo.TotalBlocks))
	for i := 0; i < int(geo.FirstDataBlock()); i++ {
		bits.Set(i, true)
	}
	return blockMap{bits: bits, geo: geo}
}

// blockMapFromBytes restores a bitmap from the persisted form. `data` must be
// at least geo.BitmapSize() bytes; extra bytes are ignored.
func blockMapFromBytes(geo Geometry, data []byte) blockMap {
	bits := make([]byte, geo.BitmapSize())
	copy(bits, data)
	return blockMap{bits: bitmap.Bitmap(bits), geo: geo}
}

// Bytes returns the persisted form of the bitmap. The slice aliases the
// bitmap's storage.
func (m blockMap) Bytes() []byte {
	return m.bits.Data(false)
}

// IsUsed reports whether block `i` is allocated. Out-of-range indices read as
// allocated, so they can never be handed out.
func (m blockMap) IsUsed(i uint) bool {
	if i >= m.geo.TotalBlocks {
		return true
	}
	return m.bits.Get(int(i))
}

// MarkUsed sets the bit for block `i`. Out-of-range indices are ignored.
func (m blockMap) MarkUsed(i uint) {
	if i < m.geo.TotalBlocks {
		m.bits.Set(int(i), true)
	}
}

// MarkFree clears the bit for block `i`. Out-of-range indices are ignored.
func (m blockMap) MarkFree(i uint) {
	if i < m.geo.TotalBlocks {
		m.bits.Set(int(i), false)
	}
}

// FindFreeBlock scans the data block range in index order and returns the
// first free block. First-fit keeps allocations packed into the low end of
// the volume. The second return value is false if every data block is taken.
func (m blockMap) FindFreeBlock() (uint, bool) {
	for i := m.geo.FirstDataBlock(); i < m.geo.TotalBlocks; i++ {
		if !m.bits.Get(int(i)) {
			return i, true
		}
	}
	return 0, false
}

// CountFreeDataBlocks returns the number of clear bits in the data block
// range. This is the authoritative free count the superblock summarizes.
func (m blockMap) CountFreeDataBlocks() uint {
	free := uint(0)
	for i := m.geo.FirstDataBlock(); i < m.geo.TotalBlocks; i++ {
		if !m.bits.Get(int(i)) {
			free++
		}
	}
	return free
}
