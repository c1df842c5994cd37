package flatfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyGeometry keeps allocation tests fast: 32 blocks of 512 bytes, 8 inodes
// in a two-block table, 28 data blocks starting at block 4.
func tinyGeometry() Geometry {
	return Geometry{BlockSize: 512, TotalBlocks: 32, MaxFiles: 8}
}

func TestNewBlockMapReservesMetadataRegion(t *testing.T) {
	geo := tinyGeometry()
	m := newBlockMap(geo)

	for i := uint(0); i < geo.FirstDataBlock(); i++ {
		assert.Truef(t, m.IsUsed(i), "reserved block %d should be allocated", i)
	}
	assert.EqualValues(t, geo.DataBlocks(), m.CountFreeDataBlocks())
}

func TestFindFreeBlockIsFirstFit(t *testing.T) {
	geo := tinyGeometry()
	m := newBlockMap(geo)

	block, ok := m.FindFreeBlock()
	require.True(t, ok)
	assert.EqualValues(t, geo.FirstDataBlock(), block,
		"the first free block should be the lowest data block")

	m.MarkUsed(block)
	next, ok := m.FindFreeBlock()
	require.True(t, ok)
	assert.EqualValues(t, block+1, next)

	// Freeing the lower block makes it the first fit again.
	m.MarkFree(block)
	again, ok := m.FindFreeBlock()
	require.True(t, ok)
	assert.EqualValues(t, block, again)
}

func TestFindFreeBlockExhaustion(t *testing.T) {
	geo := tinyGeometry()
	m := newBlockMap(geo)

	for i := geo.FirstDataBlock(); i < geo.TotalBlocks; i++ {
		m.MarkUsed(i)
	}
	_, ok := m.FindFreeBlock()
	assert.False(t, ok)
	assert.EqualValues(t, 0, m.CountFreeDataBlocks())
}

func TestMarkIgnoresOutOfRangeIndices(t *testing.T) {
	geo := tinyGeometry()
	m := newBlockMap(geo)

	m.MarkUsed(geo.TotalBlocks)
	m.MarkUsed(geo.TotalBlocks * 100)
	m.MarkFree(geo.TotalBlocks)
	assert.EqualValues(t, geo.DataBlocks(), m.CountFreeDataBlocks())
	assert.True(t, m.IsUsed(geo.TotalBlocks*100),
		"out-of-range blocks must read as allocated")
}

func TestBlockMapPersistedLayout(t *testing.T) {
	geo := tinyGeometry()
	m := newBlockMap(geo)
	m.MarkUsed(12)

	data := m.Bytes()
	require.Len(t, data, int(geo.BitmapSize()))

	// Bit k lives at byte k/8, position k%8. The reserved region is blocks
	// 0-3, so byte 0 is 0b00001111 before block 12 was taken.
	assert.EqualValues(t, 0x0f, data[0])
	assert.EqualValues(t, 1<<4, data[12/8]&(1<<(12%8)))

	restored := blockMapFromBytes(geo, data)
	assert.True(t, restored.IsUsed(12))
	assert.Equal(t, m.CountFreeDataBlocks(), restored.CountFreeDataBlocks())
}
