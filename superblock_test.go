package flatfs

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperblockRoundTrip(t *testing.T) {
	volumeID, err := uuid.NewRandom()
	require.NoError(t, err)

	sb := Superblock{
		TotalBlocks: DefaultTotalBlocks,
		BlockSize:   DefaultBlockSize,
		FreeBlocks:  2550,
		TotalInodes: DefaultMaxFiles,
		FreeInodes:  255,
		VolumeID:    volumeID,
		Label:       "scratch",
	}

	raw := sb.ToRaw()
	buf := make([]byte, DefaultBlockSize)
	writer := bytewriter.New(buf)
	require.NoError(t, binary.Write(writer, binary.LittleEndian, &raw))

	decoded, err := BytesToSuperblock(buf)
	require.NoError(t, err)
	assert.Equal(t, sb, decoded)
}

func TestBytesToSuperblockRejectsMissingSignature(t *testing.T) {
	buf := make([]byte, DefaultBlockSize)
	_, err := BytesToSuperblock(buf)
	assert.ErrorIs(t, err, ErrInvalidFileSystem)
}
