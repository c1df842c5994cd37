package flatfs

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/google/uuid"
	"github.com/noxer/bytewriter"

	"github.com/dperrone/flatfs/blockdev"
)

// FormatOptions carries the optional knobs for Format. The zero value
// formats an unlabeled volume.
type FormatOptions struct {
	// Label is stored in the superblock, truncated to LabelSize bytes.
	Label string
}

// Format creates or truncates the file at `path` and writes a canonical
// empty volume into it. The file ends up exactly geo.SizeBytes() long. The
// file is closed before Format returns; the volume is not mounted.
func Format(path string, geo Geometry, opts FormatOptions) error {
	if err := geo.Validate(); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ErrIOFailed.Wrap(err)
	}
	defer file.Close()

	// Size the image by writing its final byte. Everything in between reads
	// as zeroes until the metadata region lands.
	if _, err := file.WriteAt([]byte{0}, geo.SizeBytes()-1); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	dev, err := blockdev.New(file, geo.BlockSize, geo.TotalBlocks)
	if err != nil {
		return ErrIOFailed.Wrap(err)
	}
	if err := FormatDevice(dev, geo, opts); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	log.WithFields(map[string]interface{}{
		"path":   path,
		"blocks": geo.TotalBlocks,
	}).Debug("image formatted")
	return nil
}

// FormatDevice writes a canonical empty volume onto an already-open device:
// a superblock with full free counters, a bitmap with only the metadata
// region allocated, and an inode table with every entry free. The device
// must already be geo.TotalBlocks long.
func FormatDevice(dev *blockdev.Device, geo Geometry, opts FormatOptions) error {
	if err := geo.Validate(); err != nil {
		return err
	}
	if dev.BytesPerBlock() != geo.BlockSize || dev.TotalBlocks() != geo.TotalBlocks {
		return ErrInvalidArgument.WithMessage("device size does not match geometry")
	}

	volumeID, err := uuid.NewRandom()
	if err != nil {
		return ErrIOFailed.Wrap(err)
	}

	sb := Superblock{
		TotalBlocks: geo.TotalBlocks,
		BlockSize:   geo.BlockSize,
		FreeBlocks:  geo.DataBlocks(),
		TotalInodes: geo.MaxFiles,
		FreeInodes:  geo.MaxFiles,
		VolumeID:    volumeID,
		Label:       opts.Label,
	}

	// Serialize the whole metadata region in one pass and write it out as a
	// single run of blocks.
	buf := make([]byte, geo.FirstDataBlock()*geo.BlockSize)
	writer := bytewriter.New(buf)

	// Block 0: superblock, zero-padded to a full block.
	raw := sb.ToRaw()
	if err := binary.Write(writer, binary.LittleEndian, &raw); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	pad := int(geo.BlockSize) - binary.Size(&raw)
	if _, err := writer.Write(bytes.Repeat([]byte{0}, pad)); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	// Block 1: allocation bitmap with the metadata region pre-marked.
	blocks := newBlockMap(geo)
	if _, err := writer.Write(blocks.Bytes()); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	pad = int(geo.BlockSize - geo.BitmapSize())
	if _, err := writer.Write(bytes.Repeat([]byte{0}, pad)); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	// The inode table: every entry unused with all block pointers nil.
	freeInode := InodeToRawInode(NewFreeInode())
	for i := uint(0); i < geo.MaxFiles; i++ {
		if err := binary.Write(writer, binary.LittleEndian, &freeInode); err != nil {
			return ErrIOFailed.Wrap(err)
		}
	}

	if _, err := dev.WriteAt(buf, 0); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	return nil
}
