package flatfs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"

	"github.com/dperrone/flatfs/blockdev"
)

// FileSystem is a mounted volume. Values are obtained from Mount or
// MountDevice; the zero value is unusable. Operations on a FileSystem that
// has been unmounted fail with ErrNotMounted.
//
// A FileSystem is not safe for concurrent use.
type FileSystem struct {
	dev    *blockdev.Device
	geo    Geometry
	sb     Superblock
	blocks blockMap
	// inodes is an in-memory copy of the inode table. Every mutation is
	// written through to the image before the operation returns, so the
	// image is always mountable as-is.
	inodes  []Inode
	mounted bool
	// closer is the backing file when the volume was mounted from a path.
	closer io.Closer
}

// Mount opens the disk image at `path` read-write, validates it against the
// expected geometry, and returns the mounted volume.
func Mount(path string, geo Geometry) (*FileSystem, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, ErrIOFailed.Wrap(err)
	}

	dev, err := blockdev.New(file, geo.BlockSize, geo.TotalBlocks)
	if err != nil {
		file.Close()
		return nil, ErrIOFailed.Wrap(err)
	}

	fs, err := MountDevice(dev, geo)
	if err != nil {
		file.Close()
		return nil, err
	}
	fs.closer = file
	return fs, nil
}

// MountDevice mounts a volume from an already-open device. The caller keeps
// ownership of the device's backing stream.
func MountDevice(dev *blockdev.Device, geo Geometry) (*FileSystem, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	fs := &FileSystem{dev: dev, geo: geo}
	if err := fs.load(); err != nil {
		return nil, err
	}
	if err := fs.validate(); err != nil {
		return nil, err
	}

	fs.mounted = true
	log.WithFields(map[string]interface{}{
		"volume": fs.sb.VolumeID,
		"label":  fs.sb.Label,
	}).Debug("volume mounted")
	return fs, nil
}

// load reads the superblock, the bitmap, and the entire inode table.
func (fs *FileSystem) load() error {
	blockBuf := make([]byte, fs.geo.BlockSize)
	if _, err := fs.dev.ReadAt(blockBuf, 0); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	sb, err := BytesToSuperblock(blockBuf)
	if err != nil {
		return err
	}
	fs.sb = sb

	bitmapBuf := make([]byte, fs.geo.BitmapSize())
	if _, err := fs.dev.ReadAt(bitmapBuf, 1); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	fs.blocks = blockMapFromBytes(fs.geo, bitmapBuf)

	tableBuf := make([]byte, fs.geo.InodeTableBlocks()*fs.geo.BlockSize)
	start := blockdev.LogicalBlock(fs.geo.InodeTableStart())
	if _, err := fs.dev.ReadAt(tableBuf, start); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	fs.inodes = make([]Inode, fs.geo.MaxFiles)
	for i := range fs.inodes {
		offset := i * InodeSize
		inode, err := BytesToInode(tableBuf[offset : offset+InodeSize])
		if err != nil {
			return err
		}
		fs.inodes[i] = inode
	}
	return nil
}

// validate rejects images whose structure can't belong to a volume this
// engine formatted. All faults are collected before failing so the caller
// sees the full damage report at once.
func (fs *FileSystem) validate() error {
	var result *multierror.Error

	if fs.sb.TotalBlocks != fs.geo.TotalBlocks {
		result = multierror.Append(result, fmt.Errorf(
			"superblock says %d total blocks, expected %d",
			fs.sb.TotalBlocks, fs.geo.TotalBlocks))
	}
	if fs.sb.BlockSize != fs.geo.BlockSize {
		result = multierror.Append(result, fmt.Errorf(
			"superblock says %d-byte blocks, expected %d",
			fs.sb.BlockSize, fs.geo.BlockSize))
	}
	if fs.sb.TotalInodes != fs.geo.MaxFiles {
		result = multierror.Append(result, fmt.Errorf(
			"superblock says %d inodes, expected %d",
			fs.sb.TotalInodes, fs.geo.MaxFiles))
	}

	for i := uint(0); i < fs.geo.FirstDataBlock(); i++ {
		if !fs.blocks.IsUsed(i) {
			result = multierror.Append(result, fmt.Errorf(
				"reserved block %d is not marked allocated", i))
		}
	}

	for i, inode := range fs.inodes {
		if !inode.Used {
			continue
		}
		if inode.Size < 0 || inode.Size > fs.geo.MaxFileSize() {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d has impossible size %d", i, inode.Size))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return ErrFileSystemCorrupted.Wrap(err)
	}
	return nil
}

// Unmount detaches the volume and closes the backing file if Mount opened
// one. Any further operation on the FileSystem fails with ErrNotMounted.
func (fs *FileSystem) Unmount() error {
	fs.mounted = false
	if err := fs.dev.Sync(); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	if fs.closer != nil {
		closer := fs.closer
		fs.closer = nil
		if err := closer.Close(); err != nil {
			return ErrIOFailed.Wrap(err)
		}
	}
	log.Debug("volume unmounted")
	return nil
}

func (fs *FileSystem) checkMounted() error {
	if !fs.mounted {
		return ErrNotMounted
	}
	return nil
}

// Geometry returns the capacity constants the volume was mounted with.
func (fs *FileSystem) Geometry() Geometry {
	return fs.geo
}

// FSStat reports the current state of the volume.
func (fs *FileSystem) FSStat() (FSStat, error) {
	if err := fs.checkMounted(); err != nil {
		return FSStat{}, err
	}

	usedFiles := uint64(0)
	for _, inode := range fs.inodes {
		if inode.Used {
			usedFiles++
		}
	}

	return FSStat{
		BlockSize:     int64(fs.geo.BlockSize),
		TotalBlocks:   uint64(fs.geo.TotalBlocks),
		BlocksFree:    uint64(fs.sb.FreeBlocks),
		Files:         usedFiles,
		FilesFree:     uint64(fs.geo.MaxFiles) - usedFiles,
		MaxNameLength: MaxFilenameLength,
		VolumeID:      fs.sb.VolumeID,
		Label:         fs.sb.Label,
	}, nil
}

// FreeBlockCount reports the superblock's free data block counter.
func (fs *FileSystem) FreeBlockCount() (uint, error) {
	if err := fs.checkMounted(); err != nil {
		return 0, err
	}
	return fs.sb.FreeBlocks, nil
}

////////////////////////////////////////////////////////////////////////////////
// Persistence. Each helper writes one on-disk structure in full; callers are
// responsible for calling them before returning from a mutating operation.

func (fs *FileSystem) flushSuperblock() error {
	buf := make([]byte, fs.geo.BlockSize)
	writer := bytewriter.New(buf)
	raw := fs.sb.ToRaw()
	if err := binary.Write(writer, binary.LittleEndian, &raw); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	if _, err := fs.dev.WriteAt(buf, 0); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	return nil
}

func (fs *FileSystem) flushBitmap() error {
	if _, err := fs.dev.WriteAt(fs.blocks.Bytes(), 1); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	return nil
}

// flushInodeTable rewrites the whole table. At 256 entries the table is a
// handful of blocks, so per-slot writes aren't worth the bookkeeping.
func (fs *FileSystem) flushInodeTable() error {
	buf := make([]byte, fs.geo.InodeTableBlocks()*fs.geo.BlockSize)
	writer := bytewriter.New(buf)
	for i := range fs.inodes {
		raw := InodeToRawInode(fs.inodes[i])
		if err := binary.Write(writer, binary.LittleEndian, &raw); err != nil {
			return ErrIOFailed.Wrap(err)
		}
	}
	start := blockdev.LogicalBlock(fs.geo.InodeTableStart())
	if _, err := fs.dev.WriteAt(buf, start); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Allocation primitives.

// findFreeBlock returns the first free data block. When the bitmap is full
// but the superblock still claims free space, the counter is stale; the
// bitmap wins and the counter is corrected on the spot.
func (fs *FileSystem) findFreeBlock() (uint, bool, error) {
	block, ok := fs.blocks.FindFreeBlock()
	if !ok && fs.sb.FreeBlocks > 0 {
		log.WithField("claimed", fs.sb.FreeBlocks).
			Warn("free block counter disagrees with a full bitmap; resetting to 0")
		fs.sb.FreeBlocks = 0
		if err := fs.flushSuperblock(); err != nil {
			return 0, false, err
		}
	}
	return block, ok, nil
}

// findInode returns the slot of the used inode with the given name.
func (fs *FileSystem) findInode(name string) (int, bool) {
	for i := range fs.inodes {
		if fs.inodes[i].Used && fs.inodes[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// findFreeInode returns the lowest unused slot in the inode table.
func (fs *FileSystem) findFreeInode() (int, bool) {
	for i := range fs.inodes {
		if !fs.inodes[i].Used {
			return i, true
		}
	}
	return 0, false
}
