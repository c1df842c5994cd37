package flatfs

import (
	"fmt"

	"github.com/dperrone/flatfs/blockdev"
)

// validateName rejects names the inode table can't store.
func validateName(name string) error {
	if name == "" {
		return ErrInvalidArgument.WithMessage("file name can't be empty")
	}
	if len(name) > MaxFilenameLength {
		return ErrNameTooLong.WithMessage(fmt.Sprintf(
			"%q is %d bytes, limit is %d", name, len(name), MaxFilenameLength))
	}
	return nil
}

// Create adds an empty file named `name`. No data blocks are allocated; the
// file occupies only an inode table slot until the first write.
func (fs *FileSystem) Create(name string) error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	if _, found := fs.findInode(name); found {
		return ErrExists.WithMessage(fmt.Sprintf("%q", name))
	}
	slot, ok := fs.findFreeInode()
	if !ok {
		return ErrNoSpaceOnDevice.WithMessage("inode table is full")
	}

	inode := NewFreeInode()
	inode.Used = true
	inode.Name = name
	fs.inodes[slot] = inode
	if err := fs.flushInodeTable(); err != nil {
		return err
	}

	fs.sb.FreeInodes--
	return fs.flushSuperblock()
}

// Write replaces the entire contents of `name` with `data`. The file's old
// blocks are released first and count toward the space available for the
// new payload, so rewriting a full volume's largest file always succeeds.
//
// If the volume runs out of blocks partway through, the inode is persisted
// with the blocks it did acquire and Write returns ErrNoSpaceOnDevice. The
// file then reports the requested size while holding only a prefix of the
// payload; a later successful Write replaces it cleanly. What is never left
// behind is an allocated bit without an owning inode.
func (fs *FileSystem) Write(name string, data []byte) error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	if data == nil {
		return ErrInvalidArgument.WithMessage("can't write from a nil buffer")
	}

	slot, found := fs.findInode(name)
	if !found {
		return ErrNotFound.WithMessage(fmt.Sprintf("%q", name))
	}

	size := len(data)
	blockSize := int(fs.geo.BlockSize)
	need := uint((size + blockSize - 1) / blockSize)
	if need > MaxDirectBlocks {
		return ErrFileTooLarge.WithMessage(fmt.Sprintf(
			"%d bytes needs %d blocks, an inode can hold %d",
			size, need, MaxDirectBlocks))
	}

	inode := fs.inodes[slot]
	old := inode.CountBlocks()

	// The superblock's counter is a cached summary and can be stale; count
	// the bitmap before trusting it, and keep the smaller answer.
	actual := fs.blocks.CountFreeDataBlocks()
	if actual < fs.sb.FreeBlocks {
		log.WithFields(map[string]interface{}{
			"claimed": fs.sb.FreeBlocks,
			"actual":  actual,
		}).Warn("free block counter overstates the bitmap; correcting")
		fs.sb.FreeBlocks = actual
		if err := fs.flushSuperblock(); err != nil {
			return err
		}
	}

	// The file's current blocks are about to be released, so they count as
	// available for the new payload.
	if need > fs.sb.FreeBlocks+old {
		return ErrNoSpaceOnDevice.WithMessage(fmt.Sprintf(
			"need %d blocks, volume has %d free", need, fs.sb.FreeBlocks+old))
	}

	for j := range inode.Blocks {
		if inode.Blocks[j] != NilBlock {
			fs.blocks.MarkFree(uint(inode.Blocks[j]))
			inode.Blocks[j] = NilBlock
		}
	}
	fs.sb.FreeBlocks += old
	if err := fs.flushBitmap(); err != nil {
		return err
	}
	if err := fs.flushSuperblock(); err != nil {
		return err
	}

	inode.Used = true
	inode.Size = int64(size)

	// persist writes back everything the loop below has acquired so far.
	// It runs on both the success and the exhaustion path: an allocated
	// bitmap bit must always be reachable through some inode.
	persist := func() error {
		fs.inodes[slot] = inode
		if err := fs.flushInodeTable(); err != nil {
			return err
		}
		if err := fs.flushBitmap(); err != nil {
			return err
		}
		return fs.flushSuperblock()
	}

	for i := uint(0); i < need; i++ {
		block, ok, err := fs.findFreeBlock()
		if err != nil {
			return err
		}
		if !ok {
			if err := persist(); err != nil {
				return err
			}
			return ErrNoSpaceOnDevice.WithMessage(fmt.Sprintf(
				"ran out of blocks after %d of %d", i, need))
		}

		inode.Blocks[i] = int32(block)
		fs.blocks.MarkUsed(block)
		fs.sb.FreeBlocks--

		chunkEnd := (int(i) + 1) * blockSize
		if chunkEnd > size {
			chunkEnd = size
		}
		chunk := data[int(i)*blockSize : chunkEnd]
		if _, err := fs.dev.WriteAt(chunk, blockdev.LogicalBlock(block)); err != nil {
			if perr := persist(); perr != nil {
				return perr
			}
			return ErrIOFailed.Wrap(err)
		}
	}

	return persist()
}

// Read copies the contents of `name` into `buffer` and returns the number
// of bytes copied, which is the smaller of the buffer size and the file
// size.
func (fs *FileSystem) Read(name string, buffer []byte) (int, error) {
	if err := fs.checkMounted(); err != nil {
		return 0, err
	}
	if err := validateName(name); err != nil {
		return 0, err
	}
	if buffer == nil {
		return 0, ErrInvalidArgument.WithMessage("can't read into a nil buffer")
	}

	slot, found := fs.findInode(name)
	if !found {
		return 0, ErrNotFound.WithMessage(fmt.Sprintf("%q", name))
	}
	inode := fs.inodes[slot]

	remaining := len(buffer)
	if int64(remaining) > inode.Size {
		remaining = int(inode.Size)
	}

	blockSize := int(fs.geo.BlockSize)
	offset := 0
	for _, block := range inode.Blocks {
		if remaining == 0 {
			break
		}
		if block == NilBlock {
			continue
		}

		n := blockSize
		if n > remaining {
			n = remaining
		}
		chunk := buffer[offset : offset+n]
		if _, err := fs.dev.ReadAt(chunk, blockdev.LogicalBlock(block)); err != nil {
			return offset, ErrIOFailed.Wrap(err)
		}
		offset += n
		remaining -= n
	}
	return offset, nil
}

// Delete removes `name` and releases every block it holds.
func (fs *FileSystem) Delete(name string) error {
	if err := fs.checkMounted(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	slot, found := fs.findInode(name)
	if !found {
		return ErrNotFound.WithMessage(fmt.Sprintf("%q", name))
	}

	inode := fs.inodes[slot]
	freed := uint(0)
	for j := range inode.Blocks {
		if inode.Blocks[j] != NilBlock {
			fs.blocks.MarkFree(uint(inode.Blocks[j]))
			inode.Blocks[j] = NilBlock
			freed++
		}
	}
	inode.Used = false
	inode.Size = 0

	fs.inodes[slot] = inode
	if err := fs.flushInodeTable(); err != nil {
		return err
	}
	if err := fs.flushBitmap(); err != nil {
		return err
	}

	fs.sb.FreeBlocks += freed
	fs.sb.FreeInodes++
	return fs.flushSuperblock()
}

// List returns the names of up to `max` files, in inode table order. `max`
// must be in (0, MaxFiles]. Duplicate names never occur on a healthy
// volume, but a corrupt table is listed defensively: each name is emitted
// once.
func (fs *FileSystem) List(max int) ([]string, error) {
	if err := fs.checkMounted(); err != nil {
		return nil, err
	}
	if max <= 0 || max > int(fs.geo.MaxFiles) {
		return nil, ErrInvalidArgument.WithMessage(fmt.Sprintf(
			"max must be in (0, %d], got %d", fs.geo.MaxFiles, max))
	}

	names := make([]string, 0, max)
	seen := make(map[string]struct{}, max)
	for i := range fs.inodes {
		if len(names) == max {
			break
		}
		if !fs.inodes[i].Used {
			continue
		}
		name := fs.inodes[i].Name
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}
