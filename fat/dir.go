package fat

import (
	"strings"

	"github.com/noxer/bytewriter"

	"github.com/mhaas/imgtool/errs"
	"github.com/mhaas/imgtool/pool"
)

// readSlot reads the 32-byte directory slot at logical index `slot` within
// `chain`. The second return value is false if `slot` falls past the end
// of the chain entirely (caller should treat that as "no more entries",
// distinct from a 0x00 free-sentinel slot that merely marks the rest of
// an allocated cluster as unused).
func (fs *FileSystem) readSlot(chain []uint32, slot int) ([32]byte, bool, error) {
	epc := int(fs.geo.EntriesPerCluster())
	chainIdx := slot / epc
	if chainIdx >= len(chain) {
		return [32]byte{}, false, nil
	}

	byteOffset, err := fs.geo.ClusterToByteOffset(chain[chainIdx])
	if err != nil {
		return [32]byte{}, false, err
	}
	intraOffset := int64(slot%epc) * 32

	var raw [32]byte
	if err := fs.handle.ReadAt(byteOffset+intraOffset, raw[:]); err != nil {
		return [32]byte{}, false, err
	}
	return raw, true, nil
}

func (fs *FileSystem) writeSlot(chain []uint32, slot int, raw [32]byte) error {
	epc := int(fs.geo.EntriesPerCluster())
	chainIdx := slot / epc
	if chainIdx >= len(chain) {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "slot index out of range for chain")
	}

	byteOffset, err := fs.geo.ClusterToByteOffset(chain[chainIdx])
	if err != nil {
		return err
	}
	intraOffset := int64(slot%epc) * 32
	return fs.handle.WriteAt(byteOffset+intraOffset, raw[:])
}

// zeroCluster overwrites an entire cluster with zero bytes. Used when a
// directory's chain is extended so the new cluster's first slot reads as
// the 0x00 "rest is free" sentinel.
func (fs *FileSystem) zeroCluster(cluster uint32) error {
	byteOffset, err := fs.geo.ClusterToByteOffset(cluster)
	if err != nil {
		return err
	}
	zeros := make([]byte, fs.geo.BytesPerCluster)
	return fs.handle.WriteAt(byteOffset, zeros)
}

func inferFileType(attr byte) FileType {
	if attr&AttrDirectory != 0 {
		return TypeDir
	}
	return TypeFile
}

// searchInDir scans `dir`'s cluster chain slot by slot, accumulating
// long-name entries and matching either the reconstructed long name or
// the short 8.3 name against `name`. On a hit it registers a pool node
// for the target and appends it to dir's children.
func (fs *FileSystem) searchInDir(dir DirNode, name string) (pool.Index, error) {
	epc := int(fs.geo.EntriesPerCluster())
	totalSlots := len(dir.ClusterList) * epc

	var pendingChunks [][longEntryCharsPerBlk]uint16
	var pendingChecksum uint8
	var haveChecksum bool

	for slot := 0; slot < totalSlots; slot++ {
		raw, more, err := fs.readSlot(dir.ClusterList, slot)
		if err != nil {
			return 0, err
		}
		if !more || slotIsFree(raw) {
			break
		}
		if slotIsDeleted(raw) {
			pendingChunks = nil
			haveChecksum = false
			continue
		}

		if slotIsLongEntry(raw) {
			chunk := longEntryChars(raw)
			if raw[0]&longEntryOrdLastBit != 0 {
				pendingChunks = nil
				pendingChecksum = raw[13]
				haveChecksum = true
			}
			pendingChunks = append(pendingChunks, chunk)
			continue
		}

		shortEntry := DecodeShortDirEntry(raw)
		var candidateName string
		if len(pendingChunks) > 0 {
			if haveChecksum && pendingChecksum != ChecksumShortName11(shortEntry.Name) {
				return 0, errs.NewDriverErrorWithMessage(
					errs.KindInvalidData, "long-entry checksum does not match its short entry")
			}
			candidateName = decodeLongNameFromChunks(pendingChunks)
		} else {
			// The checksum above (when relevant) is computed over the raw
			// on-disk field, 0x05 escape included; only the reconstructed
			// logical name gets the escape undone.
			nameField := shortEntry.Name
			nameField[0] = realNameFirstByte(raw)
			candidateName = DecodeShortName11(nameField, shortEntry.NTRes)
		}
		pendingChunks = nil
		haveChecksum = false

		if strings.EqualFold(candidateName, name) {
			chain, err := fs.table.GetChain(shortEntry.FirstCluster())
			if err != nil {
				return 0, err
			}

			node := DirNode{
				Name:        candidateName,
				FileType:    inferFileType(shortEntry.Attr),
				ParentIndex: dir.SelfIndex,
				EntryOffset: slot,
				ClusterList: chain,
			}
			idx := fs.nodes.Append(node)
			node.SelfIndex = idx
			fs.nodes.Update(idx, node)

			dir.Children = append(dir.Children, idx)
			fs.nodes.Update(dir.SelfIndex, dir)

			return idx, nil
		}
	}

	return 0, errs.NewDriverErrorWithMessage(errs.KindNotFound, "no entry named "+name)
}

// DirEntryInfo is one decoded directory-listing row, for callers (the CLI's
// `list` command) that want every child of a directory rather than a
// single name lookup.
type DirEntryInfo struct {
	Name     string
	FileType FileType
	Size     uint32
}

// ListDir scans every slot of the directory node at `path`, decoding short
// and long entry sequences the same way searchInDir does, but collecting
// every live entry instead of stopping at the first name match.
func (fs *FileSystem) ListDir(path string) ([]DirEntryInfo, error) {
	idx, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	dir, ok := fs.nodes.Read(idx)
	if !ok {
		return nil, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "stale directory node index")
	}
	if dir.FileType != TypeDir && !dir.isRoot() {
		return nil, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "not a directory")
	}

	epc := int(fs.geo.EntriesPerCluster())
	totalSlots := len(dir.ClusterList) * epc

	var pendingChunks [][longEntryCharsPerBlk]uint16
	var pendingChecksum uint8
	var haveChecksum bool
	var entries []DirEntryInfo

	for slot := 0; slot < totalSlots; slot++ {
		raw, more, rerr := fs.readSlot(dir.ClusterList, slot)
		if rerr != nil {
			return nil, rerr
		}
		if !more || slotIsFree(raw) {
			break
		}
		if slotIsDeleted(raw) {
			pendingChunks = nil
			haveChecksum = false
			continue
		}

		if slotIsLongEntry(raw) {
			chunk := longEntryChars(raw)
			if raw[0]&longEntryOrdLastBit != 0 {
				pendingChunks = nil
				pendingChecksum = raw[13]
				haveChecksum = true
			}
			pendingChunks = append(pendingChunks, chunk)
			continue
		}

		shortEntry := DecodeShortDirEntry(raw)
		var name string
		if len(pendingChunks) > 0 {
			if haveChecksum && pendingChecksum != ChecksumShortName11(shortEntry.Name) {
				return nil, errs.NewDriverErrorWithMessage(
					errs.KindInvalidData, "long-entry checksum does not match its short entry")
			}
			name = decodeLongNameFromChunks(pendingChunks)
		} else {
			nameField := shortEntry.Name
			nameField[0] = realNameFirstByte(raw)
			name = DecodeShortName11(nameField, shortEntry.NTRes)
		}
		pendingChunks = nil
		haveChecksum = false

		entries = append(entries, DirEntryInfo{
			Name:     name,
			FileType: inferFileType(shortEntry.Attr),
			Size:     shortEntry.FileSize,
		})
	}

	return entries, nil
}

// newDirEntry finds the next free (0x00) slot in the parent's directory
// stream, extending its cluster chain if necessary. Returns the slot index and the chain
// as it exists after any extension.
func (fs *FileSystem) newDirEntry(parentIdx pool.Index) (slot int, chain []uint32, err error) {
	parent, ok := fs.nodes.Read(parentIdx)
	if !ok {
		return 0, nil, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "bad parent node index")
	}

	chain = parent.ClusterList

	for i := 0; ; i++ {
		raw, more, rerr := fs.readSlot(chain, i)
		if rerr != nil {
			return 0, nil, rerr
		}
		if !more {
			lastCluster := chain[len(chain)-1]
			newCluster, aerr := fs.table.AllocateCluster(lastCluster, false)
			if aerr != nil {
				return 0, nil, aerr
			}
			if zerr := fs.zeroCluster(newCluster); zerr != nil {
				return 0, nil, zerr
			}
			chain = append(chain, newCluster)
			parent.ClusterList = chain
			fs.nodes.Update(parentIdx, parent)
			continue
		}
		if slotIsFree(raw) {
			return i, chain, nil
		}
	}
}

// writeDirEntryBlocks writes a precomputed sequence of 32-byte blocks
// (long entries, then the short entry last) into contiguous, ascending
// slots of the parent directory. Blocks that
// land in the same cluster are assembled into one contiguous buffer with
// `bytewriter` and flushed in a single write, rather than one write per
// 32-byte block; a run that straddles a cluster boundary is split at the
// boundary since clusters need not be physically adjacent on disk.
// Returns the slot index of the final (short-entry) block.
func (fs *FileSystem) writeDirEntryBlocks(parentIdx pool.Index, blocks [][32]byte) (int, error) {
	slot, chain, err := fs.newDirEntry(parentIdx)
	if err != nil {
		return 0, err
	}

	epc := int(fs.geo.EntriesPerCluster())

	ensureChainCovers := func(target int) error {
		for target >= len(chain)*epc {
			parent, ok := fs.nodes.Read(parentIdx)
			if !ok {
				return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "bad parent node index")
			}
			lastCluster := chain[len(chain)-1]
			newCluster, aerr := fs.table.AllocateCluster(lastCluster, false)
			if aerr != nil {
				return aerr
			}
			if zerr := fs.zeroCluster(newCluster); zerr != nil {
				return zerr
			}
			chain = append(chain, newCluster)
			parent.ClusterList = chain
			fs.nodes.Update(parentIdx, parent)
		}
		return nil
	}

	i := 0
	for i < len(blocks) {
		target := slot + i
		if err := ensureChainCovers(target); err != nil {
			return 0, err
		}

		// Batch every following block that lands in the same cluster as
		// `target` into one contiguous write.
		runStart := i
		clusterIdx := target / epc
		for i < len(blocks) && (slot+i)/epc == clusterIdx {
			i++
		}
		run := blocks[runStart:i]

		buf := make([]byte, len(run)*32)
		writer := bytewriter.New(buf)
		for _, block := range run {
			if _, werr := writer.Write(block[:]); werr != nil {
				return 0, errs.NewDriverErrorWithMessage(errs.KindIO, werr.Error())
			}
		}

		byteOffset, cerr := fs.geo.ClusterToByteOffset(chain[clusterIdx])
		if cerr != nil {
			return 0, cerr
		}
		intraOffset := int64((slot+runStart)%epc) * 32
		if werr := fs.handle.WriteAt(byteOffset+intraOffset, buf); werr != nil {
			return 0, werr
		}
	}

	return slot + len(blocks) - 1, nil
}

// deleteEntry tombstones the short entry's first byte. Preceding long
// entries and the cluster chain are left untouched; scanners treat the
// orphaned long entries as noise and skip them.
func (fs *FileSystem) deleteEntry(node DirNode) error {
	parent, ok := fs.nodes.Read(node.ParentIndex)
	if !ok {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "bad parent node index")
	}

	raw, more, err := fs.readSlot(parent.ClusterList, node.EntryOffset)
	if err != nil {
		return err
	}
	if !more {
		return errs.NewDriverErrorWithMessage(errs.KindIO, "entry offset out of range")
	}

	raw[0] = nameSlotDeleted
	return fs.writeSlot(parent.ClusterList, node.EntryOffset, raw)
}
