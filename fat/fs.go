// Package fat implements a FAT12/16/32 file system engine that operates
// directly on disk-image bytes: BPB decoding, FAT chain traversal and
// allocation, short and long directory-entry codecs, and the
// path-resolving public operations layered over them.
package fat

import (
	"strings"
	"time"

	"github.com/mhaas/imgtool/errs"
	"github.com/mhaas/imgtool/hostfile"
	"github.com/mhaas/imgtool/pool"
)

// byteRange is one absolute [start, end) span produced by file_range.
type byteRange struct {
	start, end int64
}

// FileSystem is one mounted FAT volume: its geometry, FAT table operator,
// and in-memory directory-node pool, all borrowing the same host handle.
type FileSystem struct {
	handle *hostfile.Handle
	geo    *Geometry
	table  *table
	nodes  *pool.Pool[DirNode]
	root   pool.Index
}

// Init reads the boot sector at the start of the partition described by
// `partitionStartLBA` (in sectors, relative to the start of the image),
// derives the volume's geometry, and populates the synthesized root
// directory node. The boot sector is decoded exactly once; the geometry
// is immutable afterwards.
func Init(handle *hostfile.Handle, partitionStartLBA uint32) (*FileSystem, error) {
	sector := make([]byte, bpbSectorSize)
	if err := handle.ReadAt(int64(partitionStartLBA)*bpbSectorSize, sector); err != nil {
		return nil, err
	}

	bpb, err := DecodeBPB(sector)
	if err != nil {
		return nil, err
	}

	geo, err := DeriveGeometry(bpb, partitionStartLBA)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		handle: handle,
		geo:    geo,
		table:  newTable(handle, geo),
		nodes:  pool.New[DirNode](),
	}

	rootCluster := geo.RootCluster
	if rootCluster < 2 {
		rootCluster = 2
	}

	var rootChain []uint32
	if geo.Variant == FAT32 {
		chain, cerr := fs.table.GetChain(rootCluster)
		if cerr != nil {
			return nil, cerr
		}
		rootChain = chain
	} else {
		rootChain = []uint32{rootCluster}
	}

	root := DirNode{
		Name:        "/",
		FileType:    TypeDir,
		EntryOffset: rootEntryOffset,
		ClusterList: rootChain,
	}
	idx := fs.nodes.Append(root)
	root.SelfIndex = idx
	root.ParentIndex = idx
	fs.nodes.Update(idx, root)
	fs.root = idx

	return fs, nil
}

// Geometry exposes the volume's derived geometry for diagnostics (the CLI
// `list` command, MBR partition-type lookups, etc.).
func (fs *FileSystem) Geometry() *Geometry {
	return fs.geo
}

// Request is the opaque handle returned by Open and CreateFile: a pool
// index plus a running byte offset.
type Request struct {
	Node   pool.Index
	Offset int64
}

func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// resolveSegments walks `segments` starting from the root, consulting the
// pool's cached children before touching disk.
func (fs *FileSystem) resolveSegments(segments []string) (pool.Index, error) {
	current := fs.root

	for _, seg := range segments {
		dir, ok := fs.nodes.Read(current)
		if !ok {
			return 0, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "stale directory node index")
		}

		found := false
		for _, childIdx := range dir.Children {
			child, ok := fs.nodes.Read(childIdx)
			if ok && strings.EqualFold(child.Name, seg) {
				current = childIdx
				found = true
				break
			}
		}
		if found {
			continue
		}

		childIdx, err := fs.searchInDir(dir, seg)
		if err != nil {
			return 0, err
		}
		current = childIdx
	}

	return current, nil
}

// resolve resolves the full path, including its final segment. Used by
// Open and DeleteFile.
func (fs *FileSystem) resolve(path string) (pool.Index, error) {
	return fs.resolveSegments(splitPath(path))
}

// getParentDir resolves every segment of `path` except the last. Used by
// CreateFile, which looks up or creates the leaf itself.
func (fs *FileSystem) getParentDir(path string) (pool.Index, string, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return 0, "", errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "empty path")
	}

	leaf := segments[len(segments)-1]
	parentIdx, err := fs.resolveSegments(segments[:len(segments)-1])
	if err != nil {
		return 0, "", err
	}
	return parentIdx, leaf, nil
}

// Open resolves the full path and returns a fresh handle at offset 0.
func (fs *FileSystem) Open(path string) (Request, error) {
	idx, err := fs.resolve(path)
	if err != nil {
		return Request{}, err
	}
	return Request{Node: idx, Offset: 0}, nil
}

// attributeByte derives an entry's attribute bits: the read-only bit is
// cleared only if the caller asked for world-writable permissions;
// directories OR in ATTR_DIRECTORY|ATTR_ARCHIVE, files/links OR in
// ATTR_ARCHIVE.
func attributeByte(ftype FileType, worldWritable bool) byte {
	var attr byte
	if !worldWritable {
		attr |= AttrReadOnly
	}
	switch ftype {
	case TypeDir:
		attr |= AttrDirectory | AttrArchive
	default:
		attr |= AttrArchive
	}
	return attr
}

// CreateFile creates a new file, directory, or link entry at `path`,
// allocating its first cluster and writing its long/short directory
// entries into the parent's stream.
func (fs *FileSystem) CreateFile(
	path string,
	ftype FileType,
	worldWritable bool,
	modTime time.Time,
	initialSize uint32,
) (Request, error) {
	if fs.geo.Variant != FAT32 {
		return Request{}, errs.NewDriverErrorWithMessage(
			errs.KindUnsupported, "file creation requires a FAT32 volume")
	}

	parentIdx, leaf, err := fs.getParentDir(path)
	if err != nil {
		return Request{}, err
	}
	parent, ok := fs.nodes.Read(parentIdx)
	if !ok {
		return Request{}, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "bad parent directory")
	}

	exists := func(candidate string) bool {
		_, serr := fs.searchInDir(parent, candidate)
		return serr == nil
	}

	if exists(leaf) {
		return Request{}, errs.NewDriverErrorWithMessage(
			errs.KindAlreadyExists, "an entry named "+leaf+" already exists")
	}

	firstCluster, err := fs.table.AllocateCluster(0, true)
	if err != nil {
		return Request{}, err
	}
	if ftype == TypeDir {
		if zerr := fs.zeroCluster(firstCluster); zerr != nil {
			return Request{}, zerr
		}
	}

	needsLongName := CheckShortName(leaf) != nil
	var shortName ShortName
	var blocks [][32]byte

	if !needsLongName {
		shortName, err = NewShortName(leaf)
	} else {
		if longErr := CheckLongName(leaf); longErr != nil {
			return Request{}, longErr
		}
		shortName, err = SynthesizeShortName(leaf, exists)
	}
	if err != nil {
		return Request{}, err
	}

	rawName := shortName.Encode11()
	checksum := ChecksumShortName11(rawName)

	if needsLongName {
		blocks = append(blocks, EncodeLongNameEntries(leaf, checksum)...)
	}

	entry := ShortDirEntry{
		Name:            rawName,
		Attr:            attributeByte(ftype, worldWritable),
		NTRes:           shortName.NTRes,
		CreateTimeTenth: PackTimeTenth(modTime),
		CreateTime:      PackTime(modTime),
		CreateDate:      PackDate(modTime),
		LastAccessDate:  PackDate(modTime),
		WriteTime:       PackTime(modTime),
		WriteDate:       PackDate(modTime),
		FileSize:        initialSize,
	}
	entry.SetFirstCluster(firstCluster)
	blocks = append(blocks, entry.Encode())

	slot, err := fs.writeDirEntryBlocks(parentIdx, blocks)
	if err != nil {
		return Request{}, err
	}

	node := DirNode{
		Name:        leaf,
		FileType:    ftype,
		ParentIndex: parentIdx,
		EntryOffset: slot,
		ClusterList: []uint32{firstCluster},
	}
	idx := fs.nodes.Append(node)
	node.SelfIndex = idx
	fs.nodes.Update(idx, node)

	parent, _ = fs.nodes.Read(parentIdx)
	parent.Children = append(parent.Children, idx)
	fs.nodes.Update(parentIdx, parent)

	return Request{Node: idx, Offset: 0}, nil
}

// DeleteFile tombstones the target's short entry. The cluster chain is
// deliberately not freed; rebuilding the image reclaims the space.
func (fs *FileSystem) DeleteFile(req Request) error {
	node, ok := fs.nodes.Read(req.Node)
	if !ok {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "bad request handle")
	}
	if node.isRoot() {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "cannot delete the root directory")
	}

	if err := fs.deleteEntry(node); err != nil {
		return err
	}

	parent, ok := fs.nodes.Read(node.ParentIndex)
	if ok {
		filtered := parent.Children[:0]
		for _, c := range parent.Children {
			if c != req.Node {
				filtered = append(filtered, c)
			}
		}
		parent.Children = filtered
		fs.nodes.Update(node.ParentIndex, parent)
	}

	fs.nodes.Delete(req.Node)
	return nil
}

// readEntryRaw fetches the raw 32-byte short entry backing `node` from its
// parent's directory stream, so the file size can always be re-read from
// disk rather than trusted from a possibly-stale cache.
func (fs *FileSystem) readEntryRaw(node DirNode) ([32]byte, error) {
	parent, ok := fs.nodes.Read(node.ParentIndex)
	if !ok {
		return [32]byte{}, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "bad parent node index")
	}
	raw, more, err := fs.readSlot(parent.ClusterList, node.EntryOffset)
	if err != nil {
		return [32]byte{}, err
	}
	if !more {
		return [32]byte{}, errs.NewDriverErrorWithMessage(errs.KindIO, "entry offset out of range")
	}
	return raw, nil
}

// fileRange translates a `{node, offset}` handle plus a transfer size
// into the ordered list of absolute byte spans to read or write,
// extending the node's cluster chain when `grow` is set and the requested
// range runs past its current length.
func (fs *FileSystem) fileRange(req *Request, size int, grow bool) ([]byteRange, error) {
	node, ok := fs.nodes.Read(req.Node)
	if !ok {
		return nil, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "bad request handle")
	}
	if node.isRoot() {
		return nil, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "cannot perform file I/O on a directory")
	}

	raw, err := fs.readEntryRaw(node)
	if err != nil {
		return nil, err
	}
	fileSize := DecodeShortDirEntry(raw).FileSize

	bpc := fs.geo.BytesPerCluster
	offset := uint32(req.Offset)
	transferSize := uint32(size)

	if !grow {
		// Reads never run past the recorded file size.
		if offset >= fileSize {
			return nil, nil
		}
		if offset+transferSize > fileSize {
			transferSize = fileSize - offset
		}
	}

	clusCount := ceilDiv(offset+transferSize, bpc) - offset/bpc
	left := offset / bpc
	right := left + clusCount

	chain := node.ClusterList
	extended := false

	if grow {
		// The chain must cover every slot in [0, right), not just the ones
		// the transfer touches: a write starting past the current tail still
		// needs the intermediate clusters linked in.
		for uint32(len(chain)) < right {
			lastCluster := chain[len(chain)-1]
			newCluster, aerr := fs.table.AllocateCluster(lastCluster, false)
			if aerr != nil {
				return nil, aerr
			}
			chain = append(chain, newCluster)
			extended = true
		}
	} else if right > uint32(len(chain)) {
		right = uint32(len(chain))
	}

	var ranges []byteRange
	remaining := int64(transferSize)
	pos := int64(offset)

	for i := left; i < right && remaining > 0; i++ {
		byteOffset, cerr := fs.geo.ClusterToByteOffset(chain[i])
		if cerr != nil {
			return nil, cerr
		}
		intra := pos % int64(bpc)
		spanLen := int64(bpc) - intra
		if spanLen > remaining {
			spanLen = remaining
		}
		start := byteOffset + intra
		ranges = append(ranges, byteRange{start: start, end: start + spanLen})
		pos += spanLen
		remaining -= spanLen
	}

	if extended {
		node.ClusterList = chain
		fs.nodes.Update(req.Node, node)
	}

	return ranges, nil
}

// Read walks the planned ranges, filling `buf` at the running write
// position, and advances `req.Offset` by the number of bytes actually
// read.
func (fs *FileSystem) Read(req *Request, buf []byte) (int, error) {
	ranges, err := fs.fileRange(req, len(buf), false)
	if err != nil {
		return 0, err
	}

	pos := 0
	for _, r := range ranges {
		n := int(r.end - r.start)
		if err := fs.handle.ReadAt(r.start, buf[pos:pos+n]); err != nil {
			return pos, err
		}
		pos += n
	}
	req.Offset += int64(pos)
	return pos, nil
}

// Write walks the planned ranges, extending the cluster chain as needed,
// and writes `buf`. The short entry's file_size grows to max(old,
// offset+n) and is persisted immediately after the transfer.
func (fs *FileSystem) Write(req *Request, buf []byte) (int, error) {
	node, ok := fs.nodes.Read(req.Node)
	if !ok {
		return 0, errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "bad request handle")
	}

	ranges, err := fs.fileRange(req, len(buf), true)
	if err != nil {
		return 0, err
	}

	pos := 0
	for _, r := range ranges {
		n := int(r.end - r.start)
		if err := fs.handle.WriteAt(r.start, buf[pos:pos+n]); err != nil {
			return pos, err
		}
		pos += n
	}
	req.Offset += int64(pos)

	newSize := uint32(req.Offset)
	if err := fs.growFileSize(node, newSize); err != nil {
		return pos, err
	}

	return pos, nil
}

// growFileSize persists `newSize` into the node's short entry if it
// exceeds the size already recorded on disk.
func (fs *FileSystem) growFileSize(node DirNode, newSize uint32) error {
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

	entry := DecodeShortDirEntry(raw)
	if newSize <= entry.FileSize {
		return nil
	}
	entry.FileSize = newSize
	return fs.writeSlot(parent.ClusterList, node.EntryOffset, entry.Encode())
}
