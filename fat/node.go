package fat

import "github.com/mhaas/imgtool/pool"

// FileType distinguishes the kinds of directory entry this engine tracks.
type FileType int

const (
	TypeFile FileType = iota
	TypeDir
	TypeLink
)

// DirNode is the cached, in-memory representation of one directory entry.
// Nodes live in a pool.Pool and are referenced only by pool.Index from
// then on.
type DirNode struct {
	Name        string
	FileType    FileType
	ParentIndex pool.Index
	SelfIndex   pool.Index
	Children    []pool.Index

	// EntryOffset is this node's 32-byte slot number within the parent's
	// directory stream. It is meaningless (-1) for the synthesized root.
	EntryOffset int

	// ClusterList is the ordered chain of clusters backing this node. For
	// a plain file or directory, ClusterList[0] is the first cluster
	// recorded in the entry's high/low cluster fields.
	ClusterList []uint32
}

const rootEntryOffset = -1

// isRoot reports whether this node is the synthesized root directory.
func (n DirNode) isRoot() bool {
	return n.EntryOffset == rootEntryOffset
}
