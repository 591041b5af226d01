package fat

import (
	"encoding/binary"

	"github.com/mhaas/imgtool/errs"
	"github.com/mhaas/imgtool/hostfile"
)

// endOfChainMarker is the sentinel value this engine writes when marking a
// cluster as the last in its chain; it is truncated to the 28 meaningful
// FAT32 bits on disk. Values >= 0x0FFFFFF8 are end-of-chain on read.
const (
	endOfChainMarker     uint32 = 0xFFFFFFFF
	endOfChainLowerBound uint32 = 0x0FFFFFF8
	fat32EntryMask       uint32 = 0x0FFFFFFF
	firstAllocatableClus uint32 = 3
	reservedRootCluster  uint32 = 2
)

// IsEndOfChain reports whether a raw FAT32 entry value denotes the end of
// a cluster chain.
func IsEndOfChain(value uint32) bool {
	return value >= endOfChainLowerBound
}

// table reads and writes the File Allocation Table: next-cluster lookup,
// chain traversal, allocation, and free. Entries are always read as 32-bit
// FAT32 cells; FAT12 and FAT16 cell widths are not decoded. Mutation is
// FAT32-only: every FAT write on a FAT12/16 volume is refused.
type table struct {
	handle *hostfile.Handle
	geo    *Geometry
}

func newTable(handle *hostfile.Handle, geo *Geometry) *table {
	return &table{handle: handle, geo: geo}
}

func (t *table) requireFAT32() error {
	if t.geo.Variant != FAT32 {
		return errs.NewDriverErrorWithMessage(
			errs.KindUnsupported, "FAT mutation is only supported on FAT32 volumes")
	}
	return nil
}

func (t *table) entryByteOffset(cluster uint32) int64 {
	return int64(t.geo.FATStartSector)*int64(t.geo.BytesPerSector) + int64(cluster)*4
}

// GetNextCluster reads the raw FAT32 entry for `cluster`: 4 bytes,
// little-endian, masked to the low 28 bits.
func (t *table) GetNextCluster(cluster uint32) (uint32, error) {
	buf := make([]byte, 4)
	if err := t.handle.ReadAt(t.entryByteOffset(cluster), buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf) & fat32EntryMask, nil
}

// GetChain follows the cluster chain starting at `first` until an
// end-of-chain sentinel, returning the ordered list including `first`.
// Fails on cycle if the chain grows past count_of_clusters.
func (t *table) GetChain(first uint32) ([]uint32, error) {
	chain := []uint32{first}
	current := first
	limit := t.geo.CountOfClusters

	for {
		next, err := t.GetNextCluster(current)
		if err != nil {
			return nil, err
		}
		if IsEndOfChain(next) {
			return chain, nil
		}
		chain = append(chain, next)
		current = next
		if uint32(len(chain)) > limit {
			return nil, errs.NewDriverErrorWithMessage(
				errs.KindInvalidData, "cluster chain exceeds volume size; likely a cycle")
		}
	}
}

// SetClusterEntry writes `value` little-endian into every FAT copy that
// the active-FAT policy says should carry it: bit 7 of ext_flags means
// "only one FAT copy is active", identified by the low 4 bits; otherwise
// all NumFATs copies are written.
func (t *table) SetClusterEntry(cluster, value uint32) error {
	if err := t.requireFAT32(); err != nil {
		return err
	}

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value&fat32EntryMask)

	fatSize := t.fatSizeSectors()

	if t.geo.ExtFlags&0x80 != 0 {
		activeFAT := uint32(t.geo.ExtFlags & 0x0F)
		offset := int64(t.geo.FATStartSector+activeFAT*fatSize)*int64(t.geo.BytesPerSector) + int64(cluster)*4
		return t.handle.WriteAt(offset, buf)
	}

	for k := uint32(0); k < uint32(t.geo.NumFATs); k++ {
		offset := int64(t.geo.FATStartSector+k*fatSize)*int64(t.geo.BytesPerSector) + int64(cluster)*4
		if err := t.handle.WriteAt(offset, buf); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) fatSizeSectors() uint32 {
	if t.geo.FATSz32 != 0 {
		return t.geo.FATSz32
	}
	return uint32(t.geo.FATSz16)
}

// AllocateCluster scans the primary FAT from cluster index 3 upward for a
// free (zero) entry, marks it end-of-chain, and optionally links it after
// `lastCluster`. Cluster 2 is skipped so the root cluster can never be
// handed out even on a volume whose FAT was never initialized.
func (t *table) AllocateCluster(lastCluster uint32, isFirst bool) (uint32, error) {
	if err := t.requireFAT32(); err != nil {
		return 0, err
	}

	for clus := firstAllocatableClus; clus <= t.geo.MaxValidCluster; clus++ {
		value, err := t.GetNextCluster(clus)
		if err != nil {
			return 0, err
		}
		if value != 0 {
			continue
		}

		if err := t.SetClusterEntry(clus, endOfChainMarker); err != nil {
			return 0, err
		}
		if !isFirst {
			if err := t.SetClusterEntry(lastCluster, clus); err != nil {
				return 0, err
			}
		}
		return clus, nil
	}

	return 0, errs.NewDriverErrorWithMessage(errs.KindOutOfSpace, "no free cluster in FAT")
}

// FreeCluster truncates a chain: if both arguments are real (non-root)
// clusters, `lastCluster` becomes the new chain tail (end-of-chain) and
// `cluster` is freed; if only `cluster` is real, it alone is freed.
// Freeing the root cluster fails. Freeing an entire chain is the
// caller's responsibility, iterating from the tail.
func (t *table) FreeCluster(lastCluster, cluster uint32) error {
	if cluster <= reservedRootCluster {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "cannot free root cluster")
	}

	if lastCluster > reservedRootCluster {
		if err := t.SetClusterEntry(lastCluster, endOfChainMarker); err != nil {
			return err
		}
	}
	return t.SetClusterEntry(cluster, 0)
}
