package fat

import (
	"github.com/mhaas/imgtool/errs"
	"github.com/mhaas/imgtool/hostfile"
)

// reservedFATEntry0/1 are the conventional values written into the first
// two FAT32 entries on format: entry 0 carries the media descriptor in its
// low byte with the rest of its bits set, entry 1 is marked end-of-chain
// and doubles as the dirty-volume flag holder (never modified by this
// engine, which does not track a dirty bit).
const (
	reservedFATEntry0 uint32 = 0x0FFFFFF8
	reservedFATEntry1 uint32 = 0x0FFFFFFF
)

// FormatParams is the minimal set of geometry choices `Format` needs;
// everything else about the volume is derived from these.
type FormatParams struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectorCnt uint16
	NumFATs           uint8
	FATSize32         uint32
	TotalSectors32    uint32
	PartitionStartLBA uint32
}

// Format lays down a brand-new, empty FAT32 volume: the BPB, zeroed FAT
// copies with the two reserved entries and the root directory's
// end-of-chain marker populated, and a zeroed root directory cluster.
// It then mounts the freshly written volume via Init, exactly as a caller
// reopening the image later would.
func Format(handle *hostfile.Handle, p FormatParams) (*FileSystem, error) {
	bpb := &BPB{
		BytesPerSector:    p.BytesPerSector,
		SectorsPerCluster: p.SectorsPerCluster,
		ReservedSectorCnt: p.ReservedSectorCnt,
		NumFATs:           p.NumFATs,
		RootEntCnt:        0,
		TotSec16:          0,
		FATSz16:           0,
		TotSec32:          p.TotalSectors32,
		FATSz32:           p.FATSize32,
		ExtFlags:          0,
		RootCluster:       2,
	}

	if err := handle.WriteAt(int64(p.PartitionStartLBA)*bpbSectorSize, EncodeBPB(bpb)); err != nil {
		return nil, err
	}

	geo, err := DeriveGeometry(bpb, p.PartitionStartLBA)
	if err != nil {
		return nil, err
	}
	if geo.Variant != FAT32 {
		return nil, errs.NewDriverErrorWithMessage(errs.KindUnsupported, "Format only produces FAT32 volumes")
	}

	fatBytes := int64(p.FATSize32) * int64(p.BytesPerSector)
	zeroFAT := make([]byte, fatBytes)
	for k := uint8(0); k < p.NumFATs; k++ {
		fatOffset := int64(geo.FATStartSector+uint32(k)*p.FATSize32) * int64(p.BytesPerSector)
		if err := handle.WriteAt(fatOffset, zeroFAT); err != nil {
			return nil, err
		}
	}

	t := newTable(handle, geo)
	if err := t.SetClusterEntry(0, reservedFATEntry0); err != nil {
		return nil, err
	}
	if err := t.SetClusterEntry(1, reservedFATEntry1); err != nil {
		return nil, err
	}
	if err := t.SetClusterEntry(2, endOfChainMarker); err != nil {
		return nil, err
	}

	rootOffset, err := geo.ClusterToByteOffset(2)
	if err != nil {
		return nil, err
	}
	zeroRoot := make([]byte, geo.BytesPerCluster)
	if err := handle.WriteAt(rootOffset, zeroRoot); err != nil {
		return nil, err
	}

	return Init(handle, p.PartitionStartLBA)
}
