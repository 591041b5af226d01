package fat

import (
	"encoding/binary"

	"github.com/mhaas/imgtool/errs"
)

// Variant identifies which FAT cell width and allocation rules a volume
// uses. It is determined solely by the volume's cluster count.
type Variant int

const (
	FAT12 Variant = iota
	FAT16
	FAT32
)

func (v Variant) String() string {
	switch v {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// DetermineVariant classifies a volume purely from its cluster count,
// using the normative FAT thresholds: below 4085 clusters is FAT12,
// below 65525 is FAT16, anything else is FAT32.
func DetermineVariant(countOfClusters uint32) Variant {
	switch {
	case countOfClusters < 4085:
		return FAT12
	case countOfClusters < 65525:
		return FAT16
	default:
		return FAT32
	}
}

// BPB holds the subset of BIOS Parameter Block fields this engine reads
// and needs, decoded from the 512-byte boot sector. Field names follow
// the conventional BPB mnemonics.
type BPB struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectorCnt uint16
	NumFATs           uint8
	RootEntCnt        uint16
	TotSec16          uint16
	FATSz16           uint16
	TotSec32          uint32
	FATSz32           uint32
	ExtFlags          uint16
	RootCluster       uint32
}

const bpbSectorSize = 512

// DecodeBPB parses exactly one 512-byte boot sector. This is the only
// place the boot sector is ever read; the geometry it derives is
// immutable thereafter.
func DecodeBPB(sector []byte) (*BPB, error) {
	if len(sector) != bpbSectorSize {
		return nil, errs.NewDriverErrorWithMessage(
			errs.KindInvalidData, "boot sector must be exactly 512 bytes")
	}

	b := &BPB{
		BytesPerSector:    binary.LittleEndian.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		ReservedSectorCnt: binary.LittleEndian.Uint16(sector[14:16]),
		NumFATs:           sector[16],
		RootEntCnt:        binary.LittleEndian.Uint16(sector[17:19]),
		TotSec16:          binary.LittleEndian.Uint16(sector[19:21]),
		FATSz16:           binary.LittleEndian.Uint16(sector[22:24]),
		TotSec32:          binary.LittleEndian.Uint32(sector[32:36]),
		FATSz32:           binary.LittleEndian.Uint32(sector[36:40]),
		ExtFlags:          binary.LittleEndian.Uint16(sector[40:42]),
		RootCluster:       binary.LittleEndian.Uint32(sector[44:48]),
	}

	if !isValidBytesPerSector(b.BytesPerSector) {
		return nil, errs.NewDriverErrorWithMessage(
			errs.KindInvalidData, "bytes per sector is not a power of two in [512, 4096]")
	}
	if !isPowerOfTwoUpTo128(b.SectorsPerCluster) {
		return nil, errs.NewDriverErrorWithMessage(
			errs.KindInvalidData, "sectors per cluster is not a power of two in [1, 128]")
	}
	if b.NumFATs == 0 {
		return nil, errs.NewDriverErrorWithMessage(
			errs.KindInvalidData, "num_fats must be nonzero")
	}

	return b, nil
}

// EncodeBPB packs `b` into a fresh 512-byte boot sector, filling in the
// fixed boot-jump bytes, OEM name, media descriptor, and 0x55AA signature
// that DecodeBPB does not itself validate but that a well-formed image
// carries. Used by Format to lay down a brand-new volume.
func EncodeBPB(b *BPB) []byte {
	sector := make([]byte, bpbSectorSize)

	copy(sector[0:3], []byte{0xEB, 0x58, 0x90})
	copy(sector[3:11], []byte("IMGTOOL "))
	binary.LittleEndian.PutUint16(sector[11:13], b.BytesPerSector)
	sector[13] = b.SectorsPerCluster
	binary.LittleEndian.PutUint16(sector[14:16], b.ReservedSectorCnt)
	sector[16] = b.NumFATs
	binary.LittleEndian.PutUint16(sector[17:19], b.RootEntCnt)
	binary.LittleEndian.PutUint16(sector[19:21], b.TotSec16)
	sector[21] = 0xF8
	binary.LittleEndian.PutUint16(sector[22:24], b.FATSz16)
	binary.LittleEndian.PutUint32(sector[32:36], b.TotSec32)
	binary.LittleEndian.PutUint32(sector[36:40], b.FATSz32)
	binary.LittleEndian.PutUint16(sector[40:42], b.ExtFlags)
	binary.LittleEndian.PutUint32(sector[44:48], b.RootCluster)
	sector[510] = 0x55
	sector[511] = 0xAA

	return sector
}

func isValidBytesPerSector(v uint16) bool {
	switch v {
	case 512, 1024, 2048, 4096:
		return true
	default:
		return false
	}
}

func isPowerOfTwoUpTo128(v uint8) bool {
	if v == 0 || v > 128 {
		return false
	}
	return v&(v-1) == 0
}

// Geometry holds everything derived from the BPB that the rest of the
// engine needs.
type Geometry struct {
	BPB

	BytesPerCluster   uint32
	FATStartSector    uint32
	DataStartSector   uint32
	TotalSectors      uint32
	DataSectors       uint32
	CountOfClusters   uint32
	MaxValidCluster   uint32
	Variant           Variant
	PartitionStartLBA uint32
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// DeriveGeometry computes the geometry fields from a decoded BPB.
// `partitionStartLBA` is the sector
// offset of this partition's start within the image (0 for an unpartitioned
// image), added once here.
func DeriveGeometry(b *BPB, partitionStartLBA uint32) (*Geometry, error) {
	fatSize := b.FATSz16
	fatSize32 := uint32(fatSize)
	if fatSize32 == 0 {
		fatSize32 = b.FATSz32
	}

	totalSec := uint32(b.TotSec16)
	if totalSec == 0 {
		totalSec = b.TotSec32
	}

	rootDirSectors := ceilDiv(uint32(b.RootEntCnt)*32, uint32(b.BytesPerSector))

	fatStart := partitionStartLBA + uint32(b.ReservedSectorCnt) + rootDirSectors
	dataStart := fatStart + uint32(b.NumFATs)*fatSize32

	if totalSec < dataStart-partitionStartLBA {
		return nil, errs.NewDriverErrorWithMessage(
			errs.KindInvalidData, "total sector count underflows data region")
	}
	dataSec := totalSec - (dataStart - partitionStartLBA)

	countOfClusters := dataSec / uint32(b.SectorsPerCluster)

	g := &Geometry{
		BPB:               *b,
		BytesPerCluster:   uint32(b.BytesPerSector) * uint32(b.SectorsPerCluster),
		FATStartSector:    fatStart,
		DataStartSector:   dataStart,
		TotalSectors:      totalSec,
		DataSectors:       dataSec,
		CountOfClusters:   countOfClusters,
		MaxValidCluster:   countOfClusters + 1,
		Variant:           DetermineVariant(countOfClusters),
		PartitionStartLBA: partitionStartLBA,
	}
	return g, nil
}

// ClusterToByteOffset maps a cluster number to its absolute byte offset
// in the data region. Cluster numbers below 2 are invalid input.
func (g *Geometry) ClusterToByteOffset(cluster uint32) (int64, error) {
	if cluster < 2 {
		return 0, errs.NewDriverErrorWithMessage(
			errs.KindInvalidInput, "cluster numbers below 2 are reserved")
	}
	sector := (cluster-2)*uint32(g.SectorsPerCluster) + g.DataStartSector
	return int64(sector) * int64(g.BytesPerSector), nil
}

// EntriesPerCluster returns the number of 32-byte directory slots that fit
// in one cluster.
func (g *Geometry) EntriesPerCluster() uint32 {
	return g.BytesPerCluster / 32
}
