// Package mbr implements the MBR partition-table parser: it reads the
// four 16-byte partition records at bytes 446..510 of a raw disk image
// and instantiates a fat.FileSystem engine over each recognized FAT
// partition.
package mbr

import (
	"encoding/binary"
	"fmt"
	"io"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/mhaas/imgtool/errs"
	"github.com/mhaas/imgtool/fat"
	"github.com/mhaas/imgtool/hostfile"
)

const (
	partitionTableOffset = 446
	partitionRecordSize  = 16
	partitionCount       = 4
)

// Partition is one decoded 16-byte MBR partition-table record.
type Partition struct {
	BootableSign byte
	StartCHS     [3]byte
	FSType       byte
	EndCHS       [3]byte
	StartLBA     uint32
	SizeSectors  uint32
}

// bootable reports whether this record's boot indicator is one of the two
// values the parser recognizes (0x00 not-bootable, 0x80 bootable); any
// other value marks an unused or non-standard slot.
func (p Partition) bootable() bool {
	return p.BootableSign == 0x00 || p.BootableSign == 0x80
}

// recognizedFATTypes are the MBR partition-type bytes this engine treats
// as FAT volumes.
var recognizedFATTypes = map[byte]bool{
	0x01: true, // FAT12
	0x04: true, // FAT16 <32M
	0x06: true, // FAT16
	0x0B: true, // FAT32 (CHS)
	0x0C: true, // FAT32 (LBA)
	0x0E: true, // FAT16 (LBA)
}

// IsFAT reports whether this partition's type byte is one this engine
// knows how to mount as a FAT volume.
func (p Partition) IsFAT() bool {
	return recognizedFATTypes[p.FSType]
}

// decodePartition parses one 16-byte MBR partition-table record.
func decodePartition(raw []byte) Partition {
	return Partition{
		BootableSign: raw[0],
		StartCHS:     [3]byte{raw[1], raw[2], raw[3]},
		FSType:       raw[4],
		EndCHS:       [3]byte{raw[5], raw[6], raw[7]},
		StartLBA:     binary.LittleEndian.Uint32(raw[8:12]),
		SizeSectors:  binary.LittleEndian.Uint32(raw[12:16]),
	}
}

// ReadTable reads and decodes the four MBR partition-table records from
// `stream`, which must be the whole disk image (not partition-relative).
func ReadTable(stream io.ReadSeeker) ([partitionCount]Partition, error) {
	var table [partitionCount]Partition

	if _, err := stream.Seek(partitionTableOffset, io.SeekStart); err != nil {
		return table, errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}

	raw := make([]byte, partitionRecordSize*partitionCount)
	if _, err := io.ReadFull(stream, raw); err != nil {
		return table, errs.NewDriverErrorWithMessage(errs.KindIO, err.Error())
	}

	for i := 0; i < partitionCount; i++ {
		table[i] = decodePartition(raw[i*partitionRecordSize : (i+1)*partitionRecordSize])
	}
	return table, nil
}

// Mounted is one successfully-mounted FAT partition, named "p"+index in
// mount order.
type Mounted struct {
	Name      string
	Partition Partition
	FS        *fat.FileSystem
}

// MountAll reads the partition table from `stream` and instantiates a
// fat.FileSystem over every record whose boot indicator is 0x00 or 0x80
// and whose type byte is a recognized FAT type.
// Per-partition mount failures (a malformed BPB on an otherwise
// recognized-type partition, for instance) are aggregated with
// github.com/hashicorp/go-multierror rather than abandoning the scan after
// the first failure, since independent partitions should each get an
// independent report.
func MountAll(stream io.ReadWriteSeeker) ([]Mounted, error) {
	table, err := ReadTable(stream)
	if err != nil {
		return nil, err
	}

	var mounted []Mounted
	var errAcc *multierror.Error
	// next is assigned per successful mount, not per table slot: a skipped
	// or unrecognized slot leaves no gap in the "p0", "p1", ... sequence.
	next := 0

	for _, p := range table {
		if !p.bootable() || !p.IsFAT() {
			continue
		}

		handle := hostfile.Open(stream, int64(p.StartLBA)*512, int64(p.SizeSectors)*512)
		fs, initErr := fat.Init(handle, 0)
		if initErr != nil {
			errAcc = multierror.Append(errAcc, fmt.Errorf("partition at LBA %d: %w", p.StartLBA, initErr))
			continue
		}

		mounted = append(mounted, Mounted{
			Name:      fmt.Sprintf("p%d", next),
			Partition: p,
			FS:        fs,
		})
		next++
	}

	if len(mounted) == 0 && errAcc == nil {
		return nil, errs.NewDriverErrorWithMessage(
			errs.KindNotFound, "no valid FAT partition found on the disk")
	}

	return mounted, errAcc.ErrorOrNil()
}
