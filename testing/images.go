// Package testing provides shared fixtures for building in-memory disk
// images used by the tests of the fat, mbr, and hostfile packages.
package testing

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// BlankImage returns a zeroed, in-memory seekable stream of the given size.
// Writes to it do not touch any file on disk.
func BlankImage(t *testing.T, size int) io.ReadWriteSeeker {
	require.Greater(t, size, 0, "image size must be positive")
	return bytesextra.NewReadWriteSeeker(make([]byte, size))
}

// FAT32GeometryOptions describes the handful of BPB fields a test usually
// wants to control; everything else is filled in with conventional
// defaults matching a small FAT32 volume.
type FAT32GeometryOptions struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectorCnt uint16
	NumFATs           uint8
	FATSize32         uint32
	TotalSectors32    uint32
	RootCluster       uint32
}

// DefaultFAT32Geometry returns small-but-valid FAT32 geometry defaults.
func DefaultFAT32Geometry() FAT32GeometryOptions {
	return FAT32GeometryOptions{
		BytesPerSector:    512,
		SectorsPerCluster: 8,
		ReservedSectorCnt: 32,
		NumFATs:           2,
		FATSize32:         1009,
		TotalSectors32:    1048576,
		RootCluster:       2,
	}
}

// WriteFAT32BootSector writes a minimal but well-formed FAT32 BPB/boot
// sector to `stream` at byte offset 0. It does not initialize the FAT or
// root directory cluster; callers needing a fully bootstrapped image
// should use fat.Format (see the fat package's own tests) instead.
func WriteFAT32BootSector(t *testing.T, stream io.WriteSeeker, opts FAT32GeometryOptions) {
	sector := make([]byte, 512)

	copy(sector[0:3], []byte{0xEB, 0x58, 0x90})
	copy(sector[3:11], []byte("IMGTOOL "))
	binary.LittleEndian.PutUint16(sector[11:13], opts.BytesPerSector)
	sector[13] = opts.SectorsPerCluster
	binary.LittleEndian.PutUint16(sector[14:16], opts.ReservedSectorCnt)
	sector[16] = opts.NumFATs
	// root_ent_cnt, tot_sec16, fat_sz16 stay zero: this is FAT32.
	sector[21] = 0xF8 // media
	binary.LittleEndian.PutUint32(sector[32:36], opts.TotalSectors32)
	binary.LittleEndian.PutUint32(sector[36:40], opts.FATSize32)
	binary.LittleEndian.PutUint32(sector[44:48], opts.RootCluster)
	sector[510] = 0x55
	sector[511] = 0xAA

	_, err := stream.Seek(0, io.SeekStart)
	require.NoError(t, err)
	n, err := stream.Write(sector)
	require.NoError(t, err)
	require.Equal(t, 512, n)
}
