package mbr_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhaas/imgtool/fat"
	"github.com/mhaas/imgtool/hostfile"
	"github.com/mhaas/imgtool/mbr"
	imgtesting "github.com/mhaas/imgtool/testing"
)

func writePartitionRecord(raw []byte, index int, sign, fsType byte, startLBA, size uint32) {
	off := 446 + index*16
	raw[off] = sign
	raw[off+4] = fsType
	binary.LittleEndian.PutUint32(raw[off+8:off+12], startLBA)
	binary.LittleEndian.PutUint32(raw[off+12:off+16], size)
}

func TestReadTableDecodesRecognizedFATPartition(t *testing.T) {
	stream := imgtesting.BlankImage(t, 4096)
	raw := make([]byte, 4096)
	writePartitionRecord(raw, 0, 0x80, 0x0C, 1, 2000)
	_, err := stream.Write(raw)
	require.NoError(t, err)
	_, err = stream.Seek(0, 0)
	require.NoError(t, err)

	table, err := mbr.ReadTable(stream)
	require.NoError(t, err)

	assert.True(t, table[0].IsFAT())
	assert.Equal(t, uint32(1), table[0].StartLBA)
	assert.Equal(t, uint32(2000), table[0].SizeSectors)
	assert.False(t, table[1].IsFAT())
}

func TestMountAllMountsEachRecognizedPartition(t *testing.T) {
	// The partition must derive at least 65525 clusters to classify as
	// FAT32, which is what fat.Format insists on; with one sector per
	// cluster that means a data region of 66000 sectors.
	opts := imgtesting.DefaultFAT32Geometry()
	opts.SectorsPerCluster = 1
	opts.FATSize32 = 516
	opts.TotalSectors32 = uint32(opts.ReservedSectorCnt) +
		uint32(opts.NumFATs)*opts.FATSize32 + 66000

	imageBytes := int64(10+opts.TotalSectors32)*512 + 4096
	stream := imgtesting.BlankImage(t, int(imageBytes))

	handle := hostfile.Open(stream, 512*10, int64(opts.TotalSectors32)*512)
	_, err := fat.Format(handle, fat.FormatParams{
		BytesPerSector:    opts.BytesPerSector,
		SectorsPerCluster: opts.SectorsPerCluster,
		ReservedSectorCnt: opts.ReservedSectorCnt,
		NumFATs:           opts.NumFATs,
		FATSize32:         opts.FATSize32,
		TotalSectors32:    opts.TotalSectors32,
		PartitionStartLBA: 0,
	})
	require.NoError(t, err)

	// Sector 0 holds only the partition table; the partition itself starts
	// at LBA 10, so laying down a fresh MBR sector cannot clobber it.
	raw := make([]byte, 512)
	writePartitionRecord(raw, 0, 0x80, 0x0C, 10, opts.TotalSectors32)
	_, err = stream.Seek(0, 0)
	require.NoError(t, err)
	_, err = stream.Write(raw)
	require.NoError(t, err)

	mounted, err := mbr.MountAll(stream)
	require.NoError(t, err)
	require.Len(t, mounted, 1)
	assert.Equal(t, "p0", mounted[0].Name)
	assert.Equal(t, fat.FAT32, mounted[0].FS.Geometry().Variant)
}

func TestMountAllFailsWithNoFATPartitions(t *testing.T) {
	stream := imgtesting.BlankImage(t, 4096)

	_, err := mbr.MountAll(stream)
	assert.Error(t, err)
}
