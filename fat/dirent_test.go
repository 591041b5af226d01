package fat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhaas/imgtool/hostfile"
	imgtesting "github.com/mhaas/imgtool/testing"
)

// formatVolumeForDirentTest mirrors fat_test's formatSmallVolume helper
// (unexported test duplication is intentional: this file needs package-
// internal access to writeDirEntryBlocks and fs.root, which fs_test.go's
// external fat_test package cannot reach).
func formatVolumeForDirentTest(t *testing.T) *FileSystem {
	t.Helper()

	opts := imgtesting.DefaultFAT32Geometry()
	opts.SectorsPerCluster = 1
	opts.FATSize32 = 516
	const countOfClusters = 66000
	opts.TotalSectors32 = uint32(opts.ReservedSectorCnt) +
		uint32(opts.NumFATs)*opts.FATSize32 + countOfClusters

	imageBytes := int64(opts.TotalSectors32)*int64(opts.BytesPerSector) + 4096
	stream := imgtesting.BlankImage(t, int(imageBytes))

	handle := hostfile.Open(stream, 0, int64(opts.TotalSectors32)*int64(opts.BytesPerSector))

	fs, err := Format(handle, FormatParams{
		BytesPerSector:    opts.BytesPerSector,
		SectorsPerCluster: opts.SectorsPerCluster,
		ReservedSectorCnt: opts.ReservedSectorCnt,
		NumFATs:           opts.NumFATs,
		FATSize32:         opts.FATSize32,
		TotalSectors32:    opts.TotalSectors32,
	})
	require.NoError(t, err)
	return fs
}

// TestRealNameFirstByteUndoesE5Escape exercises the 0x05/0xE5 sentinel
// escape directly: a short entry is written with a raw name[0] of 0x05
// (the on-disk escape for a real leading 0xE5 byte) bypassing the normal
// ASCII-only CreateFile path, since the escape exists precisely for
// characters CreateFile's validators never produce on their own.
func TestRealNameFirstByteUndoesE5Escape(t *testing.T) {
	fs := formatVolumeForDirentTest(t)

	cluster, err := fs.table.AllocateCluster(0, true)
	require.NoError(t, err)

	entry := ShortDirEntry{
		Name: [11]byte{0x05, 'B', 'C', ' ', ' ', ' ', ' ', ' ', 'T', 'X', 'T'},
		Attr: AttrArchive,
	}
	entry.SetFirstCluster(cluster)

	_, err = fs.writeDirEntryBlocks(fs.root, [][32]byte{entry.Encode()})
	require.NoError(t, err)

	entries, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotEmpty(t, entries[0].Name)
	require.Equal(t, byte(0xE5), entries[0].Name[0],
		"decoded name must undo the 0x05 escape back to a real leading 0xE5 byte")
}
