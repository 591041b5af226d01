package fat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhaas/imgtool/fat"
	"github.com/mhaas/imgtool/hostfile"
	imgtesting "github.com/mhaas/imgtool/testing"
)

// formatSmallVolume builds the smallest image that still classifies as
// FAT32 under the normative cluster-count threshold
// (>= 65525): with 1 sector per cluster that forces a data region of
// 66000 clusters, so the backing image is tens of megabytes even for a
// file-count-of-one test fixture.
func formatSmallVolume(t *testing.T) *fat.FileSystem {
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

	fs, err := fat.Format(handle, fat.FormatParams{
		BytesPerSector:    opts.BytesPerSector,
		SectorsPerCluster: opts.SectorsPerCluster,
		ReservedSectorCnt: opts.ReservedSectorCnt,
		NumFATs:           opts.NumFATs,
		FATSize32:         opts.FATSize32,
		TotalSectors32:    opts.TotalSectors32,
		PartitionStartLBA: 0,
	})
	require.NoError(t, err)
	require.Equal(t, fat.FAT32, fs.Geometry().Variant)
	return fs
}

func TestCreateFileShortEntryBoundaryScenario(t *testing.T) {
	fs := formatSmallVolume(t)

	modTime := time.Date(2024, time.June, 1, 12, 34, 56, 700_000_000, time.UTC)
	req, err := fs.CreateFile("/HELLO.TXT", fat.TypeFile, false, modTime, 0)
	require.NoError(t, err)

	entries, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "HELLO.TXT", entries[0].Name)
	assert.Equal(t, fat.TypeFile, entries[0].FileType)

	reopened, err := fs.Open("/HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, req.Node, reopened.Node)
}

func TestCreateFileLongNameGetsShortAlias(t *testing.T) {
	fs := formatSmallVolume(t)

	modTime := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	_, err := fs.CreateFile("/файл.txt", fat.TypeFile, false, modTime, 0)
	require.NoError(t, err)

	entries, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "файл.txt", entries[0].Name)
}

// TestCreateFileLongNameWithShortNameForbiddenCharGetsSuffixedAlias covers
// an all-ASCII long name containing "-", which is legal in a long name but
// forbidden in a short one: creation must take the long-name path and the
// entry must be listed and reopened under its long name. The content of
// the synthesized alias is checked by
// TestSynthesizeShortNameStripsShortNameForbiddenChars.
func TestCreateFileLongNameWithShortNameForbiddenCharGetsSuffixedAlias(t *testing.T) {
	fs := formatSmallVolume(t)

	modTime := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	req, err := fs.CreateFile("/my-file.txt", fat.TypeFile, false, modTime, 0)
	require.NoError(t, err)

	entries, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "my-file.txt", entries[0].Name)

	reopened, err := fs.Open("/my-file.txt")
	require.NoError(t, err)
	assert.Equal(t, req.Node, reopened.Node)
}

func TestWriteGrowsChainAndFileSize(t *testing.T) {
	fs := formatSmallVolume(t)

	modTime := time.Now()
	req, err := fs.CreateFile("/BIG.DAT", fat.TypeFile, false, modTime, 0)
	require.NoError(t, err)

	buf := make([]byte, 10000)
	for i := range buf {
		buf[i] = byte(i)
	}

	n, err := fs.Write(&req, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	entries, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(len(buf)), entries[0].Size)

	readReq, err := fs.Open("/BIG.DAT")
	require.NoError(t, err)
	out := make([]byte, len(buf))
	n, err = fs.Read(&readReq, out)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, buf, out)
}

func TestWriteSameBufferTwiceIsIdempotent(t *testing.T) {
	fs := formatSmallVolume(t)

	req, err := fs.CreateFile("/IDEMP.DAT", fat.TypeFile, false, time.Now(), 0)
	require.NoError(t, err)

	buf := []byte("the quick brown fox jumps over the lazy dog")

	req1 := req
	_, err = fs.Write(&req1, buf)
	require.NoError(t, err)

	req2 := req
	_, err = fs.Write(&req2, buf)
	require.NoError(t, err)

	readReq, err := fs.Open("/IDEMP.DAT")
	require.NoError(t, err)
	out := make([]byte, len(buf))
	_, err = fs.Read(&readReq, out)
	require.NoError(t, err)
	assert.Equal(t, buf, out)
}

func TestDeleteFileTombstonesAndSearchFails(t *testing.T) {
	fs := formatSmallVolume(t)

	req, err := fs.CreateFile("/GONE.TXT", fat.TypeFile, false, time.Now(), 0)
	require.NoError(t, err)

	require.NoError(t, fs.DeleteFile(req))

	_, err = fs.Open("/GONE.TXT")
	assert.Error(t, err)
}

func TestCreateDirectoryAndNestedFile(t *testing.T) {
	fs := formatSmallVolume(t)

	_, err := fs.CreateFile("/SUBDIR", fat.TypeDir, false, time.Now(), 0)
	require.NoError(t, err)

	_, err = fs.CreateFile("/SUBDIR/NESTED.TXT", fat.TypeFile, false, time.Now(), 0)
	require.NoError(t, err)

	entries, err := fs.ListDir("/SUBDIR")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "NESTED.TXT", entries[0].Name)
}
