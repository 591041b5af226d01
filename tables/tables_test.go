package tables_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhaas/imgtool/tables"
)

func TestPartitionTypeNameKnownCodes(t *testing.T) {
	assert.Equal(t, "FAT32 (LBA)", tables.PartitionTypeName(0x0C))
	assert.Equal(t, "FAT16", tables.PartitionTypeName(0x06))
}

func TestPartitionTypeNameUnknownCode(t *testing.T) {
	assert.Equal(t, "unknown", tables.PartitionTypeName(0xFE))
}

func TestGetPredefinedDiskGeometry(t *testing.T) {
	g, err := tables.GetPredefinedDiskGeometry("1.44mb")
	require.NoError(t, err)
	assert.Equal(t, uint16(512), g.BytesPerSector)
	assert.Equal(t, uint32(2880), g.TotalSectors)
}

func TestGetPredefinedDiskGeometryUnknownSlug(t *testing.T) {
	_, err := tables.GetPredefinedDiskGeometry("does-not-exist")
	assert.Error(t, err)
}

func TestListDiskGeometrySlugsIsSorted(t *testing.T) {
	slugs := tables.ListDiskGeometrySlugs()
	require.NotEmpty(t, slugs)
	for i := 1; i < len(slugs); i++ {
		assert.LessOrEqual(t, slugs[i-1], slugs[i])
	}
}
