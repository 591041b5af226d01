// Package tables holds the small reference tables the CLI and diagnostics
// consult: MBR partition-type names and predefined floppy/disk geometries,
// both loaded from embedded CSV data.
package tables

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// PartitionType names an MBR partition-table type byte, for the CLI's
// `list` diagnostics output.
type PartitionType struct {
	Code uint8  `csv:"code"`
	Name string `csv:"name"`
}

//go:embed partition-types.csv
var partitionTypesRawCSV string

var partitionTypesByCode map[uint8]PartitionType

func init() {
	partitionTypesByCode = make(map[uint8]PartitionType)
	err := gocsv.UnmarshalToCallback(
		strings.NewReader(partitionTypesRawCSV),
		func(row PartitionType) error {
			if _, exists := partitionTypesByCode[row.Code]; exists {
				return fmt.Errorf("duplicate partition type code 0x%02X", row.Code)
			}
			partitionTypesByCode[row.Code] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// PartitionTypeName returns the human-readable name for an MBR partition
// type byte, or "unknown" if the code is not in the table.
func PartitionTypeName(code uint8) string {
	if row, ok := partitionTypesByCode[code]; ok {
		return row.Name
	}
	return "unknown"
}

// DiskGeometry is a named, predefined floppy/disk geometry preset, used by
// the CLI's create-image command to size a new image from a preset slug
// like "1.44mb" instead of requiring the caller to spell out every BPB
// field.
type DiskGeometry struct {
	Name              string `csv:"name"`
	Slug              string `csv:"slug"`
	BytesPerSector    uint16 `csv:"bytes_per_sector"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	TotalSectors      uint32 `csv:"total_sectors"`
}

//go:embed disk-geometries.csv
var diskGeometriesRawCSV string

var diskGeometriesBySlug map[string]DiskGeometry

func init() {
	diskGeometriesBySlug = make(map[string]DiskGeometry)
	err := gocsv.UnmarshalToCallback(
		strings.NewReader(diskGeometriesRawCSV),
		func(row DiskGeometry) error {
			if _, exists := diskGeometriesBySlug[row.Slug]; exists {
				return fmt.Errorf("duplicate disk geometry slug %q", row.Slug)
			}
			diskGeometriesBySlug[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// GetPredefinedDiskGeometry looks up a named geometry preset by slug
// (e.g. "1.44mb").
func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	if g, ok := diskGeometriesBySlug[slug]; ok {
		return g, nil
	}
	return DiskGeometry{}, fmt.Errorf("no predefined disk geometry exists with slug %q", slug)
}

// ListDiskGeometrySlugs returns every known preset slug, sorted for stable
// CLI help/listing output.
func ListDiskGeometrySlugs() []string {
	slugs := make([]string, 0, len(diskGeometriesBySlug))
	for slug := range diskGeometriesBySlug {
		slugs = append(slugs, slug)
	}
	for i := 1; i < len(slugs); i++ {
		for j := i; j > 0 && slugs[j-1] > slugs[j]; j-- {
			slugs[j-1], slugs[j] = slugs[j], slugs[j-1]
		}
	}
	return slugs
}
