package fat_test

import (
	"testing"
	"time"

	"github.com/mhaas/imgtool/fat"
	"github.com/stretchr/testify/assert"
)

func TestPackDate(t *testing.T) {
	tm := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	got := fat.PackDate(tm)
	want := uint16(((2024 - 1980) << 9) | (6 << 5) | 1)
	assert.Equal(t, want, got)
}

func TestPackTime(t *testing.T) {
	tm := time.Date(2024, time.June, 1, 12, 34, 56, 0, time.UTC)
	got := fat.PackTime(tm)
	want := uint16((12 << 11) | (34 << 5) | (56 / 2))
	assert.Equal(t, want, got)
}

func TestPackTimeTenthRecoversOddSecond(t *testing.T) {
	even := time.Date(2024, time.June, 1, 12, 34, 56, 700_000_000, time.UTC)
	odd := time.Date(2024, time.June, 1, 12, 34, 57, 700_000_000, time.UTC)

	assert.Equal(t, uint8(7), fat.PackTimeTenth(even))
	assert.Equal(t, uint8(107), fat.PackTimeTenth(odd))
}

func TestUnpackDateTimeRoundTrips(t *testing.T) {
	for year := 1980; year <= 2107; year += 31 {
		for _, tm := range []time.Time{
			time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(year, time.December, 31, 23, 58, 58, 0, time.UTC),
			time.Date(year, time.July, 15, 12, 34, 56, 0, time.UTC),
		} {
			date := fat.PackDate(tm)
			clock := fat.PackTime(tm)
			tenth := fat.PackTimeTenth(tm)

			got := fat.UnpackDateTime(date, clock, tenth)
			assert.Equal(t, tm.Truncate(time.Second), got, "round trip for %v", tm)
		}
	}
}
