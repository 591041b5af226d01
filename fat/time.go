package fat

import "time"

// PackDate packs a date into FAT's on-disk u16 form:
// ((year-1980) << 9) | (month << 5) | day.
func PackDate(t time.Time) uint16 {
	year := uint16(t.Year() - 1980)
	month := uint16(t.Month())
	day := uint16(t.Day())
	return (year << 9) | (month << 5) | day
}

// PackTime packs a time of day into FAT's on-disk u16 form:
// (hour << 11) | (minute << 5) | (second / 2).
func PackTime(t time.Time) uint16 {
	hour := uint16(t.Hour())
	minute := uint16(t.Minute())
	second := uint16(t.Second() / 2)
	return (hour << 11) | (minute << 5) | second
}

// PackTimeTenth implements the sub-second tenths field. PackTime divides
// seconds by two (2-second resolution), which drops the odd-second bit;
// this field recovers it by adding 100 when the true second count was
// odd, giving a combined range of 0-199.
func PackTimeTenth(t time.Time) uint8 {
	tenths := t.Nanosecond() / 100_000_000
	if t.Second()%2 != 0 {
		tenths += 100
	}
	return uint8(tenths)
}

// UnpackDateTime reconstructs a time.Time from packed FAT date/time/tenth
// fields. Round-trips second-aligned for any date in [1980-01-01,
// 2107-12-31].
func UnpackDateTime(date, clock uint16, tenth uint8) time.Time {
	year := int(date>>9) + 1980
	month := time.Month((date >> 5) & 0x0F)
	day := int(date & 0x1F)

	hour := int(clock >> 11)
	minute := int((clock >> 5) & 0x3F)
	second := int(clock&0x1F) * 2

	if tenth >= 100 {
		second++
		tenth -= 100
	}
	nanos := int(tenth) * 100_000_000

	return time.Date(year, month, day, hour, minute, second, nanos, time.UTC)
}
