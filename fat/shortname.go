package fat

import (
	"strings"

	"github.com/mhaas/imgtool/errs"
)

// NT_RES bits recording whether the base/extension were stored lowercase.
const (
	ntResBaseLower = 0x08
	ntResExtLower  = 0x10
)

// forbiddenShortNameChars are characters that may legally appear in a
// long name but never in an 8.3 short name.
const forbiddenShortNameChars = "$%'-_@`~!(){}^#&"

// ShortName is the decoded, logical form of an 8.3 name: an 11-byte field
// split back into base/ext with surrounding padding removed, plus the
// case-restoration flags that belong in NT_RES.
type ShortName struct {
	Base  string // up to 8 chars, uppercase
	Ext   string // up to 3 chars, uppercase
	NTRes uint8
}

// CheckShortName validates a proposed 8.3 name: ASCII only, no forbidden
// symbols, single dot separating base (<=8) from extension (<=3).
func CheckShortName(name string) error {
	for _, r := range name {
		if r > 127 {
			return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "short name must be ASCII")
		}
	}
	if strings.ContainsAny(name, forbiddenShortNameChars) {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "short name contains a forbidden character")
	}

	base, ext, hasExt := splitOnce(name, '.')
	if len(base) == 0 || len(base) > 8 {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "short name base must be 1-8 characters")
	}
	if hasExt && len(ext) > 3 {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "short name extension must be at most 3 characters")
	}
	if strings.ContainsRune(ext, '.') {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "short name may contain only one dot")
	}

	baseCaps := checkCaseFlags(base)
	extCaps := checkCaseFlags(ext)
	if baseCaps == 0b11 || extCaps == 0b11 {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "short name mixes upper and lower case")
	}

	return nil
}

// splitOnce splits `name` on the first occurrence of `sep`, reporting
// whether a separator was found.
func splitOnce(name string, sep byte) (before, after string, found bool) {
	idx := strings.IndexByte(name, sep)
	if idx < 0 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}

// checkCaseFlags returns a 2-bit field: bit 0 set if any lowercase ASCII
// letter is present, bit 1 set if any uppercase ASCII letter is present.
// 0b11 means both cases occur in the same segment.
func checkCaseFlags(segment string) uint8 {
	var flags uint8
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z':
			flags |= 0b01
		case r >= 'A' && r <= 'Z':
			flags |= 0b10
		}
	}
	return flags
}

// NewShortName validates and decomposes `name` into its canonical
// uppercase Base/Ext form plus NT_RES case-restoration bits.
func NewShortName(name string) (ShortName, error) {
	if err := CheckShortName(name); err != nil {
		return ShortName{}, err
	}

	base, ext, _ := splitOnce(name, '.')

	var ntres uint8
	if checkCaseFlags(base) == 0b01 {
		ntres |= ntResBaseLower
	}
	if checkCaseFlags(ext) == 0b01 {
		ntres |= ntResExtLower
	}

	return ShortName{
		Base:  strings.ToUpper(base),
		Ext:   strings.ToUpper(ext),
		NTRes: ntres,
	}, nil
}

// Encode11 packs the short name into the 11-byte on-disk field: base
// space-padded to 8 bytes, extension space-padded to 3 bytes.
func (s ShortName) Encode11() [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], s.Base)
	copy(out[8:11], s.Ext)
	return out
}

// DecodeShortName11 reconstructs the logical name from the raw 11-byte
// field and the NT_RES byte, restoring lowercase where BASE_L/EXT_L are
// set. It does not interpret the 0xE5/0x05/0x00 first-byte sentinels;
// callers handle those before calling this (see dirent.go).
func DecodeShortName11(raw [11]byte, ntres uint8) string {
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")

	if ntres&ntResBaseLower != 0 {
		base = strings.ToLower(base)
	}
	if ntres&ntResExtLower != 0 {
		ext = strings.ToLower(ext)
	}

	if ext == "" {
		return base
	}
	return base + "." + ext
}

// ChecksumShortName11 implements the VFAT rotate-add checksum over the 11
// raw bytes of the short-name field. This value is required in every long
// entry that precedes the short entry.
func ChecksumShortName11(raw [11]byte) uint8 {
	var sum uint8
	for _, b := range raw {
		var carry uint8
		if sum&1 != 0 {
			carry = 0x80
		}
		sum = carry + (sum >> 1) + b
	}
	return sum
}
