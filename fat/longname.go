package fat

import (
	"strings"
	"unicode/utf16"

	"github.com/mhaas/imgtool/errs"
)

const (
	longEntryAttr        = 0x0F
	longEntryOrdLastBit  = 0x40
	longEntryCharsPerBlk = 13
	maxShortNameSuffix   = 999999
)

const forbiddenLongNameChars = "+,;[]"

// CheckLongName validates a long name: FAT32 only (checked by the caller,
// which knows the volume variant), length <=255 code units, and none of
// the characters that are forbidden even in a long name.
func CheckLongName(name string) error {
	if len(utf16.Encode([]rune(name))) > 255 {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "long name exceeds 255 UTF-16 code units")
	}
	if strings.ContainsAny(name, forbiddenLongNameChars) {
		return errs.NewDriverErrorWithMessage(errs.KindInvalidInput, "long name contains a forbidden character")
	}
	return nil
}

// longNameToShortNameCandidate derives the base/ext of an 8.3 alias:
// uppercase ASCII, replace non-ASCII with '_' (marking the result lossy),
// drop any character forbidden in a short name (also marking the result
// lossy, since a long name may legally contain characters like '-' or '~'
// that an 8.3 name may not), split on the first '.' for the base and the
// last '.' for the extension.
func longNameToShortNameCandidate(name string) (base, ext string, lossy bool) {
	upper := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			r -= 'a' - 'A'
		case r < 128:
			// fall through to the forbidden-char check below
		default:
			upper = append(upper, '_')
			lossy = true
			continue
		}
		if r < 128 && strings.ContainsRune(forbiddenShortNameChars, r) {
			lossy = true
			continue
		}
		upper = append(upper, r)
	}
	cleaned := string(upper)

	firstDot := strings.IndexByte(cleaned, '.')
	lastDot := strings.LastIndexByte(cleaned, '.')

	if firstDot < 0 {
		base = cleaned
		ext = ""
	} else {
		base = cleaned[:firstDot]
		ext = cleaned[lastDot+1:]
	}

	if len(base) > 8 {
		base = base[:8]
		lossy = true
	}
	if len(ext) > 3 {
		ext = ext[:3]
		lossy = true
	}
	return base, ext, lossy
}

// SynthesizeShortName produces an 8.3 alias for a long name, appending a
// ~N suffix until it no longer collides. `exists` reports whether a candidate
// 8.3 name (already uppercased, "BASE.EXT" form, no padding) already
// occupies a slot in the target directory.
func SynthesizeShortName(longName string, exists func(candidate string) bool) (ShortName, error) {
	base, ext, lossy := longNameToShortNameCandidate(longName)

	plain := base
	if ext != "" {
		plain = base + "." + ext
	}

	if !lossy && CheckShortName(plain) == nil && !exists(plain) {
		return ShortName{Base: base, Ext: ext}, nil
	}

	baseBytes := []byte(base)
	if len(baseBytes) > 8 {
		baseBytes = baseBytes[:8]
	}

	for n := 1; n <= maxShortNameSuffix; n++ {
		suffix := []byte("~" + itoa(n))

		candidateBase := make([]byte, 8)
		for i := range candidateBase {
			candidateBase[i] = ' '
		}
		keep := 8 - len(suffix)
		if keep > len(baseBytes) {
			keep = len(baseBytes)
		}
		if keep < 0 {
			keep = 0
		}
		copy(candidateBase, baseBytes[:keep])
		copy(candidateBase[keep:], suffix)

		candidateBaseStr := strings.TrimRight(string(candidateBase), " ")
		candidate := candidateBaseStr
		if ext != "" {
			candidate = candidateBaseStr + "." + ext
		}

		if !exists(candidate) {
			return ShortName{Base: candidateBaseStr, Ext: ext}, nil
		}
	}

	return ShortName{}, errs.NewDriverErrorWithMessage(
		errs.KindAlreadyExists, "exhausted all ~N short-name suffixes")
}

// itoa avoids importing strconv solely for one call site; kept tiny and
// local since the only input domain is 1..999999.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits [6]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// longNameChunks splits a long name's UTF-16 code units (plus terminator
// and 0xFFFF padding) into 13-unit groups, head chunk first.
func longNameChunks(name string) [][longEntryCharsPerBlk]uint16 {
	units := utf16.Encode([]rune(name))
	units = append(units, 0x0000)

	numChunks := (len(units) + longEntryCharsPerBlk - 1) / longEntryCharsPerBlk
	if numChunks == 0 {
		numChunks = 1
	}

	chunks := make([][longEntryCharsPerBlk]uint16, numChunks)
	for i := range chunks {
		for j := range chunks[i] {
			chunks[i][j] = 0xFFFF
		}
	}
	for i, u := range units {
		chunks[i/longEntryCharsPerBlk][i%longEntryCharsPerBlk] = u
	}
	return chunks
}

// EncodeLongNameEntries builds the sequence of 32-byte long-directory
// entries for `name`, in disk write order (head chunk first, immediately
// followed by successive chunks, tail chunk last right before the short
// entry): the head chunk carries the highest ordinal with bit 0x40 set;
// the tail chunk carries ordinal 1.
func EncodeLongNameEntries(name string, shortNameChecksum uint8) [][32]byte {
	chunks := longNameChunks(name)
	k := len(chunks)

	blocks := make([][32]byte, k)
	for i, chunk := range chunks {
		ordinal := uint8(k - i)
		if i == 0 {
			ordinal |= longEntryOrdLastBit
		}
		blocks[i] = encodeLongEntryBlock(ordinal, chunk, shortNameChecksum)
	}
	return blocks
}

func encodeLongEntryBlock(ordinal uint8, chars [longEntryCharsPerBlk]uint16, checksum uint8) [32]byte {
	var b [32]byte
	b[0] = ordinal
	putUTF16LE(b[1:11], chars[0:5])
	b[11] = longEntryAttr
	b[12] = 0
	b[13] = checksum
	putUTF16LE(b[14:26], chars[5:11])
	b[26] = 0
	b[27] = 0
	putUTF16LE(b[28:32], chars[11:13])
	return b
}

func putUTF16LE(dst []byte, units []uint16) {
	for i, u := range units {
		dst[2*i] = byte(u)
		dst[2*i+1] = byte(u >> 8)
	}
}

func getUTF16LE(src []byte, n int) []uint16 {
	units := make([]uint16, n)
	for i := range units {
		units[i] = uint16(src[2*i]) | uint16(src[2*i+1])<<8
	}
	return units
}

// longEntryChars extracts the 13 UTF-16 code units from a raw 32-byte
// long entry, in name1/name2/name3 order.
func longEntryChars(raw [32]byte) [longEntryCharsPerBlk]uint16 {
	var out [longEntryCharsPerBlk]uint16
	copy(out[0:5], getUTF16LE(raw[1:11], 5))
	copy(out[5:11], getUTF16LE(raw[14:26], 6))
	copy(out[11:13], getUTF16LE(raw[28:32], 2))
	return out
}

// decodeLongNameFromChunks reassembles the logical name from long-entry
// chunks accumulated in scan order (head chunk first, per this engine's
// disk layout), truncating at the terminator or first 0xFFFF pad unit.
func decodeLongNameFromChunks(chunks [][longEntryCharsPerBlk]uint16) string {
	var units []uint16
	for _, chunk := range chunks {
		for _, u := range chunk {
			if u == 0x0000 || u == 0xFFFF {
				return string(utf16.Decode(units))
			}
			units = append(units, u)
		}
	}
	return string(utf16.Decode(units))
}
