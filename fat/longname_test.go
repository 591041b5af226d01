package fat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLongNameRejectsForbiddenChars(t *testing.T) {
	assert.Error(t, CheckLongName("bad[name].txt"))
	assert.NoError(t, CheckLongName("a perfectly fine name.txt"))
}

func TestCheckLongNameRejectsTooLong(t *testing.T) {
	assert.Error(t, CheckLongName(strings.Repeat("a", 256)))
}

func TestEncodeLongNameEntriesRoundTrips(t *testing.T) {
	names := []string{
		"файл.txt",
		"a reasonably long descriptive file name.dat",
		"x",
	}

	for _, name := range names {
		shortRaw := [11]byte{'F', 'I', 'L', 'E', '~', '1', ' ', ' ', 'T', 'X', 'T'}
		checksum := ChecksumShortName11(shortRaw)

		blocks := EncodeLongNameEntries(name, checksum)
		require.NotEmpty(t, blocks, name)

		var chunks [][longEntryCharsPerBlk]uint16
		for _, b := range blocks {
			assert.Equal(t, checksum, b[13], "every long entry must carry the short entry's checksum")
			chunks = append(chunks, longEntryChars(b))
		}

		got := decodeLongNameFromChunks(chunks)
		assert.Equal(t, name, got, "round trip for %q", name)
	}
}

func TestEncodeLongNameEntriesOrdinalsAndLastBit(t *testing.T) {
	name := "a reasonably long descriptive file name.dat"
	blocks := EncodeLongNameEntries(name, 0x42)
	require.Greater(t, len(blocks), 1, "test name should need multiple long entries")

	k := len(blocks)
	for i, b := range blocks {
		wantOrdinal := uint8(k - i)
		if i == 0 {
			wantOrdinal |= longEntryOrdLastBit
		}
		assert.Equal(t, wantOrdinal, b[0], "block %d ordinal byte", i)
	}
}

func TestSynthesizeShortNameAppendsNumericSuffix(t *testing.T) {
	// Non-ASCII characters are replaced with '_' and always marked lossy,
	// so a numeric ~N suffix is appended even with no collision.
	taken := map[string]bool{"____~1.TXT": true}
	exists := func(candidate string) bool { return taken[candidate] }

	sn, err := SynthesizeShortName("файл.txt", exists)
	require.NoError(t, err)
	assert.Equal(t, "TXT", sn.Ext)
	assert.Equal(t, "____~2", sn.Base)
}

func TestSynthesizeShortNameExhaustionFails(t *testing.T) {
	exists := func(candidate string) bool { return true }

	_, err := SynthesizeShortName("файл.txt", exists)
	assert.Error(t, err)
}

func TestSynthesizeShortNameStripsShortNameForbiddenChars(t *testing.T) {
	// "-" and "~" are legal in a long name but forbidden in a short name
	// (fat/shortname.go's forbiddenShortNameChars). Stripping them forces
	// a "lossy" conversion, so both cases fall through to the ~N suffix
	// loop; the numeric suffix's own "~" is expected (it's the DOS
	// short-name convention, exempted from the forbidden-char check), but
	// no forbidden character from the original name should survive into
	// the portion of the base the suffix doesn't overwrite.
	exists := func(candidate string) bool { return false }

	sn, err := SynthesizeShortName("my-file.txt", exists)
	require.NoError(t, err)
	assert.Equal(t, "MYFILE~1", sn.Base)
	assert.Equal(t, "TXT", sn.Ext)

	sn, err = SynthesizeShortName("a~1.txt", exists)
	require.NoError(t, err)
	assert.Equal(t, "A1~1", sn.Base)
	assert.Equal(t, "TXT", sn.Ext)
}
