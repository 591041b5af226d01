package fat_test

import (
	"testing"

	"github.com/mhaas/imgtool/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortNameRoundTrips(t *testing.T) {
	cases := []string{"HELLO.TXT", "readme.md", "NOEXT", "a.b"}

	for _, name := range cases {
		sn, err := fat.NewShortName(name)
		require.NoError(t, err, name)

		raw := sn.Encode11()
		got := fat.DecodeShortName11(raw, sn.NTRes)

		assert.Equal(t, name, got, "round trip for %q", name)
	}
}

func TestShortNameRoundTripCasing(t *testing.T) {
	sn, err := fat.NewShortName("readme.md")
	require.NoError(t, err)

	assert.Equal(t, "README", sn.Base)
	assert.Equal(t, "MD", sn.Ext)

	raw := sn.Encode11()
	got := fat.DecodeShortName11(raw, sn.NTRes)
	assert.Equal(t, "readme.md", got, "lowercase should be restored via NT_RES")
}

func TestShortNameRejectsForbiddenChars(t *testing.T) {
	_, err := fat.NewShortName("BAD$NAME.TXT")
	assert.Error(t, err)
}

func TestShortNameRejectsMixedCase(t *testing.T) {
	_, err := fat.NewShortName("MiXeD.TXT")
	assert.Error(t, err)
}

func TestShortNameEncode11Padding(t *testing.T) {
	sn, err := fat.NewShortName("HELLO.TXT")
	require.NoError(t, err)

	raw := sn.Encode11()
	assert.Equal(t, "HELLO   TXT", string(raw[:]))
}

func TestChecksumShortName11IsStableForSameBytes(t *testing.T) {
	sn, err := fat.NewShortName("FAYL~1.TXT")
	require.NoError(t, err)
	raw := sn.Encode11()

	a := fat.ChecksumShortName11(raw)
	b := fat.ChecksumShortName11(raw)
	assert.Equal(t, a, b)
}
