package zcert

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPublicZ85 = "009c61o!#m2NH?C3>iWS5d]J*6CRx17-skh9337x" // bytes 0..31
	testSecretZ85 = "ar.{NbQB=+c[cR@eg&FcfFLssg=mfIi5%2YjuU>)" // bytes 32..63
)

func seqKey(start byte) Key {
	var k Key
	for i := range k {
		k[i] = start + byte(i)
	}
	return k
}

func TestParsePyzmq(t *testing.T) {
	t.Parallel()

	const secretCert = `#   ****  Generated on 2019-03-01 10:00:00.000000 by pyzmq  ****
#   ZeroMQ CURVE **Secret** Certificate
#   DO NOT PROVIDE THIS FILE TO OTHER USERS nor change its permissions.

metadata
curve
    public-key = "` + testPublicZ85 + `"
    secret-key = "` + testSecretZ85 + `"
`
	c, err := Parse([]byte(secretCert))
	require.NoError(t, err)
	assert.Equal(t, seqKey(0), c.Public)
	assert.Equal(t, seqKey(32), c.Secret)
	assert.True(t, c.HasSecret())

	const publicCert = "metadata\ncurve\n    public-key = '" + testPublicZ85 + "'\n"
	c, err = Parse([]byte(publicCert))
	require.NoError(t, err)
	assert.Equal(t, seqKey(0), c.Public)
	assert.False(t, c.HasSecret())
}

func TestParseError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"comment-only", "# public-key = \"" + testPublicZ85 + "\"\n"},
		{"short", "curve\n public-key = \"abc\"\n"},
		{"bad-alphabet", "curve\n public-key = \"" + "~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~" + "\"\n"},
		{"bad-secret", "curve\n public-key = \"" + testPublicZ85 + "\"\n secret-key = \"xyz\"\n"},
		{"binary", "\x00\x01\x02\xff"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.input))
			assert.Error(t, err)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()

	c := &Cert{Public: seqKey(0), Secret: seqKey(32)}
	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	secretText := Format(c, true, now)
	assert.Contains(t, string(secretText), "Generated on 2020-01-02 03:04:05")
	assert.Contains(t, string(secretText), `secret-key = "`+testSecretZ85+`"`)
	back, err := Parse(secretText)
	require.NoError(t, err)
	assert.Equal(t, *c, *back)

	publicText := Format(c, false, now)
	assert.NotContains(t, string(publicText), "secret-key")
	assert.NotContains(t, string(publicText), testSecretZ85)
	back, err = Parse(publicText)
	require.NoError(t, err)
	assert.Equal(t, c.Public, back.Public)
	assert.False(t, back.HasSecret())
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "server.pub")
	_, err := ReadFile(path)
	assert.True(t, os.IsNotExist(errors.Cause(err)), "err=%v", err)

	require.NoError(t, os.WriteFile(path, Format(&Cert{Public: seqKey(0)}, false, time.Now()), 0o644))
	c, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testPublicZ85, c.Public.Z85())
}
