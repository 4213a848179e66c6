package trust

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/dynfw/internal/zcert"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	var pub, sec zcert.Key
	for i := range pub {
		pub[i] = byte(i)
		sec[i] = byte(i + 32)
	}
	dir := t.TempDir()

	type Case struct {
		name      string
		content   []byte // nil = file absent
		expectErr bool
	}
	cases := []Case{
		{"public", zcert.Format(&zcert.Cert{Public: pub}, false, time.Now()), false},
		{"with-secret", zcert.Format(&zcert.Cert{Public: pub, Secret: sec}, true, time.Now()), false},
		{"missing", nil, true},
		{"garbage", []byte("-----BEGIN CERTIFICATE-----\nMIIB\n"), true},
		{"empty", []byte{}, true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(dir, c.name+".pub")
			if c.content != nil {
				require.NoError(t, os.WriteFile(path, c.content, 0o644))
			}
			k, err := Load(path)
			if c.expectErr {
				var terr *TrustError
				require.True(t, errors.As(err, &terr), "err=%v", err)
				assert.Equal(t, path, terr.Path)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, pub, k.Public)
			assert.NotContains(t, k.String(), sec.Z85())
		})
	}
}

func TestLoadEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := Load("")
	var terr *TrustError
	assert.True(t, errors.As(err, &terr))
}
