package certfetch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/dynfw/helpers"
	"github.com/temoto/dynfw/internal/zcert"
	"github.com/temoto/dynfw/log2"
)

func TestDownload(t *testing.T) {
	t.Parallel()

	var pub zcert.Key
	for i := range pub {
		pub[i] = byte(i * 3)
	}
	certText := zcert.Format(&zcert.Cert{Public: pub}, false, time.Now())

	type Case struct {
		name      string
		mock      *helpers.MockHTTP
		expectErr string
	}
	cases := []Case{
		{"ok", &helpers.MockHTTP{Body: certText}, ""},
		{"not-found", &helpers.MockHTTP{Header: []byte("HTTP/1.0 404 Not Found\r\n\r\n")}, "status=404"},
		{"network", &helpers.MockHTTP{Err: fmt.Errorf("connection refused")}, "connection refused"},
		{"garbage", &helpers.MockHTTP{Body: []byte("<html>maintenance</html>")}, "public-key not found"},
		{"too-large", &helpers.MockHTTP{Body: []byte(strings.Repeat("#", maxSize+1))}, "too large"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			dest := filepath.Join(t.TempDir(), FileName)
			client := c.mock.Client()
			err := Download(context.Background(), client, log2.NewTest(t, log2.LDebug), DefaultURL, dest)
			if c.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				_, statErr := os.Stat(dest)
				assert.True(t, os.IsNotExist(statErr), "failed download must not leave file")
				entries, _ := os.ReadDir(filepath.Dir(dest))
				assert.Empty(t, entries)
				return
			}
			require.NoError(t, err)
			got, err := zcert.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, pub, got.Public)
		})
	}
}

func TestDownloadRequest(t *testing.T) {
	t.Parallel()

	var seen *http.Request
	mock := &helpers.MockHTTP{Fun: func(r *http.Request) (*http.Response, error) {
		seen = r
		return nil, fmt.Errorf("stop")
	}}
	dest := filepath.Join(t.TempDir(), FileName)
	err := Download(context.Background(), &http.Client{Transport: mock}, nil, "https://example.org/dynfw.pub", dest)
	require.Error(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, http.MethodGet, seen.Method)
	assert.Equal(t, "example.org", seen.URL.Host)
}
