// Package certfetch downloads published server certificate into local file.
package certfetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/temoto/dynfw/internal/zcert"
	"github.com/temoto/dynfw/log2"
)

const (
	DefaultURL = "https://repo.turris.cz/sentinel/dynfw.pub"
	FileName   = "server.pub"

	maxSize = 64 << 10
)

// Download fetches url and atomically replaces dest if response is a valid certificate.
// Context bounds whole request.
func Download(ctx context.Context, client *http.Client, log *log2.Log, url, dest string) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Annotatef(err, "certificate download url=%s", url)
	}
	log.Debugf("certificate download url=%s", url)
	resp, err := client.Do(req)
	if err != nil {
		return errors.Annotatef(err, "certificate download url=%s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("certificate download url=%s status=%s", url, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return errors.Annotatef(err, "certificate download url=%s", url)
	}
	if len(b) > maxSize {
		return errors.Errorf("certificate download url=%s too large", url)
	}
	c, err := zcert.Parse(b)
	if err != nil {
		return errors.Annotatef(err, "certificate download url=%s", url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*")
	if err != nil {
		return errors.Trace(err)
	}
	tmpPath := tmp.Name()
	_, err = tmp.Write(b)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpPath, dest)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return errors.Annotatef(err, "certificate save path=%s", dest)
	}
	log.Infof("certificate downloaded url=%s path=%s server=%s", url, dest, c.Public.Z85())
	return nil
}
