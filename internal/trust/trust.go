// Package trust loads the publisher's public key, the only key the client
// accepts during CURVE handshake.
package trust

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/dynfw/internal/zcert"
)

type ServerKey struct {
	Public zcert.Key
}

func (k ServerKey) PublicZ85() string { return k.Public.Z85() }
func (k ServerKey) String() string    { return fmt.Sprintf("ServerKey(public=%s)", k.PublicZ85()) }

type TrustError struct {
	Path string
	Err  error
}

func (e *TrustError) Error() string {
	return fmt.Sprintf("trusted server key path=%s: %v", e.Path, e.Err)
}
func (e *TrustError) Unwrap() error { return e.Err }

// Load reads certificate file. Secret key in the same file, if any, is dropped.
func Load(path string) (ServerKey, error) {
	if path == "" {
		return ServerKey{}, &TrustError{Err: errors.NotValidf("empty certificate path")}
	}
	c, err := zcert.ReadFile(path)
	if err != nil {
		return ServerKey{}, &TrustError{Path: path, Err: err}
	}
	return ServerKey{Public: c.Public}, nil
}
