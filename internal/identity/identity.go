// Package identity keeps the client CURVE key pair in a private directory.
package identity

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/dynfw/internal/zcert"
	"github.com/temoto/dynfw/log2"
	"github.com/temoto/extremofile"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/sys/unix"
)

const (
	DirPerm  os.FileMode = 0o700
	FilePerm os.FileMode = 0o600

	// extremofile appends "v1.main" and "v1.backup"
	FilePrefix = "client."
	// pyzmq create_certificates(dir, "client") layout
	LegacySecretName = "client.key_secret"
)

type KeyPair struct {
	Public zcert.Key
	Secret zcert.Key
}

// String never includes secret key.
func (kp KeyPair) String() string   { return fmt.Sprintf("KeyPair(public=%s)", kp.Public.Z85()) }
func (kp KeyPair) GoString() string { return kp.String() }

func (kp KeyPair) PublicZ85() string { return kp.Public.Z85() }
func (kp KeyPair) SecretZ85() string { return kp.Secret.Z85() }

func (kp KeyPair) valid() bool {
	pub, err := curve25519.X25519(kp.Secret[:], curve25519.Basepoint)
	return err == nil && string(pub) == string(kp.Public[:])
}

func Generate(r io.Reader) (KeyPair, error) {
	var kp KeyPair
	if _, err := io.ReadFull(r, kp.Secret[:]); err != nil {
		return kp, errors.Annotate(err, "random")
	}
	pub, err := curve25519.X25519(kp.Secret[:], curve25519.Basepoint)
	if err != nil {
		return kp, errors.Trace(err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("identity storage %s path=%s: %v", e.Op, e.Path, e.Err)
}
func (e *StorageError) Unwrap() error { return e.Err }

type Store struct {
	dir  string
	log  *log2.Log
	rand io.Reader
	now  func() time.Time
}

func NewStore(dir string, log *log2.Log) *Store {
	return &Store{dir: dir, log: log, rand: rand.Reader, now: time.Now}
}

func (self *Store) Dir() string { return self.dir }

// Obtain returns existing key pair or generates and persists a new one.
// Calling it again on the same directory returns the same pair.
func (self *Store) Obtain() (KeyPair, error) {
	if self.dir == "" {
		return KeyPair{}, &StorageError{Op: "config", Err: errors.NotValidf("empty identity dir")}
	}
	if err := os.MkdirAll(self.dir, DirPerm); err != nil {
		return KeyPair{}, &StorageError{Op: "mkdir", Path: self.dir, Err: err}
	}
	if err := checkPrivateDir(self.dir); err != nil {
		return KeyPair{}, &StorageError{Op: "check", Path: self.dir, Err: err}
	}

	ef := extremofile.New(extremofile.Config{
		Dir:        self.dir,
		FilePrefix: FilePrefix,
		DirPerm:    DirPerm,
		FilePerm:   FilePerm,
	})
	data, err := ef.Read()
	switch {
	case extremofile.IsCritical(err):
		return KeyPair{}, &StorageError{Op: "read", Path: self.dir, Err: err}

	case err != nil && data != nil:
		// main copy broken, backup is fine
		self.log.Errorf("identity main copy damaged, restoring from backup dir=%s err=%v", self.dir, err)
		kp, perr := self.parse(data)
		if perr != nil {
			return KeyPair{}, &StorageError{Op: "parse", Path: self.dir, Err: perr}
		}
		if werr := self.write(ef, kp); werr != nil {
			return KeyPair{}, werr
		}
		return kp, nil

	case data != nil:
		kp, perr := self.parse(data)
		if perr != nil {
			return KeyPair{}, &StorageError{Op: "parse", Path: self.dir, Err: perr}
		}
		self.log.Debugf("identity loaded %s", kp)
		return kp, nil
	}

	kp, found, err := self.importLegacy()
	if err != nil {
		return KeyPair{}, err
	}
	if found {
		self.log.Infof("identity imported from %s", LegacySecretName)
	} else {
		if kp, err = Generate(self.rand); err != nil {
			return KeyPair{}, &StorageError{Op: "generate", Path: self.dir, Err: err}
		}
		self.log.Infof("identity generated %s", kp)
	}
	if err = self.write(ef, kp); err != nil {
		return KeyPair{}, err
	}
	return kp, nil
}

// WritePublic exports public-only certificate, to be handed to the server operator.
func (self *Store) WritePublic(kp KeyPair, path string) error {
	b := zcert.Format(&zcert.Cert{Public: kp.Public}, false, self.now())
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return &StorageError{Op: "export", Path: path, Err: err}
	}
	return nil
}

func (self *Store) write(w io.Writer, kp KeyPair) error {
	b := zcert.Format(&zcert.Cert{Public: kp.Public, Secret: kp.Secret}, true, self.now())
	if _, err := w.Write(b); err != nil {
		return &StorageError{Op: "write", Path: self.dir, Err: err}
	}
	return nil
}

func (self *Store) parse(b []byte) (KeyPair, error) {
	c, err := zcert.Parse(b)
	if err != nil {
		return KeyPair{}, errors.Trace(err)
	}
	if !c.HasSecret() {
		return KeyPair{}, errors.NotFoundf("secret-key")
	}
	kp := KeyPair{Public: c.Public, Secret: c.Secret}
	if !kp.valid() {
		return KeyPair{}, errors.NotValidf("public key does not match secret key")
	}
	return kp, nil
}

func (self *Store) importLegacy() (KeyPair, bool, error) {
	path := filepath.Join(self.dir, LegacySecretName)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return KeyPair{}, false, nil
	}
	if err != nil {
		return KeyPair{}, false, &StorageError{Op: "read", Path: path, Err: err}
	}
	kp, err := self.parse(b)
	if err != nil {
		return KeyPair{}, false, &StorageError{Op: "parse", Path: path, Err: err}
	}
	return kp, true, nil
}

func checkPrivateDir(dir string) error {
	var st unix.Stat_t
	if err := unix.Stat(dir, &st); err != nil {
		return errors.Trace(err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return errors.NotValidf("not a directory")
	}
	if euid := unix.Geteuid(); int(st.Uid) != euid {
		return errors.Errorf("owner uid=%d expected=%d", st.Uid, euid)
	}
	if st.Mode&0o077 != 0 {
		return errors.Errorf("permissions %o allow group/other access, expected %o", st.Mode&0o777, DirPerm)
	}
	return nil
}
