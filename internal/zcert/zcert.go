// Package zcert reads and writes ZeroMQ CURVE certificates in ZPL text form,
// compatible with pyzmq `zmq.auth.create_certificates` / `load_certificate`.
//
// Public certificate:
//
//	metadata
//	curve
//	    public-key = "<40 chars Z85>"
//
// Secret certificate additionally has `secret-key`.
package zcert

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	zmq "github.com/pebbe/zmq4"
)

const (
	KeySize    = 32
	KeySizeZ85 = 40
)

type Key [KeySize]byte

func (k Key) Z85() string { return zmq.Z85encode(string(k[:])) }

func (k Key) IsZero() bool { return k == Key{} }

func DecodeZ85(s string) (Key, error) {
	var k Key
	if len(s) != KeySizeZ85 {
		return k, errors.NotValidf("z85 key length=%d", len(s))
	}
	// zmq returns empty string on invalid alphabet
	raw := zmq.Z85decode(s)
	if len(raw) != KeySize {
		return k, errors.NotValidf("z85 key encoding")
	}
	copy(k[:], raw)
	return k, nil
}

// Cert is the parsed content of a certificate file.
// Secret is zero when the file has no secret-key.
type Cert struct {
	Public Key
	Secret Key
}

func (c *Cert) HasSecret() bool { return !c.Secret.IsZero() }

// Parse accepts the loose line format pyzmq accepts: comments and unknown
// lines are skipped, key lines are matched by prefix, quotes optional.
func Parse(b []byte) (*Cert, error) {
	var pubText, secText string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "public-key"):
			pubText = lineValue(line)
		case strings.HasPrefix(line, "secret-key"):
			secText = lineValue(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Annotate(err, "zcert scan")
	}
	if pubText == "" {
		return nil, errors.NotFoundf("public-key")
	}

	c := &Cert{}
	var err error
	if c.Public, err = DecodeZ85(pubText); err != nil {
		return nil, errors.Annotate(err, "public-key")
	}
	if secText != "" {
		if c.Secret, err = DecodeZ85(secText); err != nil {
			return nil, errors.Annotate(err, "secret-key")
		}
	}
	return c, nil
}

func ReadFile(path string) (*Cert, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c, err := Parse(b)
	return c, errors.Annotatef(err, "certificate path=%s", path)
}

func lineValue(line string) string {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return ""
	}
	return strings.Trim(line[i+1:], " \t'\"")
}

// Format renders certificate text. Secret key is written only when withSecret and present.
func Format(c *Cert, withSecret bool, now time.Time) []byte {
	kind := "Public"
	if withSecret && c.HasSecret() {
		kind = "**Secret**"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#   ****  Generated on %s by dynfw-client  ****\n", now.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&buf, "#   ZeroMQ CURVE %s Certificate\n", kind)
	if kind == "Public" {
		buf.WriteString("#   Exchange securely, or use a secure mechanism to verify the contents\n#   of this file after exchange. Store public certificates in your home\n#   directory, in the .curve subdirectory.\n")
	} else {
		buf.WriteString("#   DO NOT PROVIDE THIS FILE TO OTHER USERS nor change its permissions.\n")
	}
	buf.WriteString("\nmetadata\ncurve\n")
	fmt.Fprintf(&buf, "    public-key = \"%s\"\n", c.Public.Z85())
	if withSecret && c.HasSecret() {
		fmt.Fprintf(&buf, "    secret-key = \"%s\"\n", c.Secret.Z85())
	}
	return buf.Bytes()
}
