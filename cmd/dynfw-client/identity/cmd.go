// Package identity prints client public key for registration with the server operator.
package identity

import (
	"context"
	"flag"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/skip2/go-qrcode"
	"github.com/temoto/dynfw/cmd/dynfw-client/subcmd"
	"github.com/temoto/dynfw/internal/config"
	"github.com/temoto/dynfw/internal/identity"
	"github.com/temoto/dynfw/internal/state"
)

const modName = "identity"

var Mod = subcmd.Mod{Name: modName, Usage: "[-export PATH] [-qr=false]", Main: Main}

func Main(ctx context.Context, cfg *config.Config, args []string) error {
	g := state.GetGlobal(ctx)
	fs := flag.NewFlagSet(modName, flag.ContinueOnError)
	flagExport := fs.String("export", "", "write public certificate to PATH")
	flagQR := fs.Bool("qr", true, "print public key as QR code")
	if err := fs.Parse(args); err != nil {
		return errors.Annotate(err, modName)
	}

	store := identity.NewStore(cfg.IdentityDir, g.Log)
	kp, err := store.Obtain()
	if err != nil {
		return errors.Annotate(err, "obtain identity")
	}
	if err = Print(os.Stdout, kp, *flagQR); err != nil {
		return errors.Trace(err)
	}
	if *flagExport != "" {
		if err = store.WritePublic(kp, *flagExport); err != nil {
			return errors.Trace(err)
		}
		g.Log.Infof("public certificate written to %s", *flagExport)
	}
	return nil
}

func Print(w io.Writer, kp identity.KeyPair, qr bool) error {
	text := "public-key = " + kp.PublicZ85() + "\n"
	if qr {
		q, err := qrcode.New(kp.PublicZ85(), qrcode.Medium)
		if err != nil {
			return errors.Annotate(err, "qrcode")
		}
		text += renderQR(q.Bitmap())
	}
	_, err := io.WriteString(w, text)
	return errors.Annotate(err, "print identity")
}

// renderQR packs two bitmap rows into one line of half block characters.
// Dark modules are printed as spaces, for dark-on-light terminals swap colors.
func renderQR(bitmap [][]bool) string {
	var b strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bottom:
				b.WriteString(" ")
			case top:
				b.WriteString("▄")
			case bottom:
				b.WriteString("▀")
			default:
				b.WriteString("█")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
