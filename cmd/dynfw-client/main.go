package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/dynfw/cmd/dynfw-client/decode"
	"github.com/temoto/dynfw/cmd/dynfw-client/identity"
	"github.com/temoto/dynfw/cmd/dynfw-client/run"
	"github.com/temoto/dynfw/cmd/dynfw-client/subcmd"
	"github.com/temoto/dynfw/internal/config"
	"github.com/temoto/dynfw/internal/state"
	"github.com/temoto/dynfw/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	run.Mod,
	decode.Mod,
	identity.Mod,
}

func main() {
	flagConfig := flag.String("config", "", "HCL config file, defaults are used when empty")
	flagServer := flag.String("server", "", "dynfw server host")
	flagPort := flag.Int("port", 0, "dynfw server port")
	flagCertFile := flag.String("cert-file", "", "trusted server certificate file")
	flagDownload := flag.Bool("download-cert", false, "download server certificate before connecting")
	flagIdentityDir := flag.String("identity-dir", "", "client key storage directory")
	flagDebug := flag.Bool("debug", false, "debug logging")
	flagVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *flagVersion {
		fmt.Printf("dynfw-client %s\n", BuildVersion)
		return
	}

	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else if subcmd.SdNotify(log, "start") {
		// under systemd journal, timestamp is redundant
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LStdFlags)
	}

	command := "run"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		usage()
		log.Fatal(err)
	}

	var cfg *config.Config
	if *flagConfig != "" {
		cfg, err = config.Read(log, config.NewOsFullReader(), *flagConfig)
	} else {
		cfg = config.New()
	}
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Server = *flagServer
		case "port":
			cfg.Port = *flagPort
		case "cert-file":
			cfg.Cert.File = *flagCertFile
		case "download-cert":
			cfg.Cert.Download = *flagDownload
		case "identity-dir":
			cfg.IdentityDir = *flagIdentityDir
		case "debug":
			cfg.LogDebug = *flagDebug
		}
	})
	cfg.SetDefaults()
	if err = cfg.Validate(); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	if cfg.LogDebug {
		log.SetLevel(log2.LDebug)
	}
	log.Debugf("dynfw-client version=%s command=%s config: %s", BuildVersion, mod.Name, cfg.String())

	ctx, g := state.NewContext(log, cfg)
	g.BuildVersion = BuildVersion
	go stopOnSignal(g)

	args := flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}
	if err = mod.Main(ctx, cfg, args); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}

// stopOnSignal stops gracefully on first signal, exits on second.
func stopOnSignal(g *state.Global) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	g.Log.Infof("signal=%v, stopping", sig)
	g.Stop()
	sig = <-sigs
	g.Log.Errorf("signal=%v during stop, exit", sig)
	os.Exit(1)
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "Usage: %s [flags] [command [args]]\n\nCommands:\n", os.Args[0])
	for _, m := range modules {
		fmt.Fprintf(w, "  %-10s %s\n", m.Name, m.Usage)
	}
	fmt.Fprintf(w, "\nFlags:\n")
	flag.PrintDefaults()
}
