// Package run is the default sub-command: receive dynfw feed until stopped.
package run

import (
	"context"
	"os"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/dynfw/cmd/dynfw-client/subcmd"
	"github.com/temoto/dynfw/internal/certfetch"
	"github.com/temoto/dynfw/internal/channel"
	"github.com/temoto/dynfw/internal/config"
	"github.com/temoto/dynfw/internal/identity"
	"github.com/temoto/dynfw/internal/message"
	"github.com/temoto/dynfw/internal/receiver"
	"github.com/temoto/dynfw/internal/report"
	"github.com/temoto/dynfw/internal/state"
	"github.com/temoto/dynfw/internal/trust"
	"github.com/temoto/dynfw/log2"
)

const modName = "run"

var Mod = subcmd.Mod{Name: modName, Usage: "subscribe and report (default)", Main: Main}

func Main(ctx context.Context, cfg *config.Config, _ []string) error {
	g := state.GetGlobal(ctx)

	kp, err := identity.NewStore(cfg.IdentityDir, g.Log).Obtain()
	if err != nil {
		return errors.Annotate(err, "obtain identity")
	}
	g.Log.Infof("client %s", kp.String())

	server, err := obtainTrust(ctx, g.Log, cfg)
	if err != nil {
		return errors.Annotate(err, "obtain trust")
	}
	g.Log.Infof("trusted %s", server.String())

	var handlers []receiver.MessageFunc
	if cfg.ReportEnabled() {
		p := &report.Printer{Out: os.Stdout, Log: g.Log, Preview: cfg.Report.Preview}
		handlers = append(handlers, p.Handle)
	}
	if cfg.Forward.Enable {
		fw, err := report.DialForwarder(g.Log, cfg.Forward)
		if err != nil {
			return errors.Annotate(err, "forward")
		}
		defer fw.Close()
		handlers = append(handlers, fw.Handle)
	}
	if len(handlers) == 0 {
		g.Log.Infof("report and forward disabled, messages are only validated")
		handlers = append(handlers, func(_ context.Context, m message.Message) error {
			g.Log.Debugf("message topic=%s", m.Topic)
			return nil
		})
	}

	ch, err := channel.Open(g.Log, kp, server, cfg.Subscription())
	if err != nil {
		return errors.Trace(err)
	}
	defer ch.Close()

	loop := &receiver.Loop{
		Channel:      ch,
		Validator:    message.NewValidator(nil),
		OnMessage:    receiver.Multi(handlers...),
		OnError:      receiver.LogErrors(g.Log),
		Log:          g.Log,
		Alive:        g.Alive,
		StatInterval: cfg.StatInterval(),
	}
	g.Log.SetErrorFunc(loop.Stat.ErrorLogged)
	defer g.Log.SetErrorFunc(nil)
	subcmd.SdNotify(g.Log, daemon.SdNotifyReady)
	g.Log.Infof("subscribed endpoint=%s prefix=%s, running", ch.Endpoint(), cfg.TopicPrefix)
	err = loop.Run(ctx)
	subcmd.SdNotify(g.Log, daemon.SdNotifyStopping)
	return errors.Annotate(err, "receive")
}

// obtainTrust loads server key, downloading certificate first when configured.
// Failed download falls back to previously stored certificate.
func obtainTrust(ctx context.Context, log *log2.Log, cfg *config.Config) (trust.ServerKey, error) {
	path := cfg.ServerCertPath()
	if cfg.NeedDownload() {
		dctx, cancel := context.WithTimeout(ctx, cfg.DownloadTimeout())
		err := certfetch.Download(dctx, nil, log, cfg.Cert.DownloadURL, path)
		cancel()
		if err != nil {
			if _, statErr := os.Stat(path); statErr != nil {
				return trust.ServerKey{}, errors.Annotate(err, "download server certificate")
			}
			log.Errorf("download server certificate failed, using stored path=%s err=%v", path, err)
		}
	}
	return trust.Load(path)
}
