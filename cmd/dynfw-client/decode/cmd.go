// Package decode validates and renders messages typed as `<topic> <hex payload>`.
package decode

import (
	"context"
	"encoding/hex"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/dynfw/cmd/dynfw-client/subcmd"
	"github.com/temoto/dynfw/helpers/cli"
	"github.com/temoto/dynfw/internal/config"
	"github.com/temoto/dynfw/internal/message"
	"github.com/temoto/dynfw/internal/report"
	"github.com/temoto/dynfw/log2"
)

const modName = "decode"

var Mod = subcmd.Mod{Name: modName, Usage: "<topic> <hex payload> lines from terminal or stdin", Main: Main}

func Main(ctx context.Context, cfg *config.Config, _ []string) error {
	log := log2.ContextValueLogger(ctx)
	p := &report.Printer{Out: os.Stdout, Log: log, Preview: cfg.Report.Preview}
	v := message.NewValidator(nil)
	exec := func(line string) {
		raw, err := ParseLine(line)
		if err != nil {
			log.Errorf("input: %v", err)
			return
		}
		m, err := v.Validate(raw)
		if err != nil {
			log.Errorf("%s: %v", message.KindOf(err), err)
			return
		}
		if err := p.Handle(ctx, m); err != nil {
			log.Error(errors.Annotatef(err, "topic=%s", m.Topic))
		}
	}
	return cli.MainLoop(modName, exec, completer)
}

// ParseLine turns `topic hex...` into raw frames, each hex word is one frame.
// Lone topic produces single frame message.
func ParseLine(line string) (message.Raw, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.NotValidf("empty line")
	}
	raw := make(message.Raw, 0, len(fields))
	raw = append(raw, []byte(fields[0]))
	for i, f := range fields[1:] {
		b, err := hex.DecodeString(f)
		if err != nil {
			return nil, errors.Annotatef(err, "frame=%d", i+1)
		}
		raw = append(raw, b)
	}
	return raw, nil
}

var suggests = []prompt.Suggest{
	{Text: message.TopicList, Description: "full list snapshot"},
	{Text: message.TopicDelta, Description: "single address change"},
	{Text: message.TopicEvent, Description: "server event"},
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), false)
}
