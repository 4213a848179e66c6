// Package report has handlers for validated messages.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/dynfw/internal/message"
	"github.com/temoto/dynfw/log2"
)

// Printer writes one human readable line per message.
type Printer struct {
	Out     io.Writer
	Log     *log2.Log
	Preview int // list items shown
}

func (self *Printer) Handle(_ context.Context, m message.Message) error {
	line, err := self.Format(m)
	if err != nil {
		return err
	}
	_, err = io.WriteString(self.Out, line+"\n")
	return errors.Annotate(err, "report write")
}

func (self *Printer) Format(m message.Message) (string, error) {
	switch m.Topic {
	case message.TopicList:
		l, err := message.ParseList(m.Payload)
		if err != nil {
			return "", errors.Annotatef(err, "report topic=%s", m.Topic)
		}
		return m.Topic + ": " + FormatList(l, self.Preview), nil

	case message.TopicDelta:
		d, err := message.ParseDelta(m.Payload)
		if err != nil {
			return "", errors.Annotatef(err, "report topic=%s", m.Topic)
		}
		return fmt.Sprintf("%s: serial=%d %s %s", m.Topic, d.Serial, d.Delta, d.IP), nil

	case message.TopicEvent:
		return fmt.Sprintf("%s: %v", m.Topic, m.Payload), nil
	}
	// publisher got new message type, still worth showing
	self.Log.Infof("report unknown message type topic=%s", m.Topic)
	return fmt.Sprintf("%s (unknown): %v", m.Topic, m.Payload), nil
}

func FormatList(l message.List, preview int) string {
	if preview < 0 {
		preview = 0
	}
	shown := l.List
	more := ""
	if len(shown) > preview {
		shown, more = shown[:preview], "..."
	}
	return fmt.Sprintf("{version: %d, serial: %d, ts: %d, list: length %d, %s%s}",
		l.Version, l.Serial, l.Ts, len(l.List), strings.Join(shown, ", "), more)
}
