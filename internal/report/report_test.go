package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/dynfw/internal/message"
	"github.com/temoto/dynfw/log2"
)

func TestPrinter(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		preview   int
		msg       message.Message
		expect    string
		expectErr string
	}
	listPayload := map[string]interface{}{
		"version": int64(1), "serial": int64(5), "ts": int64(1000),
		"list": []interface{}{"a", "b", "c", "d"},
	}
	cases := []Case{
		{"list", 3, message.Message{Topic: message.TopicList, Payload: listPayload},
			"dynfw/list: {version: 1, serial: 5, ts: 1000, list: length 4, a, b, c...}\n", ""},
		{"list-short", 10, message.Message{Topic: message.TopicList, Payload: listPayload},
			"dynfw/list: {version: 1, serial: 5, ts: 1000, list: length 4, a, b, c, d}\n", ""},
		{"list-broken", 3, message.Message{Topic: message.TopicList, Payload: "nope"},
			"", "report topic=dynfw/list"},
		{"delta", 3, message.Message{Topic: message.TopicDelta, Payload: map[string]interface{}{
			"version": int64(1), "serial": int64(6), "delta": "negative", "ip": "192.0.2.9"}},
			"dynfw/delta: serial=6 negative 192.0.2.9\n", ""},
		{"event", 3, message.Message{Topic: message.TopicEvent, Payload: "reload"},
			"dynfw/event: reload\n", ""},
		{"unknown", 3, message.Message{Topic: "dynfw/future", Payload: int64(7)},
			"dynfw/future (unknown): 7\n", ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			buf := bytes.NewBuffer(nil)
			p := &Printer{Out: buf, Log: log2.NewTest(t, log2.LDebug), Preview: c.preview}
			err := p.Handle(context.Background(), c.msg)
			if c.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				assert.Empty(t, buf.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, buf.String())
		})
	}
}

func TestFormatListZeroPreview(t *testing.T) {
	t.Parallel()

	l := message.List{Version: 1, List: []string{"a"}}
	assert.Equal(t, "{version: 1, serial: 0, ts: 0, list: length 1, ...}", FormatList(l, 0))
	assert.Equal(t, "{version: 1, serial: 0, ts: 0, list: length 0, }", FormatList(message.List{Version: 1}, 3))
}
