package decode

import (
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/dynfw/helpers"
	"github.com/temoto/dynfw/internal/message"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		input  string
		expect message.Raw
		err    string
	}
	cases := []Case{
		{"topic-only", "dynfw/event", message.Raw{[]byte("dynfw/event")}, ""},
		{"payload", "dynfw/delta  81a17801", message.Raw{[]byte("dynfw/delta"), helpers.MustHex("81a17801")}, ""},
		{"extra-frame", "dynfw/event c0 c0", message.Raw{[]byte("dynfw/event"), {0xc0}, {0xc0}}, ""},
		{"empty", "   ", nil, "empty line not valid"},
		{"bad-hex", "dynfw/list zz", nil, "frame=1"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			raw, err := ParseLine(c.input)
			if c.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, raw)
		})
	}
}

func TestCompleter(t *testing.T) {
	t.Parallel()

	buf := prompt.NewBuffer()
	buf.InsertText("dynfw/d", false, true)
	got := completer(*buf.Document())
	require.Len(t, got, 1)
	assert.Equal(t, message.TopicDelta, got[0].Text)

	buf.InsertText("elta 00", false, true)
	assert.Nil(t, completer(*buf.Document()))
}
