package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelta(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		payload   map[string]interface{}
		expect    Delta
		expectErr string
	}
	cases := []Case{
		{"positive",
			map[string]interface{}{"version": 1, "serial": 6, "ts": 1001, "delta": "positive", "ip": "192.0.2.1"},
			Delta{Version: 1, Serial: 6, Ts: 1001, Delta: DeltaPositive, IP: "192.0.2.1"}, ""},
		{"negative-no-ts",
			map[string]interface{}{"version": 1, "serial": 7, "delta": "negative", "ip": "2001:db8::1"},
			Delta{Version: 1, Serial: 7, Delta: DeltaNegative, IP: "2001:db8::1"}, ""},
		{"unknown-delta",
			map[string]interface{}{"version": 1, "serial": 7, "delta": "sideways", "ip": "192.0.2.1"},
			Delta{}, "not valid"},
		{"missing-ip",
			map[string]interface{}{"version": 1, "serial": 7, "delta": "positive"},
			Delta{}, "field=ip not found"},
		{"serial-string",
			map[string]interface{}{"version": 1, "serial": "7", "delta": "positive", "ip": "192.0.2.1"},
			Delta{}, "field=serial type=string"},
	}
	v := NewValidator(nil)
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			m, err := v.Validate(Raw{[]byte(TopicDelta), mustPack(t, c.payload)})
			require.NoError(t, err)
			d, err := ParseDelta(m.Payload)
			if c.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, d)
		})
	}
}

func TestParseListError(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)
	for _, payload := range []interface{}{
		"not a map",
		map[string]interface{}{"version": 1, "serial": 5, "ts": 1000},
		map[string]interface{}{"version": 1, "serial": 5, "ts": 1000, "list": []interface{}{"a", 2}},
		map[string]interface{}{"version": 1.5, "serial": 5, "ts": 1000, "list": []string{}},
	} {
		m, err := v.Validate(Raw{[]byte(TopicList), mustPack(t, payload)})
		require.NoError(t, err)
		_, err = ParseList(m.Payload)
		assert.Error(t, err, "payload=%#v", payload)
	}
}

func TestParseListFloatInteger(t *testing.T) {
	t.Parallel()

	l, err := ParseList(map[string]interface{}{
		"version": float64(2), "serial": uint64(9), "ts": int64(3), "list": []interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, List{Version: 2, Serial: 9, Ts: 3, List: []string{}}, l)
}
