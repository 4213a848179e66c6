package message

import (
	"github.com/juju/errors"
)

// Topics published by dynfw server.
const (
	TopicPrefix = "dynfw/"
	TopicList   = "dynfw/list"
	TopicDelta  = "dynfw/delta"
	TopicEvent  = "dynfw/event"
)

// List is full snapshot of blocked addresses.
type List struct {
	Version int64
	Serial  int64
	Ts      int64
	List    []string
}

// Delta is single address added (positive) or removed (negative) from list.
type Delta struct {
	Version int64
	Serial  int64
	Ts      int64
	Delta   string
	IP      string
}

const (
	DeltaPositive = "positive"
	DeltaNegative = "negative"
)

func ParseList(payload interface{}) (List, error) {
	m, err := asMap(payload)
	if err != nil {
		return List{}, errors.Annotate(err, "list")
	}
	var l List
	if l.Version, err = intField(m, "version"); err != nil {
		return l, err
	}
	if l.Serial, err = intField(m, "serial"); err != nil {
		return l, err
	}
	if l.Ts, err = intField(m, "ts"); err != nil {
		return l, err
	}
	items, ok := m["list"].([]interface{})
	if !ok {
		return l, errors.NotValidf("list field=list type=%T", m["list"])
	}
	l.List = make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return l, errors.NotValidf("list field=list[%d] type=%T", i, item)
		}
		l.List = append(l.List, s)
	}
	return l, nil
}

func ParseDelta(payload interface{}) (Delta, error) {
	m, err := asMap(payload)
	if err != nil {
		return Delta{}, errors.Annotate(err, "delta")
	}
	var d Delta
	if d.Version, err = intField(m, "version"); err != nil {
		return d, err
	}
	if d.Serial, err = intField(m, "serial"); err != nil {
		return d, err
	}
	// ts is optional in older publisher versions
	if _, ok := m["ts"]; ok {
		if d.Ts, err = intField(m, "ts"); err != nil {
			return d, err
		}
	}
	if d.Delta, err = stringField(m, "delta"); err != nil {
		return d, err
	}
	if d.Delta != DeltaPositive && d.Delta != DeltaNegative {
		return d, errors.NotValidf("delta field=delta value=%q", d.Delta)
	}
	if d.IP, err = stringField(m, "ip"); err != nil {
		return d, err
	}
	return d, nil
}

func asMap(payload interface{}) (map[string]interface{}, error) {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return nil, errors.NotValidf("payload type=%T", payload)
	}
	return m, nil
}

func intField(m map[string]interface{}, key string) (int64, error) {
	switch x := m[key].(type) {
	case int64:
		return x, nil
	case uint64:
		if x > 1<<63-1 {
			return 0, errors.NotValidf("field=%s overflow", key)
		}
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return 0, errors.NotValidf("field=%s value=%v not integer", key, x)
		}
		return int64(x), nil
	case nil:
		return 0, errors.NotFoundf("field=%s", key)
	default:
		return 0, errors.NotValidf("field=%s type=%T", key, x)
	}
}

func stringField(m map[string]interface{}, key string) (string, error) {
	switch x := m[key].(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case nil:
		return "", errors.NotFoundf("field=%s", key)
	default:
		return "", errors.NotValidf("field=%s type=%T", key, x)
	}
}
