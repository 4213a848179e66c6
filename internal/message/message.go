// Package message validates inbound two-frame messages: topic, msgpack payload.
package message

import (
	"bytes"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/juju/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// TopicGrammar: one or more lowercase segments separated by `/`.
const TopicGrammar = `^([a-z0-9_]+/)*[a-z0-9_]+$`

var DefaultGrammar = regexp.MustCompile(TopicGrammar)

// Raw is ordered frames of one inbound message.
type Raw [][]byte

type Message struct {
	Topic   string
	Payload interface{}
}

type Kind uint8

const (
	KindInvalid Kind = iota
	MissingFrame
	UndecodableTopic
	InvalidTopicFormat
	UndecodablePayload
)

var kindNames = [...]string{
	KindInvalid:        "invalid",
	MissingFrame:       "missing_frame",
	UndecodableTopic:   "undecodable_topic",
	InvalidTopicFormat: "invalid_topic_format",
	UndecodablePayload: "undecodable_payload",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Kinds lists every validation failure kind, in order.
func Kinds() []Kind {
	return []Kind{MissingFrame, UndecodableTopic, InvalidTopicFormat, UndecodablePayload}
}

// ValidationError is scoped to one message. Topic is the raw first frame, if any.
type ValidationError struct {
	Kind   Kind
	Frames int
	Topic  []byte
	Err    error
}

func (e *ValidationError) Error() string {
	s := fmt.Sprintf("message %s frames=%d", e.Kind, e.Frames)
	if e.Kind != MissingFrame || e.Frames > 0 {
		s += fmt.Sprintf(" topic=%q", e.Topic)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *ValidationError) Unwrap() error { return e.Err }

// KindOf returns KindInvalid for nil or errors other than *ValidationError.
func KindOf(err error) Kind {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return KindInvalid
}

type Validator struct {
	grammar *regexp.Regexp
}

func NewValidator(grammar *regexp.Regexp) *Validator {
	if grammar == nil {
		grammar = DefaultGrammar
	}
	return &Validator{grammar: grammar}
}

// Validate checks, in order: frame count, topic UTF-8, topic grammar, payload decoding.
// Frames after the second are ignored.
func (self *Validator) Validate(raw Raw) (Message, error) {
	if len(raw) < 2 {
		verr := &ValidationError{Kind: MissingFrame, Frames: len(raw)}
		if len(raw) == 1 {
			verr.Topic = raw[0]
		}
		return Message{}, verr
	}
	topicFrame, payloadFrame := raw[0], raw[1]
	if !utf8.Valid(topicFrame) {
		return Message{}, &ValidationError{Kind: UndecodableTopic, Frames: len(raw), Topic: topicFrame}
	}
	topic := string(topicFrame)
	if !self.grammar.MatchString(topic) {
		return Message{}, &ValidationError{Kind: InvalidTopicFormat, Frames: len(raw), Topic: topicFrame}
	}
	payload, err := DecodePayload(payloadFrame)
	if err != nil {
		return Message{}, &ValidationError{Kind: UndecodablePayload, Frames: len(raw), Topic: topicFrame, Err: err}
	}
	return Message{Topic: topic, Payload: payload}, nil
}

// DecodePayload decodes exactly one msgpack value.
// Maps decode to map[string]interface{}, integers to int64/uint64, floats to float64.
func DecodePayload(b []byte) (interface{}, error) {
	if len(b) == 0 {
		return nil, errors.NotValidf("empty payload")
	}
	// Skip walks structure without allocating, so declared array/map lengths
	// are backed by real bytes before decoder preallocates for them.
	r := bytes.NewReader(b)
	if err := msgpack.NewDecoder(r).Skip(); err != nil {
		return nil, errors.Annotate(err, "msgpack")
	}
	if r.Len() != 0 {
		return nil, errors.NotValidf("msgpack trailing data length=%d", r.Len())
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, errors.Annotate(err, "msgpack")
	}
	if err = checkStrings(v); err != nil {
		return nil, err
	}
	return v, nil
}

// msgpack str must be UTF-8, as publisher encodes text only as str.
func checkStrings(v interface{}) error {
	switch x := v.(type) {
	case string:
		if !utf8.ValidString(x) {
			return errors.NotValidf("msgpack str encoding")
		}
	case []interface{}:
		for _, item := range x {
			if err := checkStrings(item); err != nil {
				return err
			}
		}
	case map[string]interface{}:
		for k, item := range x {
			if err := checkStrings(k); err != nil {
				return err
			}
			if err := checkStrings(item); err != nil {
				return err
			}
		}
	case map[interface{}]interface{}:
		for k, item := range x {
			if err := checkStrings(k); err != nil {
				return err
			}
			if err := checkStrings(item); err != nil {
				return err
			}
		}
	}
	return nil
}
