package report

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/dynfw/helpers"
	"github.com/temoto/dynfw/internal/config"
	"github.com/temoto/dynfw/internal/message"
	"github.com/temoto/dynfw/log2"
	"github.com/vmihailenco/msgpack/v5"
)

// Short, Handle runs inside receive loop.
const DefaultPublishTimeout = 2 * time.Second

// Publisher is subset of mqtt.Client used by Forwarder.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// connChecker is implemented by mqtt.Client.
type connChecker interface {
	IsConnectionOpen() bool
}

var _ connChecker = mqtt.Client(nil)

// Forwarder republishes validated messages into MQTT broker.
// Forwarder contract:
//   - DialForwarder fails only with invalid config, broker availability is not checked
//   - paho keeps reconnecting in background
//   - Handle fails fast while broker connection is down
//   - Handle waits for publish at most PublishTimeout
type Forwarder struct {
	log            *log2.Log
	client         Publisher
	m              mqtt.Client // nil when client is injected
	topicPrefix    string
	format         string
	qos            byte
	PublishTimeout time.Duration
}

func NewForwarder(log *log2.Log, client Publisher, fc config.ForwardConfig) *Forwarder {
	return &Forwarder{
		log:            log,
		client:         client,
		topicPrefix:    fc.TopicPrefix,
		format:         fc.Format,
		qos:            byte(fc.Qos),
		PublishTimeout: DefaultPublishTimeout,
	}
}

// DialForwarder creates paho client and starts connecting in background.
func DialForwarder(log *log2.Log, fc config.ForwardConfig) (*Forwarder, error) {
	mqttLog := log.Clone(log2.LInfo)
	if fc.LogDebug {
		mqttLog.SetLevel(log2.LDebug)
		mqtt.DEBUG = pahoLog{mqttLog, log2.LDebug}
	}
	// paho loggers are package globals, last dialed forwarder wins
	mqtt.ERROR = pahoLog{mqttLog, log2.LError}
	mqtt.CRITICAL = pahoLog{mqttLog, log2.LError}
	mqtt.WARN = pahoLog{mqttLog, log2.LInfo}

	keepAlive := helpers.IntSecondDefault(fc.KeepaliveSec, 60*time.Second)
	opt := mqtt.NewClientOptions().
		AddBroker(fc.MqttBroker).
		SetClientID(fc.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetPingTimeout(keepAlive / 2).
		SetOrderMatters(false).
		SetConnectRetry(true).
		SetConnectRetryInterval(keepAlive / 2).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) { log.Infof("forward mqtt connect broker=%s", fc.MqttBroker) }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Infof("forward mqtt disconnect broker=%s err=%v", fc.MqttBroker, err)
		})
	if fc.Username != "" {
		opt.SetUsername(fc.Username).SetPassword(fc.Password)
	}
	m := mqtt.NewClient(opt)
	// with ConnectRetry token completes only after first successful connect
	if tok := m.Connect(); tok.Error() != nil {
		return nil, errors.Annotatef(tok.Error(), "forward mqtt connect broker=%s", fc.MqttBroker)
	}
	f := NewForwarder(log, m, fc)
	f.m = m
	return f, nil
}

func (self *Forwarder) Topic(m message.Message) string { return self.topicPrefix + m.Topic }

func (self *Forwarder) Encode(payload interface{}) ([]byte, error) {
	switch self.format {
	case config.FormatMsgpack:
		b, err := msgpack.Marshal(payload)
		return b, errors.Annotate(err, "forward encode msgpack")
	case config.FormatJSON, "":
		b, err := json.Marshal(jsonSafe(payload))
		return b, errors.Annotate(err, "forward encode json")
	}
	return nil, errors.NotSupportedf("forward format=%s", self.format)
}

func (self *Forwarder) Handle(ctx context.Context, m message.Message) error {
	payload, err := self.Encode(m.Payload)
	if err != nil {
		return err
	}
	topic := self.Topic(m)
	if cc, ok := self.client.(connChecker); ok && !cc.IsConnectionOpen() {
		return errors.Errorf("forward publish topic=%s: broker not connected", topic)
	}
	tok := self.client.Publish(topic, self.qos, false, payload)
	select {
	case <-tok.Done():
	case <-time.After(self.PublishTimeout):
		return errors.Timeoutf("forward publish topic=%s", topic)
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "forward publish topic=%s", topic)
	}
	if err = tok.Error(); err != nil {
		return errors.Annotatef(err, "forward publish topic=%s", topic)
	}
	self.log.Debugf("forward published topic=%s len=%d", topic, len(payload))
	return nil
}

func (self *Forwarder) Close() {
	if self.m != nil {
		self.m.Disconnect(250)
	}
}

// jsonSafe converts binary strings so JSON output stays valid UTF-8 text.
func jsonSafe(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = jsonSafe(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = jsonSafe(item)
		}
		return out
	}
	return v
}

type pahoLog struct {
	l     *log2.Log
	level log2.Level
}

func (self pahoLog) Println(v ...interface{}) {
	self.l.Log(self.level, "mqtt: "+fmt.Sprintln(v...))
}
func (self pahoLog) Printf(format string, v ...interface{}) {
	self.l.Logf(self.level, "mqtt: "+format, v...)
}
