// Package channel opens CURVE-encrypted ZeroMQ SUB connection to the publisher.
//
// Channel contract:
//   - Open fails only with invalid configuration or transport setup errors,
//     server availability is not checked, libzmq connects and reconnects in background
//   - server must prove possession of trusted key, otherwise no message is ever delivered
//     and handshake failures are logged
//   - Receive blocks until complete multipart message, ctx done or Close
package channel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	zmq "github.com/pebbe/zmq4"
	"github.com/temoto/dynfw/internal/identity"
	"github.com/temoto/dynfw/internal/message"
	"github.com/temoto/dynfw/internal/trust"
	"github.com/temoto/dynfw/log2"
)

const (
	DefaultHost = "sentinel.turris.cz"
	DefaultPort = 7087
)

var ErrClosed = errors.New("channel closed")

type Channel interface {
	Receive(ctx context.Context) (message.Raw, error)
	Close() error
}

type Subscription struct {
	Host        string
	Port        int
	TopicPrefix string
}

// Endpoint is ZeroMQ tcp address, IPv6 literal in brackets.
func (s Subscription) Endpoint() string {
	return "tcp://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type ConnectionError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("channel %s endpoint=%s: %v", e.Op, e.Endpoint, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

type result struct {
	raw message.Raw
	err error
}

type ZmqChannel struct {
	log      *log2.Log
	zctx     *zmq.Context
	endpoint string
	out      chan result
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

var _ Channel = (*ZmqChannel)(nil)

var monitorSeq uint32

func Open(log *log2.Log, kp identity.KeyPair, server trust.ServerKey, sub Subscription) (*ZmqChannel, error) {
	endpoint := sub.Endpoint()
	fail := func(op string, err error) (*ZmqChannel, error) {
		return nil, &ConnectionError{Endpoint: endpoint, Op: op, Err: err}
	}
	if sub.Host == "" {
		return fail("config", errors.NotValidf("empty host"))
	}
	if sub.Port <= 0 || sub.Port > 65535 {
		return fail("config", errors.NotValidf("port=%d", sub.Port))
	}
	if sub.TopicPrefix == "" {
		return fail("config", errors.NotValidf("empty topic prefix"))
	}
	if !zmq.HasCurve() {
		return fail("config", errors.NotSupportedf("libzmq without CURVE"))
	}

	zctx, err := zmq.NewContext()
	if err != nil {
		return fail("context", err)
	}
	sock, err := zctx.NewSocket(zmq.SUB)
	if err != nil {
		_ = zctx.Term()
		return fail("socket", err)
	}
	abort := func(op string, err error) (*ZmqChannel, error) {
		_ = sock.Close()
		_ = zctx.Term()
		return fail(op, err)
	}
	if err = sock.SetLinger(0); err != nil {
		return abort("linger", err)
	}
	if err = sock.SetIpv6(true); err != nil {
		return abort("ipv6", err)
	}
	if err = sock.ClientAuthCurve(server.PublicZ85(), kp.PublicZ85(), kp.SecretZ85()); err != nil {
		return abort("curve", err)
	}
	if err = sock.SetSubscribe(sub.TopicPrefix); err != nil {
		return abort("subscribe", err)
	}

	self := &ZmqChannel{
		log:      log,
		zctx:     zctx,
		endpoint: endpoint,
		out:      make(chan result),
		stopCh:   make(chan struct{}),
	}
	monitor, err := self.startMonitor(sock)
	if err != nil {
		return abort("monitor", err)
	}
	if err = sock.Connect(endpoint); err != nil {
		_ = monitor.Close()
		return abort("connect", err)
	}
	log.Infof("channel connecting endpoint=%s prefix=%q client=%s server=%s",
		endpoint, sub.TopicPrefix, kp.PublicZ85(), server.PublicZ85())

	self.wg.Add(2)
	go self.monitorLoop(monitor)
	go self.readLoop(sock)
	return self, nil
}

func (self *ZmqChannel) Endpoint() string { return self.endpoint }

func (self *ZmqChannel) Receive(ctx context.Context) (message.Raw, error) {
	select {
	case r, ok := <-self.out:
		if !ok {
			return nil, ErrClosed
		}
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close interrupts blocked Receive and releases libzmq resources.
func (self *ZmqChannel) Close() error {
	var err error
	self.once.Do(func() {
		close(self.stopCh)
		// unblocks socket calls in readLoop and monitorLoop with ETERM,
		// returns after both closed their sockets
		err = self.zctx.Term()
		self.wg.Wait()
	})
	return errors.Annotate(err, "channel close")
}

// readLoop owns the SUB socket.
func (self *ZmqChannel) readLoop(sock *zmq.Socket) {
	defer self.wg.Done()
	defer close(self.out)
	defer sock.Close()
	for {
		frames, err := sock.RecvMessageBytes(0)
		if err != nil {
			if zmq.AsErrno(err) == zmq.ETERM {
				return
			}
			err = errors.Annotate(err, "channel receive")
			select {
			case self.out <- result{err: err}:
			case <-self.stopCh:
			}
			return
		}
		select {
		case self.out <- result{raw: message.Raw(frames)}:
		case <-self.stopCh:
			return
		}
	}
}

func (self *ZmqChannel) startMonitor(sock *zmq.Socket) (*zmq.Socket, error) {
	addr := fmt.Sprintf("inproc://dynfw.channel.monitor.%d", atomic.AddUint32(&monitorSeq, 1))
	if err := sock.Monitor(addr, zmq.EVENT_ALL); err != nil {
		return nil, err
	}
	monitor, err := self.zctx.NewSocket(zmq.PAIR)
	if err != nil {
		return nil, err
	}
	if err = monitor.SetLinger(0); err == nil {
		err = monitor.Connect(addr)
	}
	if err != nil {
		_ = monitor.Close()
		return nil, err
	}
	return monitor, nil
}

// monitorLoop makes transport state visible, especially failed CURVE handshake.
func (self *ZmqChannel) monitorLoop(monitor *zmq.Socket) {
	defer self.wg.Done()
	defer monitor.Close()
	for {
		ev, addr, value, err := monitor.RecvEvent(0)
		if err != nil {
			if zmq.AsErrno(err) != zmq.ETERM {
				self.log.Errorf("channel monitor endpoint=%s err=%v", self.endpoint, err)
			}
			return
		}
		switch ev {
		case zmq.EVENT_CONNECTED, zmq.EVENT_DISCONNECTED, zmq.EVENT_HANDSHAKE_SUCCEEDED:
			self.log.Infof("channel %s addr=%s", eventName(ev), addr)
		case zmq.EVENT_HANDSHAKE_FAILED_NO_DETAIL, zmq.EVENT_HANDSHAKE_FAILED_PROTOCOL, zmq.EVENT_HANDSHAKE_FAILED_AUTH:
			self.log.Errorf("channel %s addr=%s value=%d (server key mismatch?)", eventName(ev), addr, value)
		case zmq.EVENT_MONITOR_STOPPED:
			self.log.Debugf("channel %s", eventName(ev))
		default:
			self.log.Debugf("channel %s addr=%s value=%d", eventName(ev), addr, value)
		}
	}
}

func eventName(ev zmq.Event) string {
	switch ev {
	case zmq.EVENT_CONNECTED:
		return "connected"
	case zmq.EVENT_CONNECT_DELAYED:
		return "connect_delayed"
	case zmq.EVENT_CONNECT_RETRIED:
		return "connect_retried"
	case zmq.EVENT_CLOSED:
		return "closed"
	case zmq.EVENT_DISCONNECTED:
		return "disconnected"
	case zmq.EVENT_MONITOR_STOPPED:
		return "monitor_stopped"
	case zmq.EVENT_HANDSHAKE_SUCCEEDED:
		return "handshake_succeeded"
	case zmq.EVENT_HANDSHAKE_FAILED_NO_DETAIL:
		return "handshake_failed"
	case zmq.EVENT_HANDSHAKE_FAILED_PROTOCOL:
		return "handshake_failed_protocol"
	case zmq.EVENT_HANDSHAKE_FAILED_AUTH:
		return "handshake_failed_auth"
	}
	return fmt.Sprintf("event(%d)", int(ev))
}
