// Package receiver pulls messages from channel, validates and dispatches them.
//
// Loop contract:
//   - single consumer of Channel, no state carried between iterations
//   - invalid message goes to OnError, loop continues with next one
//   - handler error goes to OnError, loop continues
//   - returns nil on ctx cancel, alive stop or channel close; error only from transport
package receiver

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/dynfw/helpers"
	"github.com/temoto/dynfw/internal/channel"
	"github.com/temoto/dynfw/internal/message"
	"github.com/temoto/dynfw/log2"
)

type MessageFunc func(ctx context.Context, m message.Message) error
type ErrorFunc func(ctx context.Context, err error)

type Loop struct {
	Channel   channel.Channel
	Validator *message.Validator
	OnMessage MessageFunc
	OnError   ErrorFunc // default logs error
	Log       *log2.Log // default stderr
	// optional, Stop() ends Run
	Alive *alive.Alive
	// zero disables periodic stat log
	StatInterval time.Duration

	Stat Stat
}

func (self *Loop) Run(ctx context.Context) error {
	if self.Channel == nil || self.OnMessage == nil {
		panic("code error receiver.Loop requires Channel and OnMessage")
	}
	if self.Validator == nil {
		self.Validator = message.NewValidator(nil)
	}
	if self.Log == nil {
		self.Log = log2.NewStderr(log2.LInfo)
	}
	if self.OnError == nil {
		self.OnError = LogErrors(self.Log)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if self.Alive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-self.Alive.StopChan():
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	if self.StatInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			self.statLoop(ctx)
		}()
	}
	defer func() { self.Log.Infof("receiver stop %s", self.Stat.String()) }()

	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := self.Channel.Receive(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, channel.ErrClosed):
			return nil
		default:
			return errors.Annotate(err, "receiver")
		}
		self.handle(ctx, raw)
	}
}

func (self *Loop) handle(ctx context.Context, raw message.Raw) {
	self.Stat.received()
	m, err := self.Validator.Validate(raw)
	if err != nil {
		self.Stat.invalid(message.KindOf(err))
		self.OnError(ctx, err)
		return
	}
	self.Log.Debugf("receiver topic=%s", m.Topic)
	if err = self.OnMessage(ctx, m); err != nil {
		self.Stat.handlerError()
		self.OnError(ctx, errors.Annotatef(err, "handler topic=%s", m.Topic))
		return
	}
	self.Stat.delivered()
}

func (self *Loop) statLoop(ctx context.Context) {
	tick := time.NewTicker(self.StatInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			self.Log.Infof("receiver %s", self.Stat.String())
		case <-ctx.Done():
			return
		}
	}
}

// LogErrors is default error sink, nil log means stderr.
func LogErrors(log *log2.Log) ErrorFunc {
	if log == nil {
		log = log2.NewStderr(log2.LInfo)
	}
	return func(_ context.Context, err error) { log.Error(err) }
}

// Multi calls every handler, errors are joined.
func Multi(fs ...MessageFunc) MessageFunc {
	return func(ctx context.Context, m message.Message) error {
		var errs []error
		for _, f := range fs {
			if err := f(ctx, m); err != nil {
				errs = append(errs, err)
			}
		}
		return helpers.FoldErrors(errs)
	}
}
