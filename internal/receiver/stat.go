package receiver

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/temoto/dynfw/helpers/atomic_clock"
	"github.com/temoto/dynfw/internal/message"
)

// Stat is safe to read while loop runs.
type Stat struct {
	Received      uint64
	Delivered     uint64
	HandlerErrors uint64
	LoggedErrors  uint64 // see ErrorLogged
	Invalid       [message.UndecodablePayload + 1]uint64
	LastMessage   atomic_clock.Clock
}

func (self *Stat) received() {
	atomic.AddUint64(&self.Received, 1)
	self.LastMessage.SetNow()
}
func (self *Stat) delivered()    { atomic.AddUint64(&self.Delivered, 1) }
func (self *Stat) handlerError() { atomic.AddUint64(&self.HandlerErrors, 1) }
// ErrorLogged fits log2.Log.SetErrorFunc, so transport and handler errors
// logged anywhere in the process show up in stats.
func (self *Stat) ErrorLogged(error) { atomic.AddUint64(&self.LoggedErrors, 1) }

func (self *Stat) invalid(k message.Kind) {
	if int(k) < len(self.Invalid) {
		atomic.AddUint64(&self.Invalid[k], 1)
	}
}

func (self *Stat) InvalidCount(k message.Kind) uint64 {
	if int(k) >= len(self.Invalid) {
		return 0
	}
	return atomic.LoadUint64(&self.Invalid[k])
}

func (self *Stat) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "received=%d delivered=%d handler_errors=%d",
		atomic.LoadUint64(&self.Received),
		atomic.LoadUint64(&self.Delivered),
		atomic.LoadUint64(&self.HandlerErrors))
	for _, k := range message.Kinds() {
		fmt.Fprintf(&b, " %s=%d", k, self.InvalidCount(k))
	}
	fmt.Fprintf(&b, " logged_errors=%d", atomic.LoadUint64(&self.LoggedErrors))
	if age, ok := self.LastMessage.Age(); ok {
		fmt.Fprintf(&b, " last=%s", age.Truncate(time.Millisecond))
	} else {
		b.WriteString(" last=never")
	}
	return b.String()
}
