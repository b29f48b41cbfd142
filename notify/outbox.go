package notify

import (
	"context"
	"sync"
	"time"

	"github.com/PaulFidika/verifykit/core"
)

// Delivered is a captured message.
type Delivered struct {
	To     string       `json:"to"`
	SentAt time.Time    `json:"sent_at"`
	Msg    core.Message `json:"message"`
}

// Outbox keeps the most recent messages per address in memory. It exists for development
// and tests, where codes must be readable without a mail server. Never enable it in production.
type Outbox struct {
	mu    sync.RWMutex
	max   int
	byTo  map[string][]Delivered
	nowFn func() time.Time
}

func NewOutbox(maxPerAddress int) *Outbox {
	if maxPerAddress <= 0 {
		maxPerAddress = 20
	}
	return &Outbox{max: maxPerAddress, byTo: make(map[string][]Delivered), nowFn: time.Now}
}

func (o *Outbox) Send(_ context.Context, address string, msg core.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := append(o.byTo[address], Delivered{To: address, SentAt: o.nowFn(), Msg: msg})
	if len(list) > o.max {
		list = list[len(list)-o.max:]
	}
	o.byTo[address] = list
	return nil
}

// Latest returns the newest message sent to address.
func (o *Outbox) Latest(address string) (Delivered, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	list := o.byTo[address]
	if len(list) == 0 {
		return Delivered{}, false
	}
	return list[len(list)-1], true
}

// All returns the messages for address, oldest first.
func (o *Outbox) All(address string) []Delivered {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Delivered(nil), o.byTo[address]...)
}

func (o *Outbox) Count(address string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.byTo[address])
}
