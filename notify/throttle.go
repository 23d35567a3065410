package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-ledger-sync/classify"
	"golang.org/x/time/rate"
)

const (
	defaultMaxOutstanding = 2
	defaultMinGap         = 1 * time.Second
	defaultTTL            = 5 * time.Second
)

// Ticket is a notification shown to the user. It lives only for the display TTL.
type Ticket struct {
	ID        string            `json:"id"`
	Message   string            `json:"message"`
	Category  classify.Category `json:"category,omitempty"`
	Action    classify.Action   `json:"action"`
	EmittedAt time.Time         `json:"emittedAt"`
}

// Sink presents tickets. Implementations must not block.
type Sink interface {
	Show(t Ticket)
	Dismiss(ids []string)
}

// Emitter is what the session manager and the coordinator publish status through.
type Emitter interface {
	Emit(message string, category classify.Category) (Ticket, bool)
}

// Throttle rate-limits and deduplicates user facing notifications.
// Emissions within minGap of the previous emission are dropped; when maxOutstanding tickets are
// still showing, they are all cleared before the new one is shown.
type Throttle struct {
	sink           Sink
	maxOutstanding int
	minGap         time.Duration
	ttl            time.Duration
	nowTime        func() time.Time

	pending []Ticket
	gap     *rate.Limiter // one token per minGap; nil when minGap is zero
	lock    sync.Mutex
}

var _ Emitter = (*Throttle)(nil)

type Option func(*Throttle)

func WithNowTime(nowFunc func() time.Time) Option {
	return func(t *Throttle) {
		t.nowTime = nowFunc
	}
}

func WithLimits(maxOutstanding int, minGap, ttl time.Duration) Option {
	return func(t *Throttle) {
		if maxOutstanding > 0 {
			t.maxOutstanding = maxOutstanding
		}
		if minGap >= 0 {
			t.minGap = minGap
		}
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

func NewThrottle(sink Sink, options ...Option) *Throttle {
	if sink == nil {
		sink = discardSink{}
	}
	t := &Throttle{
		sink:           sink,
		maxOutstanding: defaultMaxOutstanding,
		minGap:         defaultMinGap,
		ttl:            defaultTTL,
		nowTime:        time.Now,
	}
	for _, opt := range options {
		opt(t)
	}
	if t.minGap > 0 {
		t.gap = rate.NewLimiter(rate.Every(t.minGap), 1)
	}
	return t
}

// Emit shows message unless it is throttled. It reports whether a ticket was shown.
func (t *Throttle) Emit(message string, category classify.Category) (Ticket, bool) {
	t.lock.Lock()
	now := t.nowTime()
	t.expireLocked(now)

	if t.gap != nil && t.gap.TokensAt(now) < 1 {
		t.lock.Unlock()
		return Ticket{}, false
	}
	for _, p := range t.pending {
		if p.Message == message && p.Category == category {
			t.lock.Unlock()
			return Ticket{}, false
		}
	}

	var cleared []string
	if len(t.pending) >= t.maxOutstanding {
		for _, p := range t.pending {
			cleared = append(cleared, p.ID)
		}
		t.pending = nil
	}

	ticket := Ticket{
		ID:        uuid.NewString(),
		Message:   message,
		Category:  category,
		Action:    classify.ActionFor(category),
		EmittedAt: now,
	}
	t.pending = append(t.pending, ticket)
	if t.gap != nil {
		t.gap.AllowN(now, 1)
	}
	t.lock.Unlock()

	if len(cleared) > 0 {
		t.sink.Dismiss(cleared)
	}
	t.sink.Show(ticket)
	return ticket, true
}

// Pending returns the tickets still showing, oldest first.
func (t *Throttle) Pending() []Ticket {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.expireLocked(t.nowTime())
	return append([]Ticket(nil), t.pending...)
}

// Dismiss removes a ticket before its TTL lapses.
func (t *Throttle) Dismiss(id string) bool {
	t.lock.Lock()
	found := false
	for i, p := range t.pending {
		if p.ID == id {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			found = true
			break
		}
	}
	t.lock.Unlock()
	if found {
		t.sink.Dismiss([]string{id})
	}
	return found
}

func (t *Throttle) expireLocked(now time.Time) {
	kept := t.pending[:0]
	for _, p := range t.pending {
		if now.Sub(p.EmittedAt) < t.ttl {
			kept = append(kept, p)
		}
	}
	t.pending = kept
}

type discardSink struct{}

func (discardSink) Show(Ticket) {}
func (discardSink) Dismiss([]string) {}
