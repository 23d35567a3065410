// Package resourcesync loads accounting resources for the selected tenant. Loads of one key are
// debounced and never overlap; a full sweep walks every key one at a time with a pause between
// requests, since the remote platform rate limits each tenant.
package resourcesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-ledger-sync/auth"
	"github.com/jrsteele09/go-ledger-sync/classify"
	interrors "github.com/jrsteele09/go-ledger-sync/internal/errors"
	"github.com/jrsteele09/go-ledger-sync/notify"
	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/jrsteele09/go-ledger-sync/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultDebounce        = 5 * time.Second
	defaultLoadAllDebounce = 10 * time.Second
	defaultPacing          = 750 * time.Millisecond
	defaultPageSize        = 100
)

type entry struct {
	state    State
	inflight *Load
}

// Coordinator owns the per-key load state.
type Coordinator struct {
	session         Session
	tokens          token.Reader
	selector        *tenants.Selector
	fetcher         Fetcher
	notifier        notify.Emitter
	retry           *RefreshRetry
	debounce        time.Duration
	loadAllDebounce time.Duration
	pacing          time.Duration
	pageSize        int
	nowTime         func() time.Time

	states         map[Key]*entry
	lastLoadAll    time.Time
	loadAllRunning bool
	gen            context.Context
	genCancel      context.CancelFunc
	lock           sync.Mutex
}

type Option func(*Coordinator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

// WithDebounce overrides the per-key and the load-all debounce windows.
func WithDebounce(perKey, loadAll time.Duration) Option {
	return func(c *Coordinator) {
		c.debounce = perKey
		c.loadAllDebounce = loadAll
	}
}

// WithPacing sets the pause between requests of a sweep. Non-positive values keep the default.
func WithPacing(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pacing = d
		}
	}
}

func WithPageSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithNotifier(n notify.Emitter) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

func NewCoordinator(
	session Session,
	tokens token.Reader,
	selector *tenants.Selector,
	fetcher Fetcher,
	options ...Option,
) (*Coordinator, error) {
	if session == nil {
		return nil, errors.New("[NewCoordinator] session is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewCoordinator] token reader is required")
	}
	if selector == nil {
		return nil, errors.New("[NewCoordinator] tenant selector is required")
	}
	if fetcher == nil {
		return nil, errors.New("[NewCoordinator] fetcher is required")
	}

	c := &Coordinator{
		session:         session,
		tokens:          tokens,
		selector:        selector,
		fetcher:         fetcher,
		notifier:        nopEmitter{},
		debounce:        defaultDebounce,
		loadAllDebounce: defaultLoadAllDebounce,
		pacing:          defaultPacing,
		pageSize:        defaultPageSize,
		nowTime:         time.Now,
		states:          make(map[Key]*entry),
	}
	for _, opt := range options {
		opt(c)
	}
	c.retry = NewRefreshRetry(session, tokens, c.nowTime)
	c.gen, c.genCancel = context.WithCancel(context.Background())

	selector.OnChange(func(tenants.Tenant, bool) { c.cancelGeneration() })
	session.OnReset(c.Reset)
	return c, nil
}

// LoadOne starts loading key for the selected tenant and returns the load handle. A load already in
// flight for key is returned as is. A call inside the debounce window gets a *ThrottledError and
// issues no request. The load outlives ctx; use Load.Cancel to abort it.
func (c *Coordinator) LoadOne(ctx context.Context, key Key) (*Load, error) {
	if !key.Valid() {
		return nil, interrors.Wrapf(interrors.ErrUnknownResource, "[Coordinator.LoadOne] %q", key)
	}
	load, started, err := c.begin(context.WithoutCancel(ctx), key, false)
	if err != nil {
		return nil, err
	}
	if started {
		go c.run(load, true)
	}
	return load, nil
}

// LoadAll loads every key in order, one request at a time with the pacing delay in between.
// Individual failures are recorded per key; an error is returned only when nothing loaded.
// The sweep stops issuing requests when ctx is cancelled, the session stops being connected or
// the tenant changes; the keys not reached are reported as skipped.
func (c *Coordinator) LoadAll(ctx context.Context) (Summary, error) {
	tenant, err := c.beginLoadAll()
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		c.lock.Lock()
		c.loadAllRunning = false
		c.lock.Unlock()
	}()

	sweepCtx, cancel := c.joinGeneration(ctx)
	defer cancel()

	summary := Summary{TenantID: tenant.ID, StartedAt: c.nowTime()}
	stopped := ""
	pending := false // a request finished and the next one waits the pacing delay

	for _, key := range keyOrder {
		if stopped == "" {
			stopped = c.stopReason(sweepCtx, tenant.ID)
		}
		if stopped == "" && pending {
			if err := c.pause(sweepCtx); err != nil {
				stopped = c.stopReason(sweepCtx, tenant.ID)
			}
		}
		if stopped != "" {
			summary.add(KeyResult{Key: key, Outcome: OutcomeSkipped, Message: stopped})
			continue
		}

		load, started, err := c.begin(sweepCtx, key, true)
		if err != nil {
			summary.add(failedResult(key, classify.Wrap(err)))
			continue
		}
		pending = true
		if started {
			c.run(load, false)
		} else {
			select {
			case <-load.Done():
			case <-sweepCtx.Done():
				stopped = c.stopReason(sweepCtx, tenant.ID)
				summary.add(KeyResult{Key: key, Outcome: OutcomeSkipped, Message: stopped})
				continue
			}
		}

		res, _ := load.Result()
		if res.Err != nil {
			summary.add(failedResult(key, res.Err))
		} else {
			summary.add(KeyResult{Key: key, Outcome: OutcomeLoaded})
		}
	}
	summary.FinishedAt = c.nowTime()

	log.Info().
		Str("tenant", tenant.ID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("load all finished")

	if summary.Succeeded == 0 {
		ce := &classify.Error{
			Category: summary.firstFailure(),
			Message:  fmt.Sprintf("no resources loaded (%d failed, %d skipped)", summary.Failed, summary.Skipped),
			Err:      interrors.ErrNothingLoaded,
		}
		c.notifier.Emit("Sync failed: nothing could be loaded", ce.Category)
		return summary, ce
	}
	if summary.Failed > 0 || summary.Skipped > 0 {
		c.notifier.Emit(fmt.Sprintf("Synced %d of %d resources", summary.Succeeded, len(keyOrder)), summary.firstFailure())
	} else {
		c.notifier.Emit("All resources synced", "")
	}
	return summary, nil
}

// State returns the bookkeeping for key. ok is false if key was never attempted.
func (c *Coordinator) State(key Key) (State, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	e, ok := c.states[key]
	if !ok {
		return State{}, false
	}
	return e.snapshot(), true
}

// States returns the bookkeeping of every attempted key in LoadAll order.
func (c *Coordinator) States() []State {
	c.lock.Lock()
	defer c.lock.Unlock()
	out := make([]State, 0, len(c.states))
	for _, key := range keyOrder {
		if e, ok := c.states[key]; ok {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// Reset cancels every running load and forgets all load state. Results of loads cancelled by the
// reset still reach their Load handle but are not written back.
func (c *Coordinator) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.genCancel()
	c.gen, c.genCancel = context.WithCancel(context.Background())
	c.states = make(map[Key]*entry)
	c.lastLoadAll = time.Time{}
	log.Debug().Msg("resource sync state reset")
}

// cancelGeneration aborts loads started for the previous tenant. Their state is kept.
func (c *Coordinator) cancelGeneration() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.genCancel()
	c.gen, c.genCancel = context.WithCancel(context.Background())
}

// joinGeneration derives a context that ends with parent or with the current generation.
func (c *Coordinator) joinGeneration(parent context.Context) (context.Context, context.CancelFunc) {
	c.lock.Lock()
	gen := c.gen
	c.lock.Unlock()
	return joinContext(parent, gen)
}

func joinContext(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// preconditions must hold for a key to go in flight.
func (c *Coordinator) preconditions() (tenants.Tenant, error) {
	switch c.session.Status() {
	case auth.StatusConnected:
	case auth.StatusExpired:
		return tenants.Tenant{}, classify.New(classify.TokenExpired, "the accounting connection has expired")
	default:
		return tenants.Tenant{}, classify.WrapAs(classify.NotConnected, auth.NotConnectedErr)
	}
	tenant, ok := c.selector.Current()
	if !ok {
		return tenants.Tenant{}, classify.WrapAs(classify.TenantNotFound, interrors.ErrNoTenantSelected)
	}
	return tenant, nil
}

func (c *Coordinator) begin(parent context.Context, key Key, bypassDebounce bool) (*Load, bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	e := c.states[key]
	if e != nil && e.inflight != nil {
		return e.inflight, false, nil
	}

	tenant, err := c.preconditions()
	if err != nil {
		return nil, false, err
	}

	now := c.nowTime()
	if e != nil && !bypassDebounce && !e.state.LastAttemptAt.IsZero() {
		if wait := c.debounce - now.Sub(e.state.LastAttemptAt); wait > 0 {
			return nil, false, &ThrottledError{Key: key, RetryAfter: wait}
		}
	}

	if e == nil {
		e = &entry{state: State{Key: key}}
		c.states[key] = e
	}
	ctx, cancel := joinContext(parent, c.gen)
	load := &Load{
		ID:        uuid.NewString(),
		Key:       key,
		TenantID:  tenant.ID,
		StartedAt: now,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	e.inflight = load
	e.state.InFlight = true
	e.state.LastAttemptAt = now
	return load, true, nil
}

func (c *Coordinator) beginLoadAll() (tenants.Tenant, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.nowTime()
	if c.loadAllRunning {
		return tenants.Tenant{}, &ThrottledError{RetryAfter: c.loadAllDebounce}
	}
	if !c.lastLoadAll.IsZero() {
		if wait := c.loadAllDebounce - now.Sub(c.lastLoadAll); wait > 0 {
			return tenants.Tenant{}, &ThrottledError{RetryAfter: wait}
		}
	}
	tenant, err := c.preconditions()
	if err != nil {
		return tenants.Tenant{}, err
	}
	c.lastLoadAll = now
	c.loadAllRunning = true
	return tenant, nil
}

// pause waits the pacing delay, counted from the end of the previous request.
func (c *Coordinator) pause(ctx context.Context) error {
	timer := time.NewTimer(c.pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) stopReason(ctx context.Context, tenantID string) string {
	if c.session.Status() != auth.StatusConnected {
		return "session not connected"
	}
	if cur, ok := c.selector.Current(); !ok || cur.ID != tenantID {
		return "tenant changed"
	}
	if ctx.Err() != nil {
		return "cancelled"
	}
	return ""
}

func (c *Coordinator) run(load *Load, announce bool) {
	defer load.cancel()

	var data json.RawMessage
	err := c.retry.Do(load.ctx, func(ctx context.Context, accessToken string) error {
		var ferr error
		data, ferr = c.fetcher.Fetch(ctx, Request{
			TenantID:    load.TenantID,
			Resource:    load.Key,
			Page:        1,
			PageSize:    c.pageSize,
			AccessToken: accessToken,
		})
		return ferr
	})

	res := Result{TenantID: load.TenantID, CompletedAt: c.nowTime()}
	if err != nil {
		res.Err = classify.Wrap(err)
		log.Warn().
			Str("resource", string(load.Key)).
			Str("tenant", load.TenantID).
			Str("category", string(res.Err.Category)).
			Msg(res.Err.Message)
	} else {
		res.Data = data
	}
	c.finish(load, res)

	if !announce {
		return
	}
	if res.Err != nil {
		c.notifier.Emit(fmt.Sprintf("Could not load %s: %s", load.Key, res.Err.Message), res.Err.Category)
	} else {
		c.notifier.Emit(fmt.Sprintf("Loaded %s", load.Key), "")
	}
}

func (c *Coordinator) finish(load *Load, res Result) {
	c.lock.Lock()
	if e, ok := c.states[load.Key]; ok && e.inflight == load {
		e.inflight = nil
		e.state.InFlight = false
		e.state.LastResult = &res
	}
	c.lock.Unlock()

	load.result = res
	close(load.done)
}

func (e *entry) snapshot() State {
	s := e.state
	if s.LastResult != nil {
		r := *s.LastResult
		s.LastResult = &r
	}
	return s
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, classify.Category) (notify.Ticket, bool) {
	return notify.Ticket{}, false
}
