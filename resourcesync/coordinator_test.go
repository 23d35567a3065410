package resourcesync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-ledger-sync/auth"
	"github.com/jrsteele09/go-ledger-sync/classify"
	interrors "github.com/jrsteele09/go-ledger-sync/internal/errors"
	"github.com/jrsteele09/go-ledger-sync/resourcesync"
	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/jrsteele09/go-ledger-sync/token"
	"github.com/stretchr/testify/require"
)

var (
	tenantAcme   = tenants.Tenant{ID: "t-acme", Name: "Acme Ltd"}
	tenantGlobex = tenants.Tenant{ID: "t-globex", Name: "Globex"}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAuthorizer struct {
	mu           sync.Mutex
	exchange     *auth.Exchange
	lastState    string
	refreshCalls int
	refreshErr   error
}

func (f *fakeAuthorizer) CredentialsConfigured() bool { return true }

func (f *fakeAuthorizer) AuthorizationURL(_ context.Context, state string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastState = state
	return "https://login.example.com/authorize?state=" + state, nil
}

func (f *fakeAuthorizer) ExchangeCode(_ context.Context, _, _ string) (*auth.Exchange, error) {
	return f.exchange, nil
}

func (f *fakeAuthorizer) Refresh(_ context.Context, _ string) (*token.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &token.Record{AccessToken: fmt.Sprintf("access-%d", f.refreshCalls+1)}, nil
}

func (f *fakeAuthorizer) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type fakeFetcher struct {
	mu       sync.Mutex
	requests []resourcesync.Request
	times    []time.Time
	handle   func(ctx context.Context, req resourcesync.Request) (json.RawMessage, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, req resourcesync.Request) (json.RawMessage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.times = append(f.times, time.Now())
	handle := f.handle
	f.mu.Unlock()
	if handle == nil {
		return json.RawMessage(fmt.Sprintf(`{"resource":%q}`, req.Resource)), nil
	}
	return handle(ctx, req)
}

func (f *fakeFetcher) calls() []resourcesync.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]resourcesync.Request(nil), f.requests...)
}

type testFixture struct {
	clock      *clock
	authorizer *fakeAuthorizer
	tokens     *token.MemoryStore
	selector   *tenants.Selector
	session    *auth.SessionManager
	fetcher    *fakeFetcher
	coord      *resourcesync.Coordinator
}

func setupTestFixture(t *testing.T, list []tenants.Tenant, expiresIn time.Duration, opts ...resourcesync.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		clock:    &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		tokens:   token.NewMemoryStore(),
		selector: tenants.NewSelector(),
		fetcher:  &fakeFetcher{},
	}
	rec := token.Record{AccessToken: "access-1", RefreshToken: "refresh-1"}
	if expiresIn != 0 {
		rec.ExpiresAt = f.clock.Now().Add(expiresIn)
	}
	f.authorizer = &fakeAuthorizer{exchange: &auth.Exchange{Token: rec, Tenants: list}}

	var err error
	f.session, err = auth.NewSessionManager(f.authorizer, f.tokens, f.selector, auth.WithNowTime(f.clock.Now))
	require.NoError(t, err)

	opts = append([]resourcesync.Option{resourcesync.WithNowTime(f.clock.Now), resourcesync.WithPacing(time.Millisecond)}, opts...)
	f.coord, err = resourcesync.NewCoordinator(f.session, f.tokens, f.selector, f.fetcher, opts...)
	require.NoError(t, err)
	return f
}

func newConnectedFixture(t *testing.T, opts ...resourcesync.Option) *testFixture {
	t.Helper()
	f := setupTestFixture(t, []tenants.Tenant{tenantAcme}, 0, opts...)
	f.connect(t)
	return f
}

func (f *testFixture) connect(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.session.StartAuthorization(ctx)
	require.NoError(t, err)
	require.NoError(t, f.session.CompleteAuthorization(ctx, auth.Callback{Code: "code", State: f.authorizer.lastState}))
}

func waitLoad(t *testing.T, load *resourcesync.Load) (json.RawMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := load.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return data, err
}

func tokenExpiredErr() error {
	return errors.New("401 Unauthorized: TokenExpired: token expired at 2026-06-01")
}

func TestNewCoordinator_RequiresDependencies(t *testing.T) {
	f := setupTestFixture(t, nil, 0)
	_, err := resourcesync.NewCoordinator(nil, f.tokens, f.selector, f.fetcher)
	require.Error(t, err)
	_, err = resourcesync.NewCoordinator(f.session, nil, f.selector, f.fetcher)
	require.Error(t, err)
	_, err = resourcesync.NewCoordinator(f.session, f.tokens, nil, f.fetcher)
	require.Error(t, err)
	_, err = resourcesync.NewCoordinator(f.session, f.tokens, f.selector, nil)
	require.Error(t, err)
}

func TestLoadOne_Success(t *testing.T) {
	f := newConnectedFixture(t)

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyInvoices)
	require.NoError(t, err)
	require.Equal(t, tenantAcme.ID, load.TenantID)

	data, err := waitLoad(t, load)
	require.NoError(t, err)
	require.JSONEq(t, `{"resource":"invoices"}`, string(data))

	calls := f.fetcher.calls()
	require.Len(t, calls, 1)
	require.Equal(t, resourcesync.Request{
		TenantID:    tenantAcme.ID,
		Resource:    resourcesync.KeyInvoices,
		Page:        1,
		PageSize:    100,
		AccessToken: "access-1",
	}, calls[0])

	st, ok := f.coord.State(resourcesync.KeyInvoices)
	require.True(t, ok)
	require.False(t, st.InFlight)
	require.Equal(t, f.clock.Now(), st.LastAttemptAt)
	require.NotNil(t, st.LastResult)
	require.Nil(t, st.LastResult.Err)
}

func TestLoadOne_DebounceThrottles(t *testing.T) {
	f := newConnectedFixture(t)

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyContacts)
	require.NoError(t, err)
	_, err = waitLoad(t, load)
	require.NoError(t, err)

	f.clock.Advance(4 * time.Second)
	_, err = f.coord.LoadOne(context.Background(), resourcesync.KeyContacts)
	var throttled *resourcesync.ThrottledError
	require.ErrorAs(t, err, &throttled)
	require.Equal(t, time.Second, throttled.RetryAfter)
	require.Equal(t, classify.Throttled, classify.CategoryOf(err))
	require.False(t, classify.CategoryOf(err).IsFailure())
	require.Len(t, f.fetcher.calls(), 1, "a throttled call issues no request")

	// the window is per key
	other, err := f.coord.LoadOne(context.Background(), resourcesync.KeyItems)
	require.NoError(t, err)
	_, err = waitLoad(t, other)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	load, err = f.coord.LoadOne(context.Background(), resourcesync.KeyContacts)
	require.NoError(t, err)
	_, err = waitLoad(t, load)
	require.NoError(t, err)
	require.Len(t, f.fetcher.calls(), 3)
}

func TestLoadOne_InFlightReturnsSameLoad(t *testing.T) {
	f := newConnectedFixture(t)
	release := make(chan struct{})
	f.fetcher.handle = func(_ context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`[]`), nil
	}

	first, err := f.coord.LoadOne(context.Background(), resourcesync.KeyAccounts)
	require.NoError(t, err)
	second, err := f.coord.LoadOne(context.Background(), resourcesync.KeyAccounts)
	require.NoError(t, err)
	require.Same(t, first, second)

	st, ok := f.coord.State(resourcesync.KeyAccounts)
	require.True(t, ok)
	require.True(t, st.InFlight)

	close(release)
	_, err = waitLoad(t, first)
	require.NoError(t, err)
	require.Len(t, f.fetcher.calls(), 1)
}

func TestLoadOne_Preconditions(t *testing.T) {
	f := setupTestFixture(t, []tenants.Tenant{tenantAcme, tenantGlobex}, 0)

	_, err := f.coord.LoadOne(context.Background(), resourcesync.KeyInvoices)
	require.Equal(t, classify.NotConnected, classify.CategoryOf(err))

	f.connect(t)
	_, err = f.coord.LoadOne(context.Background(), resourcesync.KeyInvoices)
	require.Equal(t, classify.TenantNotFound, classify.CategoryOf(err), "two tenants and none selected")

	_, err = f.coord.LoadOne(context.Background(), resourcesync.Key("widgets"))
	require.ErrorIs(t, err, interrors.ErrUnknownResource)

	require.Empty(t, f.fetcher.calls())
	_, ok := f.coord.State(resourcesync.KeyInvoices)
	require.False(t, ok, "a rejected call creates no state")
}

func TestLoadOne_RefreshThenRetrySucceeds(t *testing.T) {
	f := newConnectedFixture(t)
	f.fetcher.handle = func(_ context.Context, req resourcesync.Request) (json.RawMessage, error) {
		if req.AccessToken == "access-1" {
			return nil, tokenExpiredErr()
		}
		return json.RawMessage(`{"ok":true}`), nil
	}

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyInvoices)
	require.NoError(t, err)
	data, err := waitLoad(t, load)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(data))

	calls := f.fetcher.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "access-2", calls[1].AccessToken)
	require.Equal(t, 1, f.authorizer.refreshes())
	require.Equal(t, auth.StatusConnected, f.session.Status())
}

func TestLoadOne_RetryFailsAgain(t *testing.T) {
	f := newConnectedFixture(t)
	f.fetcher.handle = func(_ context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		return nil, tokenExpiredErr()
	}

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyInvoices)
	require.NoError(t, err)
	_, err = waitLoad(t, load)
	require.Equal(t, classify.TokenExpired, classify.CategoryOf(err))

	require.Len(t, f.fetcher.calls(), 2, "one request and exactly one retry")
	require.Equal(t, 1, f.authorizer.refreshes())
	require.Equal(t, auth.StatusExpired, f.session.Status())
}

func TestLoadOne_FailedRefreshExpiresSession(t *testing.T) {
	f := newConnectedFixture(t)
	f.authorizer.refreshErr = errors.New("invalid_grant")
	f.fetcher.handle = func(_ context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		return nil, tokenExpiredErr()
	}

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyInvoices)
	require.NoError(t, err)
	_, err = waitLoad(t, load)
	require.Equal(t, classify.TokenExpired, classify.CategoryOf(err))

	require.Len(t, f.fetcher.calls(), 1, "no retry after a failed refresh")
	require.Equal(t, 1, f.authorizer.refreshes())
	require.Equal(t, auth.StatusExpired, f.session.Status())

	st, ok := f.coord.State(resourcesync.KeyInvoices)
	require.True(t, ok)
	require.Equal(t, classify.TokenExpired, st.LastResult.Err.Category)

	f.clock.Advance(time.Minute)
	_, err = f.coord.LoadOne(context.Background(), resourcesync.KeyInvoices)
	require.Equal(t, classify.TokenExpired, classify.CategoryOf(err))
	require.Len(t, f.fetcher.calls(), 1)
}

func TestLoadOne_OtherFailuresAreNotRetried(t *testing.T) {
	f := newConnectedFixture(t)
	f.fetcher.handle = func(_ context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		return nil, errors.New("429 Too Many Requests")
	}

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyQuotes)
	require.NoError(t, err)
	_, err = waitLoad(t, load)
	require.Equal(t, classify.RateLimited, classify.CategoryOf(err))
	require.Len(t, f.fetcher.calls(), 1)
	require.Zero(t, f.authorizer.refreshes())
	require.Equal(t, auth.StatusConnected, f.session.Status())
}

func TestLoadOne_LocallyExpiredTokenRefreshesFirst(t *testing.T) {
	f := setupTestFixture(t, []tenants.Tenant{tenantAcme}, -time.Minute)
	f.connect(t)
	f.fetcher.handle = func(_ context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		return nil, tokenExpiredErr()
	}

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyPayments)
	require.NoError(t, err)
	_, err = waitLoad(t, load)
	require.Equal(t, classify.TokenExpired, classify.CategoryOf(err))

	calls := f.fetcher.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "access-2", calls[0].AccessToken)
	require.Equal(t, 1, f.authorizer.refreshes())
}

func TestLoadOne_CancelledByTenantSwitchIsRecorded(t *testing.T) {
	f := setupTestFixture(t, []tenants.Tenant{tenantAcme, tenantGlobex}, 0)
	f.connect(t)
	require.NoError(t, f.selector.Select(tenantAcme.ID))

	started := make(chan struct{})
	f.fetcher.handle = func(ctx context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyJournals)
	require.NoError(t, err)
	<-started
	require.NoError(t, f.selector.Select(tenantGlobex.ID))

	_, err = waitLoad(t, load)
	require.ErrorIs(t, err, context.Canceled)

	st, ok := f.coord.State(resourcesync.KeyJournals)
	require.True(t, ok)
	require.False(t, st.InFlight)
	require.NotNil(t, st.LastResult)
	require.Equal(t, tenantAcme.ID, st.LastResult.TenantID)
	require.NotNil(t, st.LastResult.Err)
}

func TestLoadOne_ExplicitCancel(t *testing.T) {
	f := newConnectedFixture(t)
	f.fetcher.handle = func(ctx context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyReceipts)
	require.NoError(t, err)
	load.Cancel()
	_, err = waitLoad(t, load)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadAll_OrderPacingAndPartialSuccess(t *testing.T) {
	const pacing = 5 * time.Millisecond
	f := newConnectedFixture(t, resourcesync.WithPacing(pacing))
	rateLimited := map[resourcesync.Key]bool{
		resourcesync.KeyTaxRates:     true,
		resourcesync.KeyQuotes:       true,
		resourcesync.KeyTransactions: true,
	}
	f.fetcher.handle = func(_ context.Context, req resourcesync.Request) (json.RawMessage, error) {
		if rateLimited[req.Resource] {
			return nil, errors.New("Rate limit exceeded, please retry later")
		}
		return json.RawMessage(`[]`), nil
	}

	summary, err := f.coord.LoadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15, summary.Succeeded)
	require.Equal(t, 3, summary.Failed)
	require.Zero(t, summary.Skipped)
	require.Equal(t, map[classify.Category]int{classify.RateLimited: 3}, summary.CountByCategory())

	calls := f.fetcher.calls()
	require.Len(t, calls, 18)
	for i, key := range resourcesync.Keys() {
		require.Equal(t, key, calls[i].Resource)
		require.Equal(t, key, summary.Results[i].Key)
	}

	f.fetcher.mu.Lock()
	times := append([]time.Time(nil), f.fetcher.times...)
	f.fetcher.mu.Unlock()
	for i := 1; i < len(times); i++ {
		require.True(t, times[i].After(times[i-1]), "requests are sequential")
	}
	require.GreaterOrEqual(t, times[len(times)-1].Sub(times[0]), 16*pacing)

	st, ok := f.coord.State(resourcesync.KeyQuotes)
	require.True(t, ok)
	require.Equal(t, classify.RateLimited, st.LastResult.Err.Category)
	require.Len(t, f.coord.States(), 18)
}

func TestLoadAll_RunsSequentially(t *testing.T) {
	f := newConnectedFixture(t)
	var mu sync.Mutex
	active, maxActive := 0, 0
	f.fetcher.handle = func(_ context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return json.RawMessage(`[]`), nil
	}

	_, err := f.coord.LoadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, maxActive)
}

func TestLoadAll_PausesAfterEachRequestCompletes(t *testing.T) {
	const pacing = 20 * time.Millisecond
	f := newConnectedFixture(t, resourcesync.WithPacing(pacing))
	var mu sync.Mutex
	var ends []time.Time
	f.fetcher.handle = func(_ context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		time.Sleep(2 * pacing)
		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		return json.RawMessage(`[]`), nil
	}

	summary, err := f.coord.LoadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 18, summary.Succeeded)

	f.fetcher.mu.Lock()
	starts := append([]time.Time(nil), f.fetcher.times...)
	f.fetcher.mu.Unlock()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ends, 18)
	for i := 1; i < len(starts); i++ {
		require.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), pacing, "idle gap before %s", summary.Results[i].Key)
	}
}

func TestLoadAll_CancelledWhileWaitingOnInFlightLoad(t *testing.T) {
	f := newConnectedFixture(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f.fetcher.handle = func(ctx context.Context, req resourcesync.Request) (json.RawMessage, error) {
		if req.Resource == resourcesync.KeyOrganization {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return json.RawMessage(`[]`), nil
	}

	_, err := f.coord.LoadOne(context.Background(), resourcesync.KeyOrganization)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		summary resourcesync.Summary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := f.coord.LoadAll(ctx)
		done <- outcome{summary, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		require.Error(t, out.err, "nothing loaded")
		require.Equal(t, 18, out.summary.Skipped)
		require.Equal(t, resourcesync.KeyOrganization, out.summary.Results[0].Key)
		require.Equal(t, "cancelled", out.summary.Results[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("LoadAll stayed blocked on the in-flight load after cancellation")
	}
}

func TestLoadAll_Debounce(t *testing.T) {
	f := newConnectedFixture(t)

	_, err := f.coord.LoadAll(context.Background())
	require.NoError(t, err)

	f.clock.Advance(9 * time.Second)
	_, err = f.coord.LoadAll(context.Background())
	var throttled *resourcesync.ThrottledError
	require.ErrorAs(t, err, &throttled)
	require.Empty(t, throttled.Key)
	require.Equal(t, time.Second, throttled.RetryAfter)

	f.clock.Advance(time.Second)
	summary, err := f.coord.LoadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 18, summary.Succeeded)
	require.Len(t, f.fetcher.calls(), 36)
}

func TestLoadAll_UpdatesPerKeyDebounce(t *testing.T) {
	f := newConnectedFixture(t)

	_, err := f.coord.LoadAll(context.Background())
	require.NoError(t, err)

	_, err = f.coord.LoadOne(context.Background(), resourcesync.KeyOrganization)
	require.Equal(t, classify.Throttled, classify.CategoryOf(err))
}

func TestLoadAll_NothingLoaded(t *testing.T) {
	f := newConnectedFixture(t)
	f.fetcher.handle = func(_ context.Context, _ resourcesync.Request) (json.RawMessage, error) {
		return nil, errors.New("rate limit exceeded")
	}

	summary, err := f.coord.LoadAll(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, interrors.ErrNothingLoaded)
	require.Equal(t, classify.RateLimited, classify.CategoryOf(err))
	require.Equal(t, 18, summary.Failed)
}

func TestLoadAll_StopsOnTenantChange(t *testing.T) {
	f := setupTestFixture(t, []tenants.Tenant{tenantAcme, tenantGlobex}, 0)
	f.connect(t)
	require.NoError(t, f.selector.Select(tenantAcme.ID))

	f.fetcher.handle = func(_ context.Context, req resourcesync.Request) (json.RawMessage, error) {
		if req.Resource == resourcesync.KeyInvoices {
			require.NoError(t, f.selector.Select(tenantGlobex.ID))
		}
		return json.RawMessage(`[]`), nil
	}

	summary, err := f.coord.LoadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Succeeded)
	require.Equal(t, 15, summary.Skipped)
	require.Len(t, f.fetcher.calls(), 3)
	for _, r := range summary.Results[3:] {
		require.Equal(t, resourcesync.OutcomeSkipped, r.Outcome)
		require.Equal(t, "tenant changed", r.Message)
	}
}

func TestLoadAll_StopsWhenSessionExpires(t *testing.T) {
	f := newConnectedFixture(t)
	f.authorizer.refreshErr = errors.New("invalid_grant")
	f.fetcher.handle = func(_ context.Context, req resourcesync.Request) (json.RawMessage, error) {
		if req.Resource == resourcesync.KeyContacts {
			return nil, tokenExpiredErr()
		}
		return json.RawMessage(`[]`), nil
	}

	summary, err := f.coord.LoadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 16, summary.Skipped)
	require.Equal(t, auth.StatusExpired, f.session.Status())
	require.Equal(t, 1, f.authorizer.refreshes())
}

func TestLoadAll_Cancelled(t *testing.T) {
	f := newConnectedFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.fetcher.handle = func(_ context.Context, req resourcesync.Request) (json.RawMessage, error) {
		if req.Resource == resourcesync.KeyOrganization {
			cancel()
		}
		return json.RawMessage(`[]`), nil
	}

	summary, err := f.coord.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 17, summary.Skipped)
}

func TestReset_OnDisconnect(t *testing.T) {
	f := newConnectedFixture(t)
	load, err := f.coord.LoadOne(context.Background(), resourcesync.KeyItems)
	require.NoError(t, err)
	_, err = waitLoad(t, load)
	require.NoError(t, err)
	require.Len(t, f.coord.States(), 1)

	require.NoError(t, f.session.Disconnect(context.Background()))
	require.Empty(t, f.coord.States())

	f.connect(t)
	load, err = f.coord.LoadOne(context.Background(), resourcesync.KeyItems)
	require.NoError(t, err, "reset also clears the debounce window")
	_, err = waitLoad(t, load)
	require.NoError(t, err)
}

func TestParseKey(t *testing.T) {
	k, err := resourcesync.ParseKey(" Bank-Transactions ")
	require.NoError(t, err)
	require.Equal(t, resourcesync.KeyBankTransactions, k)

	_, err = resourcesync.ParseKey("widgets")
	require.ErrorIs(t, err, interrors.ErrUnknownResource)

	keys := resourcesync.Keys()
	require.Len(t, keys, 18)
	require.Equal(t, resourcesync.KeyOrganization, keys[0])
	require.Equal(t, resourcesync.KeyTransactions, keys[17])
	require.True(t, strings.Contains(resourcesync.KeyTrackingCategories.String(), "-"))
}
