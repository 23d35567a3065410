package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-ledger-sync/auth/flowstate"
	"github.com/jrsteele09/go-ledger-sync/classify"
	"github.com/jrsteele09/go-ledger-sync/hints"
	interrors "github.com/jrsteele09/go-ledger-sync/internal/errors"
	"github.com/jrsteele09/go-ledger-sync/notify"
	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/jrsteele09/go-ledger-sync/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultFlowTimeout = 15 * time.Minute

// SessionManager owns the connection state machine and is the only writer of the token store.
type SessionManager struct {
	authorizer  Authorizer
	tokens      token.Store
	selector    *tenants.Selector
	flows       flowstate.Repo
	hints       hints.Store
	sealer      *hints.Sealer
	notifier    notify.Emitter
	flowTimeout time.Duration
	nowTime     func() time.Time

	session Session
	onReset []func()
	lock    sync.RWMutex
	refresh sync.Mutex // serialises refreshes so a rotated refresh token is never replayed
}

// SessionManagerOption defines a function type to modify the SessionManager instance.
type SessionManagerOption func(*SessionManager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		m.nowTime = nowFunc
	}
}

// WithFlowRepo replaces the in-memory flow state repo, e.g. with a shared Redis one.
func WithFlowRepo(repo flowstate.Repo) SessionManagerOption {
	return func(m *SessionManager) {
		m.flows = repo
	}
}

// WithFlowTimeout bounds how long an authorization may take between start and callback.
func WithFlowTimeout(d time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		m.flowTimeout = d
	}
}

// WithHints enables the advisory hint cache. sealer may be nil, in which case no token blob is cached.
func WithHints(store hints.Store, sealer *hints.Sealer) SessionManagerOption {
	return func(m *SessionManager) {
		m.hints = store
		m.sealer = sealer
	}
}

// WithNotifier routes user-facing status messages through a throttle.
func WithNotifier(n notify.Emitter) SessionManagerOption {
	return func(m *SessionManager) {
		m.notifier = n
	}
}

// NewSessionManager initializes a SessionManager with required dependencies.
func NewSessionManager(
	authorizer Authorizer,
	tokens token.Store,
	selector *tenants.Selector,
	options ...SessionManagerOption,
) (*SessionManager, error) {
	if authorizer == nil {
		return nil, errors.New("[NewSessionManager] authorizer is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewSessionManager] token store is required")
	}
	if selector == nil {
		return nil, errors.New("[NewSessionManager] tenant selector is required")
	}

	m := &SessionManager{
		authorizer:  authorizer,
		tokens:      tokens,
		selector:    selector,
		flows:       flowstate.NewInMemoryRepo(),
		hints:       hints.NewMemoryStore(),
		notifier:    nopEmitter{},
		flowTimeout: defaultFlowTimeout,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(m)
	}

	m.session = Session{
		Status:                StatusDisconnected,
		CredentialsConfigured: authorizer.CredentialsConfigured(),
	}
	return m, nil
}

// Snapshot returns a copy of the current session.
func (m *SessionManager) Snapshot() Session {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session
}

// Status returns the current connection status.
func (m *SessionManager) Status() Status {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session.Status
}

// OnReset registers fn to run when the session is torn down by Disconnect.
func (m *SessionManager) OnReset(fn func()) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.onReset = append(m.onReset, fn)
}

// StartAuthorization begins the authorization-code flow and returns the URL to redirect to.
// Missing credentials are reported before any redirect is attempted.
func (m *SessionManager) StartAuthorization(ctx context.Context) (string, error) {
	configured := m.authorizer.CredentialsConfigured()
	m.lock.Lock()
	m.session.CredentialsConfigured = configured
	m.lock.Unlock()

	if !configured {
		ce := classify.WrapAs(classify.AuthorizationStartError, CredentialsNotConfiguredErr)
		m.recordError(ce, false)
		m.notifier.Emit("Accounting integration is not configured", ce.Category)
		return "", ce
	}

	now := m.nowTime()
	if err := m.flows.DeleteExpired(now.Add(-m.flowTimeout)); err != nil {
		log.Err(err).Msg("StartAuthorization: failed to purge expired flow states")
	}

	state := uuid.NewString()
	if err := m.flows.Upsert(&flowstate.FlowState{State: state, CreatedAt: now}); err != nil {
		ce := classify.WrapAs(classify.AuthorizationStartError, errors.Wrap(err, "[SessionManager.StartAuthorization] flows.Upsert"))
		m.recordError(ce, false)
		return "", ce
	}

	redirectURL, err := m.authorizer.AuthorizationURL(ctx, state)
	if err != nil {
		_ = m.flows.Delete(state)
		ce := classify.WrapAs(classify.AuthorizationStartError, errors.Wrap(err, "[SessionManager.StartAuthorization] authorizer.AuthorizationURL"))
		m.recordError(ce, false)
		m.notifier.Emit("Could not start the connection to the accounting platform", ce.Category)
		return "", ce
	}

	m.lock.Lock()
	// A connected session keeps working until the new authorization completes.
	if m.session.Status != StatusConnected {
		m.session.Status = StatusConnecting
	}
	m.session.LastError = nil
	m.lock.Unlock()

	log.Info().Str("state", state).Msg("authorization started")
	return redirectURL, nil
}

// CompleteAuthorization handles the OAuth callback. A replay of an already accepted code/state
// pair does not exchange again and reports the outcome of the first attempt, so a reloaded
// callback page never triggers a second token exchange.
// A callback that matches no pending flow is rejected without touching the session.
func (m *SessionManager) CompleteAuthorization(ctx context.Context, cb Callback) error {
	var fs *flowstate.FlowState
	if cb.State != "" {
		fs, _ = m.flows.Get(cb.State)
	}
	knownFlow := fs != nil

	if err := cb.Validate(); err != nil {
		return m.callbackFailed(classify.Wrap(err), knownFlow, "The authorization callback was invalid, please reconnect")
	}

	if cb.IsFailure() {
		detail := cb.ErrorDetails
		if detail == "" {
			detail = cb.Error
		}
		ce := &classify.Error{
			Category: classify.ClassifyMessage(cb.Error, detail),
			Code:     cb.Error,
			Message:  detail,
		}
		if knownFlow {
			_ = m.flows.Delete(cb.State)
		}
		return m.callbackFailed(ce, knownFlow, "Authorization failed: "+detail)
	}

	if !knownFlow {
		return m.callbackFailed(classify.WrapAs(classify.InvalidCallback, UnknownStateErr), false, "")
	}
	now := m.nowTime()
	if now.Sub(fs.CreatedAt) > m.flowTimeout && !fs.Consumed() {
		_ = m.flows.Delete(cb.State)
		return m.callbackFailed(classify.WrapAs(classify.InvalidCallback, StateExpiredErr), true, "")
	}

	codeHash := hashCode(cb.Code)
	fs, won, err := m.flows.MarkConsumed(cb.State, codeHash, now)
	if err != nil {
		ce := classify.WrapAs(classify.InvalidCallback, errors.Wrap(err, "[SessionManager.CompleteAuthorization] flows.MarkConsumed"))
		return m.callbackFailed(ce, true, "")
	}
	if !won {
		if fs.ConsumedCodeHash == codeHash {
			log.Debug().Str("state", cb.State).Msg("duplicate authorization callback ignored")
			if fs.Failure != nil {
				return fs.Failure
			}
			return nil
		}
		return classify.WrapAs(classify.InvalidCallback, StateReusedErr)
	}

	exchange, err := m.authorizer.ExchangeCode(ctx, cb.Code, cb.State)
	if err != nil {
		ce := classify.Wrap(errors.Wrap(err, "token exchange failed"))
		m.rememberFailure(fs, ce)
		return m.callbackFailed(ce, true, "Could not connect to the accounting platform")
	}

	rec := exchange.Token
	token.FillExpiry(&rec)
	if len(rec.TenantScope) == 0 {
		for _, t := range exchange.Tenants {
			rec.TenantScope = append(rec.TenantScope, t.ID)
		}
	}
	if err := m.tokens.Set(ctx, &rec); err != nil {
		ce := classify.Wrap(errors.Wrap(err, "[SessionManager.CompleteAuthorization] tokens.Set"))
		m.rememberFailure(fs, ce)
		return m.callbackFailed(ce, true, "")
	}

	m.selector.SetTenants(exchange.Tenants)

	m.lock.Lock()
	m.session.Status = StatusConnected
	m.session.LastError = nil
	m.session.ConnectedAt = now
	m.session.HintAuthorized = true
	m.lock.Unlock()

	m.saveHint(ctx, &rec, now)
	m.notifier.Emit("Connected to the accounting platform", "")
	log.Info().Int("tenants", len(exchange.Tenants)).Msg("authorization completed")
	return nil
}

// Refresh replaces the token record using the stored refresh token. Success is silent.
// Failure moves the session to expired and clears the stored credentials.
func (m *SessionManager) Refresh(ctx context.Context) error {
	return m.refreshFrom(ctx, "")
}

// RefreshFrom refreshes unless the stored access token already differs from failedAccessToken,
// meaning a concurrent caller refreshed while this one was waiting.
func (m *SessionManager) RefreshFrom(ctx context.Context, failedAccessToken string) error {
	return m.refreshFrom(ctx, failedAccessToken)
}

func (m *SessionManager) refreshFrom(ctx context.Context, failedAccessToken string) error {
	m.refresh.Lock()
	defer m.refresh.Unlock()

	status := m.Status()
	switch status {
	case StatusConnected, StatusExpired:
	default:
		return classify.WrapAs(classify.NotConnected, NotConnectedErr)
	}

	current, err := m.tokens.Get(ctx)
	if err != nil || current.RefreshToken == "" {
		if status == StatusExpired {
			// a concurrent refresh already failed and cleared the store
			return classify.WrapAs(classify.TokenExpired, NoRefreshTokenErr)
		}
		return m.refreshFailed(ctx, NoRefreshTokenErr)
	}
	if failedAccessToken != "" && current.AccessToken != failedAccessToken {
		return nil
	}

	rec, err := m.authorizer.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return m.refreshFailed(ctx, err)
	}
	if rec == nil || rec.AccessToken == "" {
		return m.refreshFailed(ctx, interrors.ErrInvalidTokenRecord)
	}
	next := rec.Copy()
	token.FillExpiry(next)
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	if len(next.TenantScope) == 0 {
		next.TenantScope = current.TenantScope
	}
	if err := m.tokens.Set(ctx, next); err != nil {
		return m.refreshFailed(ctx, errors.Wrap(err, "tokens.Set"))
	}

	m.lock.Lock()
	m.session.Status = StatusConnected
	m.session.LastError = nil
	m.lock.Unlock()

	m.saveHint(ctx, next, m.nowTime())
	log.Debug().Time("expires_at", next.ExpiresAt).Msg("access token refreshed")
	return nil
}

func (m *SessionManager) refreshFailed(ctx context.Context, cause error) error {
	ce := &classify.Error{
		Category: classify.TokenExpired,
		Code:     string(classify.CategoryOf(cause)),
		Message:  "token refresh failed: " + cause.Error(),
		Err:      cause,
	}
	m.expire(ctx, ce)
	log.Err(cause).Msg("token refresh failed")
	return ce
}

// MarkExpired moves a connected session to expired after a token expiry that survived a refresh.
func (m *SessionManager) MarkExpired(ctx context.Context, cause error) {
	if m.Status() != StatusConnected {
		return
	}
	ce := classify.Wrap(cause)
	if ce == nil || ce.Category != classify.TokenExpired {
		ce = &classify.Error{Category: classify.TokenExpired, Message: "access token expired", Err: cause}
	}
	m.expire(ctx, ce)
}

func (m *SessionManager) expire(ctx context.Context, ce *classify.Error) {
	if err := m.tokens.Clear(ctx); err != nil {
		log.Err(err).Msg("expire: failed to clear token store")
	}
	m.clearHint(ctx)

	m.lock.Lock()
	m.session.Status = StatusExpired
	m.session.LastError = ce
	m.session.HintAuthorized = false
	m.lock.Unlock()

	m.notifier.Emit("Your accounting connection has expired, please reconnect", classify.TokenExpired)
}

// Disconnect clears credentials, tenants and session state from any status.
func (m *SessionManager) Disconnect(ctx context.Context) error {
	var firstErr error
	if err := m.tokens.Clear(ctx); err != nil {
		firstErr = errors.Wrap(err, "[SessionManager.Disconnect] tokens.Clear")
	}
	m.clearHint(ctx)
	m.selector.Clear()

	m.lock.Lock()
	m.session = Session{
		Status:                StatusDisconnected,
		CredentialsConfigured: m.authorizer.CredentialsConfigured(),
	}
	hooks := append([]func(){}, m.onReset...)
	m.lock.Unlock()

	for _, fn := range hooks {
		fn()
	}
	m.notifier.Emit("Disconnected from the accounting platform", "")
	log.Info().Msg("integration disconnected")
	return firstErr
}

// Resume restores state after a restart. The cached hint only seeds HintAuthorized for the first
// render; the token store (and the authorizer's tenant listing, when available) decides the status.
func (m *SessionManager) Resume(ctx context.Context) error {
	hint, err := m.hints.Load(ctx)
	if err != nil {
		log.Err(err).Msg("Resume: failed to load hint")
	}
	m.lock.Lock()
	m.session.HintAuthorized = hint.Authorized
	m.session.CredentialsConfigured = m.authorizer.CredentialsConfigured()
	m.lock.Unlock()

	rec, err := m.tokens.Get(ctx)
	if err != nil {
		if !errors.Is(err, interrors.ErrTokenNotFound) {
			log.Err(err).Msg("Resume: token store unavailable")
		}
		m.clearHint(ctx)
		m.lock.Lock()
		m.session.Status = StatusDisconnected
		m.session.HintAuthorized = false
		m.lock.Unlock()
		return nil
	}

	m.lock.Lock()
	m.session.Status = StatusConnected
	m.lock.Unlock()

	list, err := m.resumeTenants(ctx, rec)
	if err != nil {
		ce := classify.Wrap(err)
		switch ce.Category {
		case classify.TokenExpired:
			// refresh already failed inside resumeTenants and moved the session to expired
		case classify.NotConnected:
			_ = m.tokens.Clear(ctx)
			m.clearHint(ctx)
			m.lock.Lock()
			m.session.Status = StatusDisconnected
			m.session.HintAuthorized = false
			m.session.LastError = ce
			m.lock.Unlock()
		default:
			m.recordError(ce, true)
		}
		return ce
	}

	m.selector.SetTenants(list)
	m.lock.Lock()
	m.session.ConnectedAt = m.nowTime()
	m.lock.Unlock()
	log.Info().Int("tenants", len(list)).Msg("integration session resumed")
	return nil
}

func (m *SessionManager) resumeTenants(ctx context.Context, rec *token.Record) ([]tenants.Tenant, error) {
	lister, ok := m.authorizer.(TenantLister)
	if !ok {
		list := make([]tenants.Tenant, 0, len(rec.TenantScope))
		for _, id := range rec.TenantScope {
			list = append(list, tenants.Tenant{ID: id, Name: id})
		}
		return list, nil
	}

	if rec.Expired(m.nowTime()) {
		if err := m.RefreshFrom(ctx, rec.AccessToken); err != nil {
			return nil, err
		}
		if rec, _ = m.tokens.Get(ctx); rec == nil {
			return nil, classify.WrapAs(classify.NotConnected, interrors.ErrTokenNotFound)
		}
	}

	list, err := lister.Tenants(ctx, rec.AccessToken)
	if err == nil {
		return list, nil
	}
	if classify.Classify(err) != classify.TokenExpired {
		return nil, err
	}
	if err := m.RefreshFrom(ctx, rec.AccessToken); err != nil {
		return nil, err
	}
	if rec, _ = m.tokens.Get(ctx); rec == nil {
		return nil, classify.WrapAs(classify.NotConnected, interrors.ErrTokenNotFound)
	}
	return lister.Tenants(ctx, rec.AccessToken)
}

// callbackFailed records a failed callback. A pending flow moves to error. A failed re-authorization
// of a connected session only records the error, the existing connection stays usable. A callback
// for no known flow while nothing is pending is ignored.
func (m *SessionManager) callbackFailed(ce *classify.Error, knownFlow bool, message string) error {
	m.lock.RLock()
	status := m.session.Status
	m.lock.RUnlock()

	switch {
	case status == StatusConnecting || (knownFlow && status != StatusConnected):
		m.recordError(ce, true)
	case knownFlow:
		m.recordError(ce, false)
	default:
		log.Warn().Str("category", string(ce.Category)).Str("status", string(status)).Msg("callback without a pending authorization ignored")
		return ce
	}
	if message != "" {
		m.notifier.Emit(message, ce.Category)
	}
	return ce
}

// rememberFailure keeps the outcome of a consumed flow for callback replays.
func (m *SessionManager) rememberFailure(fs *flowstate.FlowState, ce *classify.Error) {
	fs.Failure = ce
	if err := m.flows.Upsert(fs); err != nil {
		log.Err(err).Msg("rememberFailure: failed to store callback outcome")
	}
}

// recordError stores ce as the last error, optionally moving the session to the error status.
func (m *SessionManager) recordError(ce *classify.Error, toErrorStatus bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.session.LastError = ce
	if toErrorStatus {
		m.session.Status = StatusError
	}
	log.Warn().Str("category", string(ce.Category)).Str("status", string(m.session.Status)).Msg(ce.Message)
}

func (m *SessionManager) saveHint(ctx context.Context, rec *token.Record, at time.Time) {
	hint := hints.Hint{Authorized: true, AuthorizedAt: at}
	if m.sealer != nil {
		blob, err := m.sealer.Seal(rec)
		if err != nil {
			log.Err(err).Msg("saveHint: failed to seal token blob")
		} else {
			hint.TokenBlob = blob
		}
	}
	if err := m.hints.Save(ctx, hint); err != nil {
		log.Err(err).Msg("saveHint: failed to save hint")
	}
}

func (m *SessionManager) clearHint(ctx context.Context) {
	if err := m.hints.Clear(ctx); err != nil {
		log.Err(err).Msg("clearHint: failed to clear hint")
	}
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, classify.Category) (notify.Ticket, bool) {
	return notify.Ticket{}, false
}
