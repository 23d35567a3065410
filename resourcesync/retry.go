package resourcesync

import (
	"context"
	"time"

	"github.com/jrsteele09/go-ledger-sync/auth"
	"github.com/jrsteele09/go-ledger-sync/classify"
	"github.com/jrsteele09/go-ledger-sync/token"
	"github.com/rs/zerolog/log"
)

// Session is the part of the session manager the coordinator drives. Refreshes go through it;
// the coordinator never writes tokens itself.
type Session interface {
	Status() auth.Status
	RefreshFrom(ctx context.Context, failedAccessToken string) error
	MarkExpired(ctx context.Context, cause error)
	OnReset(fn func())
}

var _ Session = (*auth.SessionManager)(nil)

// RefreshRetry is the single refresh-then-retry policy shared by every load path.
// A TOKEN_EXPIRED failure triggers at most one refresh and, only if it succeeds, one retry.
type RefreshRetry struct {
	session Session
	tokens  token.Reader
	nowTime func() time.Time
}

func NewRefreshRetry(session Session, tokens token.Reader, nowTime func() time.Time) *RefreshRetry {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &RefreshRetry{session: session, tokens: tokens, nowTime: nowTime}
}

// Do runs call with the current access token. A record already past its ExpiresAt spends the
// refresh up front, so the first request is also the only retry.
func (p *RefreshRetry) Do(ctx context.Context, call func(ctx context.Context, accessToken string) error) error {
	rec, err := p.tokens.Get(ctx)
	if err != nil {
		return classify.WrapAs(classify.NotConnected, err)
	}

	refreshed := false
	if !rec.ExpiresAt.IsZero() && rec.Expired(p.nowTime()) {
		if rec, err = p.refresh(ctx, rec.AccessToken); err != nil {
			return err
		}
		refreshed = true
	}

	for {
		err = call(ctx, rec.AccessToken)
		if err == nil {
			return nil
		}
		if classify.Classify(err) != classify.TokenExpired {
			return err
		}
		if refreshed {
			p.session.MarkExpired(ctx, err)
			return err
		}
		if rec, err = p.refresh(ctx, rec.AccessToken); err != nil {
			return err
		}
		refreshed = true
	}
}

func (p *RefreshRetry) refresh(ctx context.Context, failedAccessToken string) (*token.Record, error) {
	if err := p.session.RefreshFrom(ctx, failedAccessToken); err != nil {
		log.Err(err).Msg("RefreshRetry: refresh failed, not retrying")
		return nil, err
	}
	rec, err := p.tokens.Get(ctx)
	if err != nil {
		return nil, classify.WrapAs(classify.NotConnected, err)
	}
	return rec, nil
}
