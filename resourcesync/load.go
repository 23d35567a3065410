package resourcesync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-ledger-sync/classify"
)

// Request is one page fetch for one resource of one tenant.
type Request struct {
	TenantID    string
	Resource    Key
	Page        int
	PageSize    int
	AccessToken string
}

// Fetcher performs the remote call. Errors should carry a code (ErrorCode) where the remote gives one.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (json.RawMessage, error)
}

// Result is the outcome of one load: data on success, a classified error otherwise.
type Result struct {
	TenantID    string          `json:"tenantId"`
	Data        json.RawMessage `json:"data,omitempty"`
	Err         *classify.Error `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completedAt"`
}

// State is the load bookkeeping for one resource key.
type State struct {
	Key           Key       `json:"key"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
	InFlight      bool      `json:"inFlight"`
	LastResult    *Result   `json:"lastResult,omitempty"`
}

// Load is the handle of an in-flight request. Concurrent LoadOne calls for the same key share it.
type Load struct {
	ID        string    `json:"id"`
	Key       Key       `json:"key"`
	TenantID  string    `json:"tenantId"`
	StartedAt time.Time `json:"startedAt"`

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Done is closed once the result is recorded.
func (l *Load) Done() <-chan struct{} {
	return l.done
}

// Cancel aborts the request. The cancelled outcome is still classified and recorded.
func (l *Load) Cancel() {
	l.cancel()
}

// Result returns the outcome and whether the load has finished.
func (l *Load) Result() (Result, bool) {
	select {
	case <-l.done:
		return l.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the load finishes or ctx is done. Abandoning the wait does not cancel the load.
func (l *Load) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-l.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.result.Err != nil {
		return nil, l.result.Err
	}
	return l.result.Data, nil
}

// ThrottledError rejects a call made inside a debounce window. It is not a failure.
type ThrottledError struct {
	Key        Key // empty for LoadAll
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	target := "load all"
	if e.Key != "" {
		target = string(e.Key)
	}
	return fmt.Sprintf("%s throttled, retry in %s", target, e.RetryAfter.Round(time.Millisecond))
}

func (e *ThrottledError) ErrorCode() string {
	return string(classify.Throttled)
}
