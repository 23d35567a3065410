package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-ledger-sync/auth"
	"github.com/jrsteele09/go-ledger-sync/classify"
	"github.com/jrsteele09/go-ledger-sync/internal/config"
	"github.com/jrsteele09/go-ledger-sync/notify"
	"github.com/jrsteele09/go-ledger-sync/resourcesync"
	"github.com/jrsteele09/go-ledger-sync/server"
	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/jrsteele09/go-ledger-sync/token"
	"github.com/stretchr/testify/require"
)

type fakeAuthorizer struct {
	mu        sync.Mutex
	lastState string
	tenants   []tenants.Tenant
}

func (f *fakeAuthorizer) CredentialsConfigured() bool { return true }

func (f *fakeAuthorizer) AuthorizationURL(_ context.Context, state string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastState = state
	return "https://login.example.com/authorize?state=" + state, nil
}

func (f *fakeAuthorizer) ExchangeCode(_ context.Context, _, _ string) (*auth.Exchange, error) {
	return &auth.Exchange{
		Token:   token.Record{AccessToken: "access-1", RefreshToken: "refresh-1"},
		Tenants: f.tenants,
	}, nil
}

func (f *fakeAuthorizer) Refresh(_ context.Context, _ string) (*token.Record, error) {
	return &token.Record{AccessToken: "access-2"}, nil
}

func (f *fakeAuthorizer) state() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastState
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(_ context.Context, req resourcesync.Request) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`{"resource":%q,"tenant":%q}`, req.Resource, req.TenantID)), nil
}

type testFixture struct {
	authorizer *fakeAuthorizer
	throttle   *notify.Throttle
	server     *server.Server
}

func setupTestFixture(t *testing.T, list ...tenants.Tenant) *testFixture {
	t.Helper()
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000")
	t.Setenv("INTEGRATION_RETURN_URL", "/settings")

	f := &testFixture{
		authorizer: &fakeAuthorizer{tenants: list},
		throttle:   notify.NewThrottle(nil),
	}
	tokens := token.NewMemoryStore()
	selector := tenants.NewSelector()

	session, err := auth.NewSessionManager(f.authorizer, tokens, selector, auth.WithNotifier(f.throttle))
	require.NoError(t, err)
	coord, err := resourcesync.NewCoordinator(session, tokens, selector, fakeFetcher{}, resourcesync.WithPacing(time.Millisecond))
	require.NoError(t, err)

	f.server, err = server.New(config.New(), server.Services{
		Session:       session,
		Tenants:       selector,
		Sync:          coord,
		Notifications: f.throttle,
	})
	require.NoError(t, err)
	return f
}

func (f *testFixture) do(method, target string, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) connect(t *testing.T) {
	t.Helper()
	rec := f.do(http.MethodGet, server.RouteConnect, "")
	require.Equal(t, http.StatusFound, rec.Code)

	rec = f.do(http.MethodGet, server.RouteCallback+"?code=abc&state="+url.QueryEscape(f.authorizer.state()), "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/settings?integration=connected", rec.Header().Get("Location"))
}

type errorBody struct {
	Category classify.Category `json:"category"`
	Message  string            `json:"message"`
	Action   classify.Action   `json:"action"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

var acme = tenants.Tenant{ID: "t-acme", Name: "Acme Ltd"}

func TestStatus_Disconnected(t *testing.T) {
	f := setupTestFixture(t, acme)

	rec := f.do(http.MethodGet, server.RouteStatus, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	status := decode[server.StatusResponse](t, rec)
	require.Equal(t, auth.StatusDisconnected, status.Session.Status)
	require.Equal(t, classify.ActionReconnect, status.Action)
	require.Nil(t, status.SelectedTenant)
}

func TestConnect_JSON(t *testing.T) {
	f := setupTestFixture(t, acme)

	rec := f.do(http.MethodGet, server.RouteConnect, "", "Accept", "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "https://login.example.com/authorize?state="+f.authorizer.state(), body["url"])
}

func TestCallback_ConnectsAndSelectsSingleTenant(t *testing.T) {
	f := setupTestFixture(t, acme)
	f.connect(t)

	status := decode[server.StatusResponse](t, f.do(http.MethodGet, server.RouteStatus, ""))
	require.Equal(t, auth.StatusConnected, status.Session.Status)
	require.Equal(t, classify.ActionNone, status.Action)
	require.Equal(t, []tenants.Tenant{acme}, status.Tenants)
	require.NotNil(t, status.SelectedTenant)
	require.Equal(t, acme.ID, status.SelectedTenant.ID)
}

func TestCallback_FormPost(t *testing.T) {
	f := setupTestFixture(t, acme)
	require.Equal(t, http.StatusFound, f.do(http.MethodGet, server.RouteConnect, "").Code)

	form := url.Values{"code": {"abc"}, "state": {f.authorizer.state()}}
	req := httptest.NewRequest(http.MethodPost, server.RouteCallback, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/settings?integration=connected", rec.Header().Get("Location"))
}

func TestCallback_Invalid(t *testing.T) {
	f := setupTestFixture(t, acme)

	rec := f.do(http.MethodGet, server.RouteCallback+"?code=abc", "")
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "error", location.Query().Get("integration"))
	require.Equal(t, string(classify.InvalidCallback), location.Query().Get("category"))

	rec = f.do(http.MethodGet, server.RouteCallback+"?code=abc", "", "Accept", "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	require.Equal(t, classify.InvalidCallback, body.Category)
	require.Equal(t, classify.ActionReconnect, body.Action)
}

func TestCallback_ProviderError(t *testing.T) {
	f := setupTestFixture(t, acme)
	require.Equal(t, http.StatusFound, f.do(http.MethodGet, server.RouteConnect, "").Code)

	rec := f.do(http.MethodGet, server.RouteCallback+"?error=access_denied&error_description=User+cancelled&state="+url.QueryEscape(f.authorizer.state()), "", "Accept", "application/json")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[errorBody](t, rec)
	require.Equal(t, classify.Unknown, body.Category)
	require.Equal(t, "User cancelled", body.Message)

	status := decode[server.StatusResponse](t, f.do(http.MethodGet, server.RouteStatus, ""))
	require.Equal(t, auth.StatusError, status.Session.Status)
}

func TestCallback_ForgedStateKeepsConnection(t *testing.T) {
	f := setupTestFixture(t, acme)
	f.connect(t)

	rec := f.do(http.MethodGet, server.RouteCallback+"?code=x&state=forged", "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "integration=error")

	status := decode[server.StatusResponse](t, f.do(http.MethodGet, server.RouteStatus, ""))
	require.Equal(t, auth.StatusConnected, status.Session.Status)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/integration/resources/organization/load", "").Code)
}

func TestLoadOne_NotConnected(t *testing.T) {
	f := setupTestFixture(t, acme)

	rec := f.do(http.MethodPost, "/integration/resources/invoices/load", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[errorBody](t, rec)
	require.Equal(t, classify.NotConnected, body.Category)
	require.Equal(t, classify.ActionReconnect, body.Action)
}

func TestLoadOne_UnknownKey(t *testing.T) {
	f := setupTestFixture(t, acme)
	f.connect(t)

	rec := f.do(http.MethodPost, "/integration/resources/widgets/load", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadOne_SuccessThenThrottled(t *testing.T) {
	f := setupTestFixture(t, acme)
	f.connect(t)

	rec := f.do(http.MethodPost, "/integration/resources/invoices/load", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	require.Equal(t, "invoices", body["key"])
	require.Equal(t, acme.ID, body["tenantId"])
	require.Equal(t, map[string]any{"resource": "invoices", "tenant": acme.ID}, body["data"])

	rec = f.do(http.MethodPost, "/integration/resources/invoices/load", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "5", rec.Header().Get("Retry-After"))
	throttled := decode[errorBody](t, rec)
	require.Equal(t, classify.Throttled, throttled.Category)
	require.Equal(t, classify.ActionRetryLater, throttled.Action)

	states := decode[struct {
		Keys   []resourcesync.Key   `json:"keys"`
		States []resourcesync.State `json:"states"`
	}](t, f.do(http.MethodGet, server.RouteResources, ""))
	require.Len(t, states.Keys, 18)
	require.Len(t, states.States, 1)
	require.Equal(t, resourcesync.KeyInvoices, states.States[0].Key)
	require.NotNil(t, states.States[0].LastResult)
}

func TestLoadOne_Async(t *testing.T) {
	f := setupTestFixture(t, acme)
	f.connect(t)

	rec := f.do(http.MethodPost, "/integration/resources/contacts/load?async=true", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode[map[string]any](t, rec)
	require.Equal(t, "contacts", body["key"])
	require.NotEmpty(t, body["id"])
}

func TestLoadAll_SummaryThenThrottled(t *testing.T) {
	f := setupTestFixture(t, acme)
	f.connect(t)

	rec := f.do(http.MethodPost, server.RouteLoadAll, "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[resourcesync.Summary](t, rec)
	require.Equal(t, 18, summary.Succeeded)
	require.Zero(t, summary.Failed)
	require.Equal(t, resourcesync.KeyOrganization, summary.Results[0].Key)

	rec = f.do(http.MethodPost, server.RouteLoadAll, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSelectTenant(t *testing.T) {
	globex := tenants.Tenant{ID: "t-globex", Name: "Globex"}
	f := setupTestFixture(t, acme, globex)
	f.connect(t)

	status := decode[server.StatusResponse](t, f.do(http.MethodGet, server.RouteStatus, ""))
	require.Nil(t, status.SelectedTenant, "no auto-select with several tenants")

	rec := f.do(http.MethodPost, server.RouteTenantSelect, `{"tenantId":"t-initech"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, classify.TenantNotFound, decode[errorBody](t, rec).Category)

	rec = f.do(http.MethodPost, server.RouteTenantSelect, `{"tenantId":"t-globex"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, globex, decode[tenants.Tenant](t, rec))

	rec = f.do(http.MethodPost, server.RouteTenantSelect, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisconnect(t *testing.T) {
	f := setupTestFixture(t, acme)
	f.connect(t)

	rec := f.do(http.MethodPost, server.RouteDisconnect, "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[server.StatusResponse](t, rec)
	require.Equal(t, auth.StatusDisconnected, status.Session.Status)
	require.Empty(t, status.Tenants)

	rec = f.do(http.MethodPost, "/integration/resources/invoices/load", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotifications(t *testing.T) {
	f := setupTestFixture(t, acme)
	f.connect(t)

	rec := f.do(http.MethodGet, server.RouteNotifications, "")
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]notify.Ticket](t, rec)
	require.Len(t, pending, 1)
	require.Equal(t, "Connected to the accounting platform", pending[0].Message)

	rec = f.do(http.MethodDelete, "/integration/notifications/"+pending[0].ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodDelete, "/integration/notifications/"+pending[0].ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCors(t *testing.T) {
	f := setupTestFixture(t, acme)

	rec := f.do(http.MethodOptions, server.RouteStatus, "", "Origin", "http://localhost:3000")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	rec = f.do(http.MethodGet, server.RouteStatus, "", "Origin", "https://evil.example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := server.New(config.New(), server.Services{})
	require.Error(t, err)
}
