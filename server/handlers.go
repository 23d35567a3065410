package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-ledger-sync/auth"
	"github.com/jrsteele09/go-ledger-sync/classify"
	"github.com/jrsteele09/go-ledger-sync/resourcesync"
	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/rs/zerolog/log"
)

// StatusResponse is what the UI renders the connection panel from.
type StatusResponse struct {
	Session        auth.Session     `json:"session"`
	Action         classify.Action  `json:"action"`
	Tenants        []tenants.Tenant `json:"tenants"`
	SelectedTenant *tenants.Tenant  `json:"selectedTenant,omitempty"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ConnectHandler starts the authorization flow. Browsers are redirected to the consent page,
// scripts asking for JSON get the URL.
func (s *Server) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectURL, err := s.services.Session.StartAuthorization(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, map[string]string{"url": redirectURL})
			return
		}
		http.Redirect(w, r, redirectURL, http.StatusFound)
	}
}

// CallbackHandler completes the flow from the provider redirect. r.FormValue covers both the query
// (GET) and form_post (POST) response modes.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, classify.WrapAs(classify.InvalidCallback, err))
			return
		}
		// An invalid callback is still handed to the session, which decides whether a pending flow failed.
		cb, _ := auth.ParseCallback(r.Form)
		err := s.services.Session.CompleteAuthorization(r.Context(), cb)

		if wantsJSON(r) {
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, s.status())
			return
		}
		http.Redirect(w, r, s.returnURL(err), http.StatusFound)
	}
}

func (s *Server) DisconnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Session.Disconnect(r.Context()); err != nil {
			log.Err(err).Msg("DisconnectHandler: disconnect finished with errors")
		}
		writeJSON(w, http.StatusOK, s.status())
	}
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.status())
	}
}

func (s *Server) TenantsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Tenants        []tenants.Tenant `json:"tenants"`
			SelectedTenant *tenants.Tenant  `json:"selectedTenant,omitempty"`
		}{Tenants: s.services.Tenants.List()}
		if t, ok := s.services.Tenants.Current(); ok {
			resp.SelectedTenant = &t
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type selectTenantRequest struct {
	TenantID string `json:"tenantId"`
}

func (s *Server) SelectTenantHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectTenantRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.TenantID == "" {
			writeJSONError(w, string(classify.TenantNotFound), "tenantId is required", string(classify.ActionRefreshTenants), http.StatusBadRequest)
			return
		}
		if err := s.services.Tenants.Select(req.TenantID); err != nil {
			writeError(w, err)
			return
		}
		current, _ := s.services.Tenants.Current()
		writeJSON(w, http.StatusOK, current)
	}
}

func (s *Server) ResourcesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"keys":   resourcesync.Keys(),
			"states": s.services.Sync.States(),
		})
	}
}

// LoadOneHandler loads one resource. By default it waits for the result; with async=true it returns
// the load handle straight away with 202 Accepted.
func (s *Server) LoadOneHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := resourcesync.ParseKey(r.PathValue("key"))
		if err != nil {
			writeJSONError(w, string(classify.Unknown), err.Error(), string(classify.ActionNone), http.StatusNotFound)
			return
		}
		load, err := s.services.Sync.LoadOne(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}
		if r.URL.Query().Get("async") == "true" {
			writeJSON(w, http.StatusAccepted, load)
			return
		}

		data, err := load.Wait(r.Context())
		if err != nil {
			if r.Context().Err() != nil {
				// client went away, the load carries on
				return
			}
			writeError(w, err)
			return
		}
		res, _ := load.Result()
		writeJSON(w, http.StatusOK, map[string]any{
			"key":         key,
			"tenantId":    res.TenantID,
			"completedAt": res.CompletedAt,
			"data":        data,
		})
	}
}

func (s *Server) LoadAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.services.Sync.LoadAll(r.Context())
		if err != nil {
			if summary.TenantID == "" {
				writeError(w, err)
				return
			}
			ce := classify.Wrap(err)
			writeJSON(w, statusFor(ce, err), map[string]any{
				"category": ce.Category,
				"message":  ce.Message,
				"action":   ce.Action(),
				"summary":  summary,
			})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) NotificationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.services.Notifications.Pending())
	}
}

func (s *Server) DismissNotificationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.services.Notifications.Dismiss(r.PathValue("id")) {
			writeJSONError(w, "NOT_FOUND", "notification not found", string(classify.ActionNone), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) status() StatusResponse {
	session := s.services.Session.Snapshot()
	resp := StatusResponse{
		Session: session,
		Action:  session.Action(),
		Tenants: s.services.Tenants.List(),
	}
	if t, ok := s.services.Tenants.Current(); ok {
		resp.SelectedTenant = &t
	}
	return resp
}

// returnURL sends the browser back to the app with the outcome in the query.
func (s *Server) returnURL(err error) string {
	u, parseErr := url.Parse(s.config.GetReturnURL())
	if parseErr != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	if err != nil {
		q.Set("integration", "error")
		q.Set("category", string(classify.CategoryOf(err)))
	} else {
		q.Set("integration", "connected")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
