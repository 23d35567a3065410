package tenants

import (
	"sync"

	"github.com/jrsteele09/go-ledger-sync/classify"
)

// ChangeFunc is called after the selected tenant changes. ok is false when the selection was cleared.
type ChangeFunc func(current Tenant, ok bool)

// Selector tracks the authorized tenants and the one currently selected.
// At most one tenant is selected; a single authorized tenant is selected automatically.
type Selector struct {
	tenants  []Tenant
	selected string
	watchers []ChangeFunc
	lock     sync.RWMutex
}

func NewSelector() *Selector {
	return &Selector{}
}

// OnChange registers fn to be told about selection changes.
func (s *Selector) OnChange(fn ChangeFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.watchers = append(s.watchers, fn)
}

// SetTenants replaces the authorized set. A selection that is no longer in the set is dropped,
// and when the set has exactly one member and nothing is selected, that member is selected.
func (s *Selector) SetTenants(list []Tenant) {
	s.lock.Lock()
	prev := s.selected
	s.tenants = dedupe(list)
	if s.selected != "" && s.indexOf(s.selected) < 0 {
		s.selected = ""
	}
	if len(s.tenants) == 1 && s.selected == "" {
		s.selected = s.tenants[0].ID
	}
	s.notifyLocked(prev)
}

// Select makes tenantID current. An id outside the authorized set leaves the selection untouched
// and returns a TENANT_NOT_FOUND error, so it is safe to call with a stale cached id.
func (s *Selector) Select(tenantID string) error {
	s.lock.Lock()
	if s.indexOf(tenantID) < 0 {
		s.lock.Unlock()
		return classify.New(classify.TenantNotFound, "tenant %q is not in the authorized set", tenantID)
	}
	prev := s.selected
	s.selected = tenantID
	s.notifyLocked(prev)
	return nil
}

// Current returns the selected tenant.
func (s *Selector) Current() (Tenant, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if i := s.indexOf(s.selected); i >= 0 {
		return s.tenants[i], true
	}
	return Tenant{}, false
}

// List returns a copy of the authorized set.
func (s *Selector) List() []Tenant {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]Tenant(nil), s.tenants...)
}

// Clear forgets all tenants and the selection.
func (s *Selector) Clear() {
	s.lock.Lock()
	prev := s.selected
	s.tenants = nil
	s.selected = ""
	s.notifyLocked(prev)
}

// notifyLocked releases the lock, then calls watchers if the selection changed.
func (s *Selector) notifyLocked(prev string) {
	changed := prev != s.selected
	var current Tenant
	ok := false
	if i := s.indexOf(s.selected); i >= 0 {
		current, ok = s.tenants[i], true
	}
	watchers := append([]ChangeFunc(nil), s.watchers...)
	s.lock.Unlock()

	if !changed {
		return
	}
	for _, fn := range watchers {
		fn(current, ok)
	}
}

func (s *Selector) indexOf(tenantID string) int {
	if tenantID == "" {
		return -1
	}
	for i, t := range s.tenants {
		if t.ID == tenantID {
			return i
		}
	}
	return -1
}

func dedupe(list []Tenant) []Tenant {
	seen := make(map[string]struct{}, len(list))
	out := make([]Tenant, 0, len(list))
	for _, t := range list {
		if t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
