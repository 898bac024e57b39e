package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func acmeTenant() *tenants.Tenant {
	return &tenants.Tenant{
		ID:                 "tenant-1",
		Name:               "Acme",
		Subdomain:          "acme",
		Plan:               tenants.PlanStarter,
		Status:             tenants.StatusActive,
		SubscriptionStatus: tenants.SubscriptionActive,
		MaxUsers:           2,
		TrialEndsAt:        testNow.Add(-24 * time.Hour),
	}
}

func newTenantStore(t *testing.T, ts ...*tenants.Tenant) *tenants.MemoryStore {
	t.Helper()
	store := tenants.NewMemoryStore()
	for _, tenant := range ts {
		require.NoError(t, store.CreateTenant(context.Background(), tenant))
	}
	return store
}

// okHandler records that it ran and answers 200.
type okHandler struct {
	called bool
	ctx    context.Context
}

func (h *okHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

type spyObserver struct {
	mu          sync.Mutex
	gates       []string
	permissions []string
	resolved    []string
}

func (s *spyObserver) GateDenied(gate, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates = append(s.gates, gate+"/"+code)
}

func (s *spyObserver) PermissionDenied(permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = append(s.permissions, permission)
}

func (s *spyObserver) TenantResolved(source, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, source+"/"+result)
}
