package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loyalty-engine/api"
	"github.com/warp/loyalty-engine/auth"
	"github.com/warp/loyalty-engine/jobs"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/store/sqlite"
)

type testServer struct {
	t       *testing.T
	handler *api.Handler
	router  http.Handler
}

func newTestServer(t *testing.T, opts api.Options) *testServer {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	auditor, err := jobs.NewAuditScheduler(store, "@every 1h")
	require.NoError(t, err)

	h := api.NewHandler(store, issuer, auditor, 4)
	require.NoError(t, h.Users.EnsureSuperuser(context.Background(), "root0001", "changeme"))

	return &testServer{t: t, handler: h, router: api.NewRouter(h, opts)}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(utorid, password string) string {
	rec := s.do(http.MethodPost, "/api/auth/tokens", "", map[string]string{"utorid": utorid, "password": password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp api.TokenResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// registerMember creates a verified regular member and returns their token.
func (s *testServer) registerMember(root, utorid string) string {
	rec := s.do(http.MethodPost, "/api/users", root, map[string]string{
		"utorid": utorid, "name": "Member " + utorid, "password": "password1",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPatch, "/api/users/"+utorid, root, map[string]bool{"verified": true})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return s.login(utorid, "password1")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, api.Options{})

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "loyalty_http_requests_total")
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, api.Options{})

	// No token
	rec := s.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token
	rec = s.do(http.MethodGet, "/api/users/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong password
	rec = s.do(http.MethodPost, "/api/auth/tokens", "", map[string]string{"utorid": "root0001", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token
	root := s.login("root0001", "changeme")
	rec = s.do(http.MethodGet, "/api/users/me", root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[ledger.User](t, rec)
	assert.Equal(t, "root0001", me.Utorid)
	assert.Equal(t, ledger.RoleSuperuser, me.Role)
}

func TestPurchaseRedemptionFlow(t *testing.T) {
	s := newTestServer(t, api.Options{})
	root := s.login("root0001", "changeme")
	alice := s.registerMember(root, "alice001")

	// GIVEN: a purchase of $10 at 4 points per dollar
	rec := s.do(http.MethodPost, "/api/transactions", root, map[string]any{
		"type": "purchase", "utorid": "alice001", "spent": "10.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	purchase := decode[api.PurchaseResponse](t, rec)
	assert.Equal(t, int64(40), purchase.Amount)
	assert.Equal(t, int64(40), purchase.Credited)

	// WHEN: alice requests a redemption and cashier-level staff process it
	rec = s.do(http.MethodPost, "/api/users/me/transactions", alice, map[string]any{"type": "redemption", "amount": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	redemption := decode[ledger.Transaction](t, rec)
	path := fmt.Sprintf("/api/transactions/%d/processed", redemption.ID)

	rec = s.do(http.MethodPatch, path, alice, map[string]bool{"processed": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPatch, path, root, map[string]bool{"processed": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	processed := decode[ledger.Transaction](t, rec)
	require.NotNil(t, processed.Redemption)
	assert.True(t, processed.Redemption.Processed())

	// THEN: a second attempt is refused and the balance reflects both rows
	rec = s.do(http.MethodPatch, path, root, map[string]bool{"processed": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	me := decode[ledger.User](t, s.do(http.MethodGet, "/api/users/me", alice, nil))
	assert.Equal(t, int64(30), me.Points)

	// AND: the listing shows both of alice's rows
	rec = s.do(http.MethodGet, "/api/users/me/transactions?limit=5", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	assert.Equal(t, 2, page.Count)

	// AND: the audit finds no drift
	rec = s.do(http.MethodGet, "/api/admin/audit", root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[jobs.AuditReport](t, rec)
	assert.True(t, report.Clean())
	assert.Equal(t, 2, report.Checked)

	rec = s.do(http.MethodGet, "/api/admin/audit", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLastAudit(t *testing.T) {
	s := newTestServer(t, api.Options{})
	root := s.login("root0001", "changeme")
	alice := s.registerMember(root, "alice001")

	// GIVEN: no audit has run yet
	rec := s.do(http.MethodGet, "/api/admin/audit/last", root, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// WHEN: an audit runs on demand
	rec = s.do(http.MethodGet, "/api/admin/audit", root, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ran := decode[api.AuditResponse](t, rec)
	assert.True(t, ran.Clean)
	assert.NotNil(t, ran.Drift)

	// THEN: the same report is served as the latest run, to managers only
	rec = s.do(http.MethodGet, "/api/admin/audit/last", root, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	last := decode[api.AuditResponse](t, rec)
	assert.Equal(t, ran.RunID, last.RunID)
	assert.True(t, last.Clean)
	assert.Equal(t, ran.Checked, last.Checked)

	rec = s.do(http.MethodGet, "/api/admin/audit/last", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTransferAndSuspicion(t *testing.T) {
	s := newTestServer(t, api.Options{})
	root := s.login("root0001", "changeme")
	alice := s.registerMember(root, "alice001")
	s.registerMember(root, "bob00001")
	bob := decode[ledger.User](t, s.do(http.MethodGet, "/api/users/me", s.login("bob00001", "password1"), nil))

	rec := s.do(http.MethodPost, "/api/transactions", root, map[string]any{
		"type": "purchase", "utorid": "alice001", "spent": "5",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	purchase := decode[ledger.Transaction](t, rec)

	// Transfer more than the balance
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/users/%d/transactions", bob.ID), alice,
		map[string]any{"type": "transfer", "amount": 50})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/users/%d/transactions", bob.ID), alice,
		map[string]any{"type": "transfer", "amount": 15})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[ledger.Transaction](t, rec)
	assert.Equal(t, int64(-15), sent.Amount)
	assert.Equal(t, "bob00001", sent.Recipient)

	// Flagging the purchase needs 20 points back but alice holds only 5
	rec = s.do(http.MethodPatch, fmt.Sprintf("/api/transactions/%d/suspicious", purchase.ID), root,
		map[string]bool{"suspicious": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Listing is manager-only and filterable
	rec = s.do(http.MethodGet, "/api/transactions?type=transfer", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodGet, "/api/transactions?type=transfer", root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Count   int                  `json:"count"`
		Results []ledger.Transaction `json:"results"`
	}](t, rec)
	assert.Equal(t, 2, page.Count)

	rec = s.do(http.MethodGet, "/api/transactions?limit=500", root, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidationRunsBeforePermissions(t *testing.T) {
	s := newTestServer(t, api.Options{})
	root := s.login("root0001", "changeme")
	alice := s.registerMember(root, "alice001")

	// A regular member sending a malformed purchase gets a validation error,
	// not a permission error.
	rec := s.do(http.MethodPost, "/api/transactions", alice, map[string]any{"type": "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "validation failed", body.Error)

	rec = s.do(http.MethodPost, "/api/transactions", alice, map[string]any{
		"type": "purchase", "utorid": "alice001", "spent": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/transactions", alice, map[string]any{
		"type": "purchase", "utorid": "alice001", "spent": "1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/transactions/abc", root, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/api/transactions/999", root, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventFlow(t *testing.T) {
	s := newTestServer(t, api.Options{})
	root := s.login("root0001", "changeme")
	alice := s.registerMember(root, "alice001")

	now := time.Now().UTC()
	rec := s.do(http.MethodPost, "/api/events", root, map[string]any{
		"name":      "Orientation",
		"location":  "BA 1160",
		"startTime": now.Add(-time.Hour),
		"endTime":   now.Add(24 * time.Hour),
		"capacity":  1,
		"points":    100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[map[string]any](t, rec)
	id := int64(event["id"].(float64))
	base := fmt.Sprintf("/api/events/%d", id)

	assert.Equal(t, false, event["published"])

	// Publishing needs a body and a manager
	rec = s.do(http.MethodPatch, base+"/published", root, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPatch, base+"/published", alice, map[string]bool{"published": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPatch, base+"/published", root, map[string]bool{"published": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rec)["published"])

	// Self RSVP, then a second RSVP is a conflict
	rec = s.do(http.MethodPost, base+"/guests/me", alice, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, base+"/guests/me", alice, nil)
	assert.Equal(t, http.StatusGone, rec.Code, "capacity 1 is already taken")

	// Only organizers and managers award
	award := map[string]any{"type": "event", "utorid": "alice001", "amount": 30}
	rec = s.do(http.MethodPost, base+"/transactions", alice, award)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, base+"/transactions", root, award)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	row := decode[ledger.Transaction](t, rec)
	assert.Equal(t, ledger.KindEvent, row.Kind)
	assert.Equal(t, int64(30), row.Amount)

	// Over budget
	rec = s.do(http.MethodPost, base+"/transactions", root, map[string]any{"type": "event", "amount": 71})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Budget cannot drop below what was awarded
	rec = s.do(http.MethodPatch, base+"/points", root, map[string]int{"points": 20})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, base, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[api.EventResponse](t, rec)
	assert.Equal(t, int64(30), summary.PointsAwarded)
	assert.Equal(t, int64(70), summary.PointsRemain)
	assert.Equal(t, 1, summary.NumGuests)

	me := decode[ledger.User](t, s.do(http.MethodGet, "/api/users/me", alice, nil))
	assert.Equal(t, int64(30), me.Points)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, api.Options{Limiter: api.NewRateLimiter(1, 2, time.Minute)})

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/healthz", "", nil).Code)
}
