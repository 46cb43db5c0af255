// AngelaMos | 2026
// handler_test.go

package entitlement_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/entitlement"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// fakeAuth stands in for the JWT authenticator; the role comes from a header.
func fakeAuth(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), &middleware.AccessTokenClaims{
				UserID: userID,
				Role:   r.Header.Get("X-Test-Role"),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRouter(t *testing.T, userID string) (http.Handler, *entitlement.Service) {
	t.Helper()

	svc, _, _ := newService(t)
	h := entitlement.NewHandler(svc)

	r := chi.NewRouter()
	h.RegisterRoutes(r, fakeAuth(userID))
	h.RegisterAdminRoutes(r, fakeAuth(userID), middleware.RequireAdmin)

	return r, svc
}

func do(t *testing.T, h http.Handler, method, path, role string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestGetMeForUnknownUser(t *testing.T) {
	router, _ := newRouter(t, "u1")

	rec, env := do(t, router, http.MethodGet, "/entitlements/me", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body entitlement.EntitlementResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.False(t, body.IsPremium)
	assert.Equal(t, entitlement.TierFree, body.Tier)
	assert.Equal(t, entitlement.ExpiryNone, body.Expiry)
}

func TestGetMeAfterGrant(t *testing.T) {
	router, svc := newRouter(t, "u1")
	renews := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Apply(context.Background(), "u1", grantEvent(&renews))
	require.NoError(t, err)

	_, env := do(t, router, http.MethodGet, "/entitlements/me", "")

	var body entitlement.EntitlementResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.True(t, body.IsPremium)
	assert.Equal(t, entitlement.TierPremium, body.Tier)
	require.NotNil(t, body.PremiumUntil)
	assert.True(t, body.PremiumUntil.Equal(renews))
	assert.Equal(t, 0, body.UsageCounter)
}

func TestRecordUsageRequiresPremium(t *testing.T) {
	router, svc := newRouter(t, "u1")

	rec, env := do(t, router, http.MethodPost, "/entitlements/me/usage", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	_, err := svc.Apply(context.Background(), "u1", grantEvent(nil))
	require.NoError(t, err)

	rec, env = do(t, router, http.MethodPost, "/entitlements/me/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body entitlement.EntitlementResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 1, body.UsageCounter)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, _ := newRouter(t, "u1")

	rec, _ := do(t, router, http.MethodGet, "/admin/entitlements/u1", "user")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminGetUser(t *testing.T) {
	router, svc := newRouter(t, "admin-1")
	_, err := svc.Apply(context.Background(), "u1", grantEvent(nil))
	require.NoError(t, err)

	rec, env := do(t, router, http.MethodGet, "/admin/entitlements/u1", middleware.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)

	var body entitlement.AdminEntitlementResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "sub_1", body.SubscriptionID)
	assert.Equal(t, "cus_1", body.CustomerID)
	assert.True(t, body.Lifetime)
	assert.Equal(t, entitlement.ExpiryLifetime, body.Expiry)

	rec, _ = do(t, router, http.MethodGet, "/admin/entitlements/nobody", middleware.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSweep(t *testing.T) {
	router, _ := newRouter(t, "admin-1")

	rec, env := do(t, router, http.MethodPost, "/admin/entitlements/sweep", middleware.RoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	var body entitlement.SweepResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 0, body.Expired)
}
