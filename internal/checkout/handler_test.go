// AngelaMos | 2026
// handler_test.go

package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/metrics"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/middleware"
)

type apiEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
	Error *struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

func sessionAs(userID, email string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), &middleware.AccessTokenClaims{
				UserID: userID,
				Email:  email,
				Role:   "user",
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newCheckoutRouter(client *Client) http.Handler {
	svc := NewService(client, time.Second, metrics.New(), discardLogger())
	r := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(r, sessionAs("u1", "session@example.com"), nil)
	return r
}

func postCheckout(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestCreateCheckoutUsesSessionIdentity(t *testing.T) {
	stub := newProviderStub(t, created)
	h := newCheckoutRouter(stub.client("key", "store"))

	rec, env := postCheckout(t, h, `{"variant_id":"v1","user_id":"attacker"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "https://shop.example/checkout/c1", env.Data.CheckoutURL)

	checkoutData := stub.last.Load().Body["data"].(map[string]any)["attributes"].(map[string]any)["checkout_data"].(map[string]any)
	assert.Equal(t, map[string]any{"user_id": "u1"}, checkoutData["custom"])
	assert.Equal(t, "session@example.com", checkoutData["email"])
}

func TestCreateCheckoutMissingVariant(t *testing.T) {
	stub := newProviderStub(t, created)
	h := newCheckoutRouter(stub.client("key", "store"))

	rec, env := postCheckout(t, h, `{"email":"a@example.com"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, core.CodeValidationFailed, env.Error.Code)
	assert.Equal(t, int32(0), stub.hits.Load())
}

func TestCreateCheckoutProviderRejectionCarriesDetails(t *testing.T) {
	stub := newProviderStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"detail":"The variant field is invalid."}]}`))
	})
	h := newCheckoutRouter(stub.client("key", "store"))

	rec, env := postCheckout(t, h, `{"variant_id":"nope"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, core.CodeUpstreamError, env.Error.Code)
	assert.Equal(t, []string{"The variant field is invalid."}, env.Error.Details)
}

func TestCreateCheckoutMisconfiguredHidesCause(t *testing.T) {
	stub := newProviderStub(t, created)
	h := newCheckoutRouter(stub.client("", ""))

	rec, env := postCheckout(t, h, `{"variant_id":"v1"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, core.CodeConfigurationError, env.Error.Code)
	assert.Empty(t, env.Error.Details)
	assert.NotContains(t, rec.Body.String(), "credentials")
	assert.Equal(t, int32(0), stub.hits.Load())
}

func TestCreateCheckoutInvalidJSON(t *testing.T) {
	stub := newProviderStub(t, created)
	h := newCheckoutRouter(stub.client("key", "store"))

	rec, _ := postCheckout(t, h, `{"variant_id":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
