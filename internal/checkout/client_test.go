// AngelaMos | 2026
// client_test.go

package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/config"
)

type providerStub struct {
	server *httptest.Server
	hits   atomic.Int32
	last   atomic.Pointer[capturedRequest]
}

type capturedRequest struct {
	Path          string
	Authorization string
	ContentType   string
	Body          map[string]any
}

func newProviderStub(t *testing.T, respond http.HandlerFunc) *providerStub {
	t.Helper()

	stub := &providerStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.hits.Add(1)

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		stub.last.Store(&capturedRequest{
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          body,
		})

		respond(w, r)
	}))
	t.Cleanup(stub.server.Close)

	return stub
}

func (s *providerStub) client(apiKey, storeID string) *Client {
	return NewClient(config.ProviderConfig{
		APIKey:  apiKey,
		StoreID: storeID,
		BaseURL: s.server.URL,
	})
}

func created(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", jsonAPIContentType)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"data":{"type":"checkouts","id":"c1","attributes":{"url":"https://shop.example/checkout/c1"}}}`))
}

func TestClientCreateCheckout(t *testing.T) {
	stub := newProviderStub(t, created)

	url, err := stub.client("key_123", "store_9").CreateCheckout(context.Background(), Request{
		UserID:    "u1",
		Email:     "buyer@example.com",
		VariantID: "var_7",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/checkout/c1", url)

	got := stub.last.Load()
	require.NotNil(t, got)
	assert.Equal(t, "/v1/checkouts", got.Path)
	assert.Equal(t, "Bearer key_123", got.Authorization)
	assert.Equal(t, jsonAPIContentType, got.ContentType)

	data := got.Body["data"].(map[string]any)
	assert.Equal(t, "checkouts", data["type"])

	checkoutData := data["attributes"].(map[string]any)["checkout_data"].(map[string]any)
	assert.Equal(t, "buyer@example.com", checkoutData["email"])
	assert.Equal(t, map[string]any{"user_id": "u1"}, checkoutData["custom"])

	rel := data["relationships"].(map[string]any)
	assert.Equal(t, "store_9", rel["store"].(map[string]any)["data"].(map[string]any)["id"])
	assert.Equal(t, "var_7", rel["variant"].(map[string]any)["data"].(map[string]any)["id"])
}

func TestClientOmitsEmptyEmail(t *testing.T) {
	stub := newProviderStub(t, created)

	_, err := stub.client("key", "store").CreateCheckout(context.Background(), Request{
		UserID: "u1", VariantID: "v1",
	})
	require.NoError(t, err)

	checkoutData := stub.last.Load().Body["data"].(map[string]any)["attributes"].(map[string]any)["checkout_data"].(map[string]any)
	_, hasEmail := checkoutData["email"]
	assert.False(t, hasEmail)
}

func TestClientProviderRejection(t *testing.T) {
	stub := newProviderStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"status":"422","title":"Unprocessable","detail":"The variant field is invalid."},{"title":"Store mismatch"}]}`))
	})

	_, err := stub.client("key", "store").CreateCheckout(context.Background(), Request{
		UserID: "u1", VariantID: "bad",
	})

	var rejected *ProviderRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.Status)
	assert.Equal(t, []string{"The variant field is invalid.", "Store mismatch"}, rejected.Details)
	assert.Equal(t, int32(1), stub.hits.Load(), "rejections are not retried")
}

func TestClientRejectionWithoutJSONBody(t *testing.T) {
	stub := newProviderStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := stub.client("key", "store").CreateCheckout(context.Background(), Request{
		UserID: "u1", VariantID: "v1",
	})

	var rejected *ProviderRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusBadGateway, rejected.Status)
	assert.Empty(t, rejected.Details)
}

func TestClientMisconfiguredMakesNoCall(t *testing.T) {
	stub := newProviderStub(t, created)

	tests := []struct {
		name    string
		apiKey  string
		storeID string
	}{
		{name: "no api key", storeID: "store"},
		{name: "no store", apiKey: "key"},
		{name: "blank", apiKey: "  ", storeID: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stub.client(tt.apiKey, tt.storeID).CreateCheckout(context.Background(), Request{
				UserID: "u1", VariantID: "v1",
			})
			assert.ErrorIs(t, err, ErrMisconfigured)
		})
	}

	assert.Equal(t, int32(0), stub.hits.Load())
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	stub := newProviderStub(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := stub.client("key", "store").CreateCheckout(ctx, Request{UserID: "u1", VariantID: "v1"})

	assert.ErrorIs(t, err, ErrProviderTimeout)
}

func TestClientSuccessWithoutURL(t *testing.T) {
	stub := newProviderStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"attributes":{}}}`))
	})

	_, err := stub.client("key", "store").CreateCheckout(context.Background(), Request{UserID: "u1", VariantID: "v1"})

	assert.ErrorIs(t, err, ErrProviderResponse)
}
