// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func down(context.Context) error { return errors.New("connection refused") }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadinessAllHealthy(t *testing.T) {
	h := NewHandler(
		Dependency{Name: "database", Checker: CheckerFunc(ok)},
		Dependency{Name: "redis", Checker: CheckerFunc(ok)},
	)

	rec := serve(h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Checks, 2)
	assert.Equal(t, "database", body.Checks[0].Name)
	assert.Equal(t, "redis", body.Checks[1].Name)
}

func TestReadinessDegraded(t *testing.T) {
	h := NewHandler(
		Dependency{Name: "database", Checker: CheckerFunc(ok)},
		Dependency{Name: "redis", Checker: CheckerFunc(down)},
	)

	rec := serve(h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.True(t, body.Checks[0].Healthy)
	assert.False(t, body.Checks[1].Healthy)
	assert.Equal(t, "ping failed", body.Checks[1].Message)
}

func TestReadinessMissingChecker(t *testing.T) {
	h := NewHandler(Dependency{Name: "database"})

	rec := serve(h, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database checker not configured")
}

func TestReadinessNotReady(t *testing.T) {
	h := NewHandler()
	h.SetReady(false)

	rec := serve(h, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_ready")
}

func TestShutdownFailsLivenessAndReadiness(t *testing.T) {
	h := NewHandler(Dependency{Name: "database", Checker: CheckerFunc(ok)})
	h.SetShutdown(true)

	for _, path := range []string{"/healthz", "/livez", "/readyz"} {
		rec := serve(h, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "shutting_down", path)
	}
}

func TestLivenessIgnoresDependencies(t *testing.T) {
	h := NewHandler(Dependency{Name: "redis", Checker: CheckerFunc(down)})

	rec := serve(h, "/livez")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
}
