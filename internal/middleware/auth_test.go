// AngelaMos | 2026
// auth_test.go

package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
)

type stubVerifier map[string]*AccessTokenClaims

func (s stubVerifier) VerifyAccessToken(_ context.Context, token string) (*AccessTokenClaims, error) {
	switch token {
	case "expired":
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
	}
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
}

var verifier = stubVerifier{
	"user-token":  {UserID: "u1", Email: "u1@example.com", Role: "user"},
	"admin-token": {UserID: "a1", Role: RoleAdmin},
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func call(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticatorPopulatesContext(t *testing.T) {
	var gotID, gotEmail, gotRole string
	h := Authenticator(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetUserID(r.Context())
		gotEmail = GetUserEmail(r.Context())
		gotRole = GetUserRole(r.Context())
		require.NotNil(t, GetClaims(r.Context()))
	}))

	rec := call(h, "Bearer user-token")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", gotID)
	assert.Equal(t, "u1@example.com", gotEmail)
	assert.Equal(t, "user", gotRole)
}

func TestAuthenticatorRejects(t *testing.T) {
	h := Authenticator(verifier)(okHandler())

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing header", header: "", code: core.CodeAuthenticationFailed},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", code: core.CodeAuthenticationFailed},
		{name: "expired", header: "Bearer expired", code: core.CodeTokenExpired},
		{name: "invalid", header: "Bearer forged", code: core.CodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(h, tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	h := Authenticator(verifier)(RequireAdmin(okHandler()))

	assert.Equal(t, http.StatusOK, call(h, "Bearer admin-token").Code)

	rec := call(h, "Bearer user-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, core.CodeForbidden, errorCode(t, rec))
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	rec := call(RequireRole(RoleAdmin)(okHandler()), "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractTokenIsCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  abc ")

	assert.Equal(t, "abc", ExtractToken(req))
}
