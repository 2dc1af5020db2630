package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestIdentityMiddlewareRejectsMissingHeaders(t *testing.T) {
	mw := identityMiddleware(slog.Default())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without identity")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/finance/periods/current", nil))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "tenant header")
}

func TestIdentityMiddlewareRejectsMalformedUser(t *testing.T) {
	mw := identityMiddleware(slog.Default())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without identity")
	}))

	req := httptest.NewRequest(http.MethodGet, "/finance/periods/current", nil)
	req.Header.Set("X-Tenant-ID", uuid.NewString())
	req.Header.Set("X-User-ID", "not-a-uuid")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "user header")
}

func TestIdentityMiddlewareInjectsIdentity(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()

	var got shared.Identity
	mw := identityMiddleware(slog.Default())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := shared.IdentityFromContext(r.Context())
		require.True(t, ok)
		got = ident
	}))

	req := httptest.NewRequest(http.MethodGet, "/finance/periods/current", nil)
	req.Header.Set("X-Tenant-ID", tenantID.String())
	req.Header.Set("X-User-ID", userID.String())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, tenantID, got.TenantID)
	require.Equal(t, userID, got.UserID)
}

func TestRouterServesHealthz(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.Default(),
		Config: &Config{RateLimitPerMinute: 100},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
