package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hugh/cloudguard/internal/accounts"
	"github.com/hugh/cloudguard/internal/api"
	"github.com/hugh/cloudguard/internal/api/middleware"
	"github.com/hugh/cloudguard/internal/auth"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/notify"
	"github.com/hugh/cloudguard/internal/scans"
	"github.com/hugh/cloudguard/internal/testutil"
	"github.com/hugh/cloudguard/internal/web"
	"github.com/hugh/cloudguard/internal/workflow"
	"github.com/hugh/cloudguard/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, limit int) (*api.Router, *testutil.TestSetup) {
	t.Helper()

	ts := testutil.NewTestContext(t)
	logger := util.Discard()

	templates, err := web.LoadTemplates()
	require.NoError(t, err)
	staticFS, err := web.GetStaticFS()
	require.NoError(t, err)

	limiter := middleware.NewMemoryLimiter(limit, time.Minute)
	t.Cleanup(limiter.Stop)

	accountService := accounts.NewService(ts.DB, ts.Encryptor, cloud.NewRegistry(), logger)
	scanService := scans.NewService(ts.DB, accountService, workflow.NewClient("http://127.0.0.1:1", time.Second), logger)

	router := api.NewRouter(api.RouterConfig{
		DB:             ts.DB,
		Logger:         logger,
		Verifier:       ts.Verifier,
		Users:          auth.NewService(ts.DB),
		Provisioner:    auth.NewProvisioner(ts.DB, logger),
		Accounts:       accountService,
		Scans:          scanService,
		Notifier:       notify.NewSlackNotifier(notify.Config{}, nil, logger),
		Limiter:        limiter,
		Templates:      templates,
		StaticFS:       staticFS,
		AllowedOrigins: []string{"https://app.cloudguard.io"},
		SignInURL:      "https://id.example.com/authorize",
	})
	return router, ts
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, _ := newTestRouter(t, 100)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"ready", http.MethodGet, "/ready", http.StatusOK},
		{"login page", http.MethodGet, "/login", http.StatusOK},
		{"stylesheet", http.MethodGet, "/static/css/app.css", http.StatusOK},
		{"notification usage", http.MethodGet, "/api/notifications/slack", http.StatusOK},
		{"notification send", http.MethodPost, "/api/notifications/slack", http.StatusOK},
		{"callback without session", http.MethodGet, "/api/auth/callback", http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(router, testutil.UnauthenticatedRequest(t, tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestRouter_ProtectedRoutesRequireSession(t *testing.T) {
	router, _ := newTestRouter(t, 100)

	for _, path := range []string{"/api/me", "/api/accounts", "/api/scan"} {
		t.Run(path, func(t *testing.T) {
			rr := serve(router, testutil.UnauthenticatedRequest(t, http.MethodGet, path, nil))
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, rr.Body.String())
		})
	}
}

func TestRouter_AuthenticatedAPI(t *testing.T) {
	router, ts := newTestRouter(t, 100)

	rr := serve(router, testutil.AuthenticatedRequest(t, http.MethodGet, "/api/accounts", nil, ts.Token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"accounts":[]}`, rr.Body.String())
	assert.Equal(t, "100", rr.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_RateLimit(t *testing.T) {
	router, ts := newTestRouter(t, 2)

	for i := 0; i < 2; i++ {
		rr := serve(router, testutil.AuthenticatedRequest(t, http.MethodGet, "/api/me", nil, ts.Token))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := serve(router, testutil.AuthenticatedRequest(t, http.MethodGet, "/api/me", nil, ts.Token))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Public routes are not limited.
	rr = serve(router, testutil.UnauthenticatedRequest(t, http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, 100)

	req := httptest.NewRequest(http.MethodOptions, "/api/accounts", nil)
	req.Header.Set("Origin", "https://app.cloudguard.io")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Auth-Token")

	rr := serve(router, req)
	assert.Equal(t, "https://app.cloudguard.io", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouter_RootRedirectsToDashboard(t *testing.T) {
	router, ts := newTestRouter(t, 100)

	rr := serve(router, testutil.AuthenticatedRequest(t, http.MethodGet, "/", nil, ts.Token))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
}
