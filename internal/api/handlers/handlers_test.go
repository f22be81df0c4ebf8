package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/cloudguard/internal/accounts"
	"github.com/hugh/cloudguard/internal/api/handlers"
	"github.com/hugh/cloudguard/internal/api/middleware"
	"github.com/hugh/cloudguard/internal/auth"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/scans"
	"github.com/hugh/cloudguard/internal/testutil"
	"github.com/hugh/cloudguard/internal/workflow"
	"github.com/hugh/cloudguard/pkg/util"
)

// testEnv wires the account and scan handlers the way the API router does,
// with the automation webhook served by webhook.
type testEnv struct {
	*testutil.TestSetup
	router   *chi.Mux
	accounts *accounts.Service
	scans    *scans.Service
}

func newTestEnv(t *testing.T, webhook http.Handler, validators ...cloud.Validator) *testEnv {
	t.Helper()

	ts := testutil.NewTestContext(t)
	logger := util.Discard()

	srv := httptest.NewServer(webhook)
	t.Cleanup(srv.Close)

	accountService := accounts.NewService(ts.DB, ts.Encryptor, cloud.NewRegistry(validators...), logger)
	scanService := scans.NewService(ts.DB, accountService, workflow.NewClient(srv.URL, 2*time.Second), logger)

	accountHandler := handlers.NewAccountHandler(accountService, logger)
	scanHandler := handlers.NewScanHandler(scanService, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(ts.Verifier))
		r.Use(middleware.RequireUser(auth.NewService(ts.DB), logger))

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", accountHandler.List)
			r.Post("/", accountHandler.Create)
			r.Delete("/", accountHandler.Delete)
			r.Post("/{id}/test", accountHandler.Test)
		})
		r.Route("/scan", func(r chi.Router) {
			r.Get("/", scanHandler.List)
			r.Post("/", scanHandler.Trigger)
			r.Get("/{id}", scanHandler.Get)
		})
	})

	return &testEnv{TestSetup: ts, router: r, accounts: accountService, scans: scanService}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func acceptWebhook() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
