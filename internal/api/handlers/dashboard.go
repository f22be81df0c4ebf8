package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hugh/cloudguard/internal/accounts"
	"github.com/hugh/cloudguard/internal/api/middleware"
	"github.com/hugh/cloudguard/internal/auth"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/scans"
	"github.com/hugh/cloudguard/internal/web"
)

const recentScanLimit = 10

type DashboardHandler struct {
	users     auth.UserResolver
	accounts  *accounts.Service
	scans     *scans.Service
	templates *web.Templates
	signInURL string
	logger    *slog.Logger
}

func NewDashboardHandler(
	users auth.UserResolver,
	accounts *accounts.Service,
	scans *scans.Service,
	templates *web.Templates,
	signInURL string,
	logger *slog.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		users:     users,
		accounts:  accounts,
		scans:     scans,
		templates: templates,
		signInURL: signInURL,
		logger:    logger,
	}
}

type dashboardStats struct {
	Accounts int
	Scans    int64
	Counts   models.SeverityCounts
}

// Index renders the dashboard. A signed-in identity without a local user is
// sent through the provisioning callback first.
func (h *DashboardHandler) Index(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			http.Redirect(w, r, "/api/auth/callback", http.StatusSeeOther)
			return
		}
		h.logger.Error("loading dashboard user", "user_id", userID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	list, err := h.accounts.List(r.Context(), user.OrganizationID)
	if err != nil {
		h.logger.Error("loading dashboard accounts", "organization_id", user.OrganizationID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	recent, total, err := h.scans.List(r.Context(), user.OrganizationID, scans.ListFilter{Limit: recentScanLimit})
	if err != nil {
		h.logger.Error("loading dashboard scans", "organization_id", user.OrganizationID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	stats := dashboardStats{Accounts: len(list), Scans: total}
	for _, s := range recent {
		if s.Status != models.ScanStatusCompleted {
			continue
		}
		c := s.SeverityCounts.Data()
		stats.Counts.Critical += c.Critical
		stats.Counts.High += c.High
		stats.Counts.Medium += c.Medium
		stats.Counts.Low += c.Low
	}

	h.render(w, "dashboard.html", map[string]interface{}{
		"User":         user,
		"Organization": user.Organization,
		"Accounts":     list,
		"Scans":        recent,
		"Stats":        stats,
	})
}

// Login renders the sign-in page, including any provisioning error code
// passed back by the callback.
func (h *DashboardHandler) Login(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"SignInURL": h.signInURL,
	}
	if code := r.URL.Query().Get("error"); code != "" {
		data["Error"] = auth.SetupError(code).Message()
	}
	h.render(w, "login.html", data)
}

func (h *DashboardHandler) render(w http.ResponseWriter, name string, data interface{}) {
	if h.templates == nil {
		http.Error(w, "Templates not loaded", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, name, data); err != nil {
		h.logger.Error("rendering template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
