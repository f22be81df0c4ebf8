package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hugh/cloudguard/internal/api/dto"
	"github.com/hugh/cloudguard/internal/api/middleware"
	"github.com/hugh/cloudguard/internal/auth"
)

// defaultSessionMaxAge applies to tokens without an exp claim.
const defaultSessionMaxAge = 60 * 60

type AuthHandler struct {
	verifier     auth.TokenVerifier
	provisioner  auth.AccountProvisioner
	logger       *slog.Logger
	secureCookie bool
}

func NewAuthHandler(verifier auth.TokenVerifier, provisioner auth.AccountProvisioner, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		verifier:     verifier,
		provisioner:  provisioner,
		logger:       logger,
		secureCookie: secureCookie,
	}
}

// Callback handles GET /api/auth/callback. It runs first-login provisioning
// and always answers with a redirect.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("access_token")
	if token == "" {
		token = middleware.TokenFromRequest(r)
	}
	if token == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Debug("callback with invalid session", "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	user, created, err := h.provisioner.Ensure(r.Context(), *identity)
	if err != nil {
		code := auth.ClassifySetupError(err)
		h.logger.Error("account setup failed",
			"identity_id", identity.ID,
			"code", string(code),
			"error", err,
		)
		http.Redirect(w, r, "/login?error="+url.QueryEscape(string(code)), http.StatusSeeOther)
		return
	}

	if created {
		h.logger.Info("provisioned new account",
			"user_id", user.ID,
			"organization_id", user.OrganizationID,
		)
	}

	h.setSessionCookie(w, token, sessionMaxAge(identity.ExpiresAt, time.Now()))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Session handles POST /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	var req dto.SessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: errs,
		})
		return
	}

	identity, err := h.verifier.Verify(req.AccessToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	h.setSessionCookie(w, req.AccessToken, sessionMaxAge(identity.ExpiresAt, time.Now()))
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Session established"})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out successfully"})
}

// Me handles GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUserDTO(user))
}

// sessionMaxAge makes the cookie expire with the token it holds. Partial
// seconds round down so the cookie never outlives the token.
func sessionMaxAge(expiresAt, now time.Time) int {
	if expiresAt.IsZero() {
		return defaultSessionMaxAge
	}
	secs := int(expiresAt.Sub(now) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
