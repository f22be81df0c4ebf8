package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/api/dto"
	"github.com/hugh/cloudguard/internal/auth"
	"github.com/hugh/cloudguard/internal/database/models"
)

// SessionCookieName is the cookie the identity provider's browser SDK sets.
const SessionCookieName = "sb-access-token"

type contextKey string

const (
	IdentityKey contextKey = "identity"
	UserKey     contextKey = "user"
)

// TokenFromRequest returns the session token from the Authorization header,
// the session cookie, or X-Auth-Token, in that order.
func TokenFromRequest(r *http.Request) string {
	// 1. Check Authorization header (API requests)
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Check cookie (web dashboard)
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	// 3. Check X-Auth-Token header (localStorage fallback for AJAX)
	return r.Header.Get("X-Auth-Token")
}

// Auth verifies the session and stores the Identity in the context.
func Auth(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				handleUnauthorized(w, r)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				handleUnauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser resolves the authenticated identity to its provisioned User.
// A valid session without a User row is a 404, not a server error.
func RequireUser(users auth.UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				handleUnauthorized(w, r)
				return
			}

			user, err := users.GetUserByID(r.Context(), identity.ID)
			if err != nil {
				if errors.Is(err, auth.ErrUserNotFound) {
					writeError(w, http.StatusNotFound, "User not found")
					return
				}
				logger.Error("resolving user", "user_id", identity.ID, "error", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// handleUnauthorized returns appropriate response based on request type
func handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	if isWebRequest(r) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	writeError(w, http.StatusUnauthorized, "Unauthorized")
}

func isWebRequest(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html") && !strings.HasPrefix(r.URL.Path, "/api/")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: msg})
}

// Helper functions to extract values from context
func GetIdentity(ctx context.Context) *auth.Identity {
	if id, ok := ctx.Value(IdentityKey).(*auth.Identity); ok {
		return id
	}
	return nil
}

func GetUserID(ctx context.Context) uuid.UUID {
	if id := GetIdentity(ctx); id != nil {
		return id.ID
	}
	return uuid.Nil
}

func GetUser(ctx context.Context) *models.User {
	if user, ok := ctx.Value(UserKey).(*models.User); ok {
		return user
	}
	return nil
}

func GetOrganizationID(ctx context.Context) uuid.UUID {
	if user := GetUser(ctx); user != nil {
		return user.OrganizationID
	}
	return uuid.Nil
}
