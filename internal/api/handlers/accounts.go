package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/accounts"
	"github.com/hugh/cloudguard/internal/api/dto"
	"github.com/hugh/cloudguard/internal/api/middleware"
	"github.com/hugh/cloudguard/internal/api/validation"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
)

type AccountHandler struct {
	service *accounts.Service
	logger  *slog.Logger
}

func NewAccountHandler(service *accounts.Service, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: service, logger: logger}
}

// List handles GET /api/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	list, err := h.service.List(r.Context(), orgID)
	if err != nil {
		h.logger.Error("listing cloud accounts", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch accounts")
		return
	}

	if list == nil {
		list = []models.CloudAccount{}
	}
	writeJSON(w, http.StatusOK, dto.AccountListResponse{Accounts: list})
}

// Create handles POST /api/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req dto.CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if verr := validation.ValidateCloudAccount(req.Provider, req.AccountName, req.Credentials); verr != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: verr.Message, Details: verr.Details})
		return
	}

	name := validation.TruncateString(strings.TrimSpace(validation.SanitizeString(req.AccountName)), validation.MaxAccountNameLength)

	account, err := h.service.Create(r.Context(), orgID, accounts.CreateInput{
		Provider:    models.CloudProvider(req.Provider),
		AccountName: name,
		AccountID:   validation.SanitizeString(req.AccountID),
		Credentials: req.Credentials,
	})
	if err != nil {
		h.logger.Error("creating cloud account", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, dto.AccountResponse{
		Message: "Cloud account added successfully",
		Account: account,
	})
}

// Delete handles DELETE /api/accounts?id=
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	rawID := r.URL.Query().Get("id")
	if rawID == "" {
		writeError(w, http.StatusBadRequest, "Missing account ID")
		return
	}
	accountID, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	switch err := h.service.Delete(r.Context(), orgID, accountID); {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Cloud account deleted successfully"})
	case errors.Is(err, accounts.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, accounts.ErrForbidden):
		h.logger.Warn("cross-organization delete refused",
			"organization_id", orgID,
			"account_id", accountID,
			"user_id", middleware.GetUserID(r.Context()),
		)
		writeError(w, http.StatusForbidden, "Unauthorized to delete this account")
	default:
		h.logger.Error("deleting cloud account", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete account")
	}
}

// Test handles POST /api/accounts/{id}/test
func (h *AccountHandler) Test(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	account, err := h.service.Test(r.Context(), orgID, accountID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.AccountResponse{Message: "Credentials are valid", Account: account})
	case errors.Is(err, accounts.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, cloud.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "Credential validation failed")
	case errors.Is(err, accounts.ErrProviderUnsupported):
		writeError(w, http.StatusBadRequest, "Credential testing is not available for this provider")
	default:
		h.logger.Error("testing cloud account", "account_id", accountID, "error", err)
		writeError(w, http.StatusBadGateway, "Provider check failed")
	}
}
