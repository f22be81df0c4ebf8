package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/accounts"
	"github.com/hugh/cloudguard/internal/api/dto"
	"github.com/hugh/cloudguard/internal/api/middleware"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/scans"
)

type ScanHandler struct {
	service *scans.Service
	logger  *slog.Logger
}

func NewScanHandler(service *scans.Service, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{service: service, logger: logger}
}

// Trigger handles POST /api/scan
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req dto.TriggerScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.CloudAccountID == "" || req.ScanType == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	accountID, err := uuid.Parse(req.CloudAccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cloud account ID")
		return
	}

	scan, err := h.service.Trigger(r.Context(), orgID, accountID, models.ScanType(req.ScanType))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.TriggerScanResponse{
			Message: "Scan initiated successfully",
			ScanID:  scan.ID,
		})
	case errors.Is(err, scans.ErrInvalidScanType):
		writeError(w, http.StatusBadRequest, "Invalid scan type. Must be one of: security, cost, compliance")
	case errors.Is(err, accounts.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Cloud account not found")
	case errors.Is(err, scans.ErrDispatchFailed):
		h.logger.Error("scan workflow dispatch failed", "scan_id", scan.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to trigger scan workflow")
	default:
		h.logger.Error("creating scan", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create scan")
	}
}

// List handles GET /api/scan
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	params := dto.PaginationParams{
		Page:    parseInt(r.URL.Query().Get("page"), 1),
		PerPage: parseInt(r.URL.Query().Get("per_page"), 20),
	}
	params.Normalize()

	filter := scans.ListFilter{Limit: params.PerPage, Offset: params.Offset()}
	if raw := r.URL.Query().Get("cloudAccountId"); raw != "" {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cloud account ID")
			return
		}
		filter.CloudAccountID = &accountID
	}

	results, total, err := h.service.List(r.Context(), orgID, filter)
	if err != nil {
		h.logger.Error("listing scans", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch scans")
		return
	}

	writeJSON(w, http.StatusOK, params.Response(results, total))
}

// Get handles GET /api/scan/{id}
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	scanID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scan ID")
		return
	}

	result, err := h.service.Get(r.Context(), orgID, scanID)
	if err != nil {
		if errors.Is(err, scans.ErrScanNotFound) {
			writeError(w, http.StatusNotFound, "Scan not found")
			return
		}
		h.logger.Error("loading scan", "scan_id", scanID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch scan")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
