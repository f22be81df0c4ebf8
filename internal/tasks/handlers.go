package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/notify"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Handler struct {
	db            *gorm.DB
	notifier      notify.Notifier
	enqueuer      Enqueuer
	reportBaseURL string
	logger        *slog.Logger
}

// NewHandler wires the task handlers. enqueuer may be nil, in which case
// recorded scans do not fan out notifications.
func NewHandler(db *gorm.DB, notifier notify.Notifier, enqueuer Enqueuer, reportBaseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		db:            db,
		notifier:      notifier,
		enqueuer:      enqueuer,
		reportBaseURL: strings.TrimRight(reportBaseURL, "/"),
		logger:        logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeRecordScan, h.HandleRecordScan)
	mux.HandleFunc(TypeScanSummary, h.HandleScanSummary)
	mux.HandleFunc(TypeSecurityAlert, h.HandleSecurityAlert)
}

// HandleRecordScan stores the scanner's results on the scan_results row and
// queues the chat notifications for completed scans.
func (h *Handler) HandleRecordScan(ctx context.Context, t *asynq.Task) error {
	var payload RecordScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Status != models.ScanStatusCompleted && payload.Status != models.ScanStatusFailed {
		return fmt.Errorf("scan %s: non-terminal status %q: %w", payload.ScanID, payload.Status, asynq.SkipRetry)
	}

	var account models.CloudAccount
	err := h.db.WithContext(ctx).Unscoped().
		Select("id", "account_name").
		First(&account, "id = ?", payload.CloudAccountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("cloud account %s: %w", payload.CloudAccountID, asynq.SkipRetry)
		}
		return fmt.Errorf("loading cloud account: %w", err)
	}

	findings := payload.Findings
	if findings == nil {
		findings = []cloud.Finding{}
	}
	findingsJSON, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encoding findings: %w", err)
	}
	recommendationsJSON, err := json.Marshal(recommendations(findings))
	if err != nil {
		return fmt.Errorf("encoding recommendations: %w", err)
	}
	counts := cloud.CountSeverities(findings)

	result := h.db.WithContext(ctx).
		Model(&models.ScanResult{}).
		Where("id = ? AND cloud_account_id = ? AND status IN ?", payload.ScanID, payload.CloudAccountID,
			[]models.ScanStatus{models.ScanStatusPending, models.ScanStatusRunning}).
		Updates(map[string]interface{}{
			"status":          payload.Status,
			"findings":        datatypes.JSON(findingsJSON),
			"recommendations": datatypes.JSON(recommendationsJSON),
			"severity_counts": datatypes.NewJSONType(counts),
		})
	if result.Error != nil {
		return fmt.Errorf("updating scan result: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return h.alreadyRecorded(ctx, payload)
	}

	h.logger.Info("recorded scan result",
		"scan_id", payload.ScanID,
		"status", payload.Status,
		"findings", len(findings),
		"error", payload.Error,
	)

	if payload.Status == models.ScanStatusCompleted {
		h.queueNotifications(payload, account.AccountName, counts)
	}
	return nil
}

// alreadyRecorded handles a record task whose row is no longer pending or
// running: a redelivered task, or a result arriving after the trigger was
// marked failed. The row is left as is and nothing is queued.
func (h *Handler) alreadyRecorded(ctx context.Context, payload RecordScanPayload) error {
	var existing models.ScanResult
	err := h.db.WithContext(ctx).
		Select("id", "status").
		First(&existing, "id = ? AND cloud_account_id = ?", payload.ScanID, payload.CloudAccountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("scan result %s: %w", payload.ScanID, asynq.SkipRetry)
		}
		return fmt.Errorf("loading scan result: %w", err)
	}

	h.logger.Warn("ignoring result for finished scan",
		"scan_id", payload.ScanID,
		"current_status", existing.Status,
		"reported_status", payload.Status,
	)
	return nil
}

// queueNotifications is best effort. A failed enqueue is logged; retrying
// the record task for it would duplicate the notifications that did go out.
func (h *Handler) queueNotifications(payload RecordScanPayload, accountName string, counts models.SeverityCounts) {
	if h.enqueuer == nil {
		return
	}

	summary, err := NewScanSummaryTask(ScanSummaryPayload{
		ScanID:      payload.ScanID,
		AccountName: accountName,
		ScanType:    payload.ScanType,
		Counts:      counts,
		ReportURL:   h.reportURL(payload),
	})
	if err == nil {
		_, err = h.enqueuer.Enqueue(summary)
	}
	if err != nil {
		h.logger.Error("failed to queue scan summary", "scan_id", payload.ScanID, "error", err)
	}

	for _, f := range payload.Findings {
		if f.Severity != models.SeverityCritical {
			continue
		}
		alert, err := NewSecurityAlertTask(SecurityAlertPayload{
			ScanID:       payload.ScanID,
			AccountName:  accountName,
			Severity:     f.Severity,
			Title:        f.Issue,
			Message:      f.Recommendation,
			ResourceType: f.ResourceType,
			ResourceID:   f.ResourceID,
		})
		if err == nil {
			_, err = h.enqueuer.Enqueue(alert)
		}
		if err != nil {
			h.logger.Error("failed to queue security alert",
				"scan_id", payload.ScanID,
				"resource_id", f.ResourceID,
				"error", err,
			)
		}
	}
}

func (h *Handler) reportURL(payload RecordScanPayload) string {
	if h.reportBaseURL == "" {
		return ""
	}
	return h.reportBaseURL + "/" + payload.ScanID.String()
}

func (h *Handler) HandleScanSummary(ctx context.Context, t *asynq.Task) error {
	var payload ScanSummaryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	return h.notifier.SendScanSummary(ctx, notify.ScanSummary{
		AccountName: payload.AccountName,
		ScanType:    scanTypeLabel(payload.ScanType),
		Counts:      payload.Counts,
		ReportURL:   payload.ReportURL,
	})
}

func (h *Handler) HandleSecurityAlert(ctx context.Context, t *asynq.Task) error {
	var payload SecurityAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	return h.notifier.SendAlert(ctx, notify.Alert{
		Title:        payload.Title,
		Message:      payload.Message,
		Severity:     payload.Severity,
		AccountName:  payload.AccountName,
		ResourceType: payload.ResourceType,
		ResourceID:   payload.ResourceID,
	})
}

// recommendations returns each distinct recommendation once, in finding order.
func recommendations(findings []cloud.Finding) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, f := range findings {
		if f.Recommendation == "" || seen[f.Recommendation] {
			continue
		}
		seen[f.Recommendation] = true
		out = append(out, f.Recommendation)
	}
	return out
}

func scanTypeLabel(t models.ScanType) string {
	s := string(t)
	if s == "" {
		return "Scan"
	}
	return strings.ToUpper(s[:1]) + s[1:] + " Scan"
}
