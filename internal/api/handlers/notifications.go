package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hugh/cloudguard/internal/api/dto"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/notify"
)

const (
	notificationSecurityAlert = "security_alert"
	notificationScanComplete  = "scan_complete"
	notificationCostAlert     = "cost_alert"
	notificationTest          = "test"
)

type NotificationHandler struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewNotificationHandler(notifier notify.Notifier, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, logger: logger}
}

// Usage handles GET /api/notifications/slack
func (h *NotificationHandler) Usage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.NotificationUsage{
		Message: "Slack notification endpoint",
		Usage:   "POST /api/notifications/slack with { type, message }",
		Types: []string{
			notificationSecurityAlert,
			notificationScanComplete,
			notificationCostAlert,
			notificationTest,
		},
	})
}

// SendSlack handles POST /api/notifications/slack. An empty body sends the
// test message.
func (h *NotificationHandler) SendSlack(w http.ResponseWriter, r *http.Request) {
	var req dto.SlackNotificationRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	var err error

	switch req.Type {
	case notificationSecurityAlert:
		msg := req.Message
		if msg == "" {
			msg = "Public S3 bucket detected with sensitive data"
		}
		err = h.notifier.SendAlert(ctx, notify.Alert{
			Title:        "Security Alert Detected",
			Message:      msg,
			Severity:     models.SeverityCritical,
			AccountName:  "AWS Production",
			ResourceType: "S3 Bucket",
			ResourceID:   "s3-bucket-public-123",
		})
	case notificationScanComplete:
		err = h.notifier.SendScanSummary(ctx, notify.ScanSummary{
			AccountName: "AWS Production",
			ScanType:    "Security Scan",
			Counts:      models.SeverityCounts{Critical: 2, High: 5, Medium: 12, Low: 23},
			ReportURL:   "https://app.cloudguard.io/reports/123",
		})
	case notificationCostAlert:
		err = h.notifier.SendAlert(ctx, notify.Alert{
			Title:    "Cost Threshold Exceeded",
			Message:  "Your AWS costs have exceeded the monthly budget by 20%",
			Severity: models.SeverityHigh,
			Details: map[string]string{
				"current_spend": "€5,244",
				"budget":        "€4,000",
				"overage":       "€1,244",
			},
		})
	default:
		err = h.notifier.SendAlert(ctx, notify.Alert{
			Title:    "Test Alert from CloudGuard",
			Message:  "This is a test notification from CloudGuard",
			Severity: models.SeverityLow,
		})
	}

	if err != nil {
		h.logger.Error("sending slack notification", "type", req.Type, "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.NotificationResponse{
			Success: false,
			Message: "Failed to send Slack notification",
		})
		return
	}

	writeJSON(w, http.StatusOK, dto.NotificationResponse{
		Success: true,
		Message: "Slack notification sent successfully",
	})
}
