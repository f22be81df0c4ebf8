package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hugh/cloudguard/internal/database/models"
)

// ErrWebhookFailed is returned when Slack answers with a non-2xx status.
var ErrWebhookFailed = errors.New("slack webhook failed")

const (
	botName     = "CloudGuard Bot"
	botIcon     = ":shield:"
	footerText  = "CloudGuard Security Scanner"
	alertLayout = "02.01.2006, 15:04:05"
)

// Notifier delivers alert and summary messages to a chat channel.
type Notifier interface {
	SendAlert(ctx context.Context, alert Alert) error
	SendScanSummary(ctx context.Context, summary ScanSummary) error
	SendMessage(ctx context.Context, text string) error
}

// Config holds the Slack webhook settings.
type Config struct {
	WebhookURL string
	Channel    string
}

// Alert describes a single security event.
type Alert struct {
	Title        string
	Message      string
	Severity     models.Severity
	AccountName  string
	ResourceType string
	ResourceID   string
	Details      map[string]string
}

// ScanSummary describes a finished scan.
type ScanSummary struct {
	AccountName string
	ScanType    string
	Counts      models.SeverityCounts
	ReportURL   string
}

type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type action struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	URL   string `json:"url"`
	Style string `json:"style,omitempty"`
}

type attachment struct {
	Color   string   `json:"color"`
	Fields  []field  `json:"fields,omitempty"`
	Actions []action `json:"actions,omitempty"`
	Footer  string   `json:"footer"`
	TS      int64    `json:"ts"`
}

type message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username"`
	IconEmoji   string       `json:"icon_emoji"`
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// SlackNotifier posts messages to an incoming webhook. With no webhook
// configured every send is logged and skipped.
type SlackNotifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(cfg Config, client *http.Client, logger *slog.Logger) *SlackNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *SlackNotifier) Enabled() bool {
	return n.cfg.WebhookURL != ""
}

func (n *SlackNotifier) SendAlert(ctx context.Context, alert Alert) error {
	now := n.now()

	fields := []field{
		{Title: "Severity", Value: strings.ToUpper(string(alert.Severity)), Short: true},
		{Title: "Time", Value: now.Format(alertLayout), Short: true},
	}
	if alert.AccountName != "" {
		fields = append(fields, field{Title: "Account", Value: alert.AccountName, Short: true})
	}
	if alert.ResourceType != "" {
		fields = append(fields, field{Title: "Resource Type", Value: alert.ResourceType, Short: true})
	}
	if alert.ResourceID != "" {
		fields = append(fields, field{Title: "Resource ID", Value: "`" + alert.ResourceID + "`", Short: false})
	}

	keys := make([]string, 0, len(alert.Details))
	for k := range alert.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, field{Title: k, Value: alert.Details[k], Short: true})
	}
	fields = append(fields, field{Title: "Details", Value: alert.Message, Short: false})

	return n.post(ctx, message{
		Text: fmt.Sprintf("%s *%s*", severityEmoji(alert.Severity), alert.Title),
		Attachments: []attachment{{
			Color:  severityColor(alert.Severity),
			Fields: fields,
			Footer: footerText,
			TS:     now.Unix(),
		}},
	})
}

func (n *SlackNotifier) SendScanSummary(ctx context.Context, s ScanSummary) error {
	emoji, color := "✅", "good"
	switch {
	case s.Counts.Critical > 0:
		emoji, color = "🚨", "danger"
	case s.Counts.High > 0:
		emoji, color = "⚠️", "warning"
	}

	att := attachment{
		Color: color,
		Fields: []field{
			{Title: "Scan Type", Value: s.ScanType, Short: true},
			{Title: "Total Findings", Value: fmt.Sprint(s.Counts.Total()), Short: true},
			{Title: "🔴 Critical", Value: fmt.Sprint(s.Counts.Critical), Short: true},
			{Title: "🟠 High", Value: fmt.Sprint(s.Counts.High), Short: true},
			{Title: "🟡 Medium", Value: fmt.Sprint(s.Counts.Medium), Short: true},
			{Title: "🔵 Low", Value: fmt.Sprint(s.Counts.Low), Short: true},
		},
		Footer: footerText,
		TS:     n.now().Unix(),
	}
	if s.ReportURL != "" {
		att.Actions = []action{{Type: "button", Text: "📊 View Report", URL: s.ReportURL, Style: "primary"}}
	}

	return n.post(ctx, message{
		Text:        fmt.Sprintf("%s Scan completed for *%s*", emoji, s.AccountName),
		Attachments: []attachment{att},
	})
}

func (n *SlackNotifier) SendMessage(ctx context.Context, text string) error {
	return n.post(ctx, message{Text: text})
}

func (n *SlackNotifier) post(ctx context.Context, msg message) error {
	if !n.Enabled() {
		n.logger.Info("slack webhook not configured, skipping notification", "text", msg.Text)
		return nil
	}

	msg.Channel = n.cfg.Channel
	msg.Username = botName
	msg.IconEmoji = botIcon

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrWebhookFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func severityEmoji(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "🚨"
	case models.SeverityHigh:
		return "⚠️"
	case models.SeverityMedium:
		return "⚡"
	case models.SeverityLow:
		return "ℹ️"
	default:
		return "📌"
	}
}

func severityColor(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "#dc2626"
	case models.SeverityHigh:
		return "#ea580c"
	case models.SeverityMedium:
		return "#eab308"
	case models.SeverityLow:
		return "#3b82f6"
	default:
		return "#6b7280"
	}
}
