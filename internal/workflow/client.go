package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/database/models"
)

// Sentinel errors for automation webhook failures.
var (
	ErrWebhookUnreachable = errors.New("automation webhook unreachable")
	ErrWebhookTimeout     = errors.New("automation webhook timeout")
	ErrWebhookRejected    = errors.New("automation webhook rejected job")
)

// ScanJob is the body POSTed to the automation webhook. Credentials are the
// decrypted credential document; the job must never be logged whole.
type ScanJob struct {
	ScanID         uuid.UUID            `json:"scan_id"`
	CloudAccountID uuid.UUID            `json:"cloud_account_id"`
	AccountID      string               `json:"account_id"`
	Provider       models.CloudProvider `json:"provider"`
	Credentials    json.RawMessage      `json:"credentials"`
	ScanType       models.ScanType      `json:"scan_type"`
}

// Client forwards scan jobs to the external workflow that performs them.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Trigger delivers job once. There is no retry; a non-2xx response is
// ErrWebhookRejected.
func (c *Client) Trigger(ctx context.Context, job ScanJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding scan job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	}
	return nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrWebhookTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrWebhookTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrWebhookUnreachable, err)
}
