package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob() ScanJob {
	return ScanJob{
		ScanID:         uuid.New(),
		CloudAccountID: uuid.New(),
		AccountID:      "123456789012",
		Provider:       models.ProviderAWS,
		Credentials:    json.RawMessage(`{"access_key":"AKIA","secret_key":"s"}`),
		ScanType:       models.ScanTypeSecurity,
	}
}

func TestClient_Trigger(t *testing.T) {
	job := testJob()

	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).Trigger(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, job.ScanID.String(), received["scan_id"])
	assert.Equal(t, job.CloudAccountID.String(), received["cloud_account_id"])
	assert.Equal(t, "123456789012", received["account_id"])
	assert.Equal(t, "aws", received["provider"])
	assert.Equal(t, "security", received["scan_type"])
	assert.Equal(t, map[string]any{"access_key": "AKIA", "secret_key": "s"}, received["credentials"])
}

func TestClient_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).Trigger(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrWebhookRejected)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, time.Second).Trigger(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrWebhookUnreachable)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	err := NewClient(srv.URL, 50*time.Millisecond).Trigger(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrWebhookTimeout)
}
