package handlers_test

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/testutil"
	"github.com/hugh/cloudguard/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWebhook struct {
	mu     sync.Mutex
	jobs   []workflow.ScanJob
	status int
}

func (h *recordingWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var job workflow.ScanJob
	_ = json.Unmarshal(body, &job)

	h.mu.Lock()
	h.jobs = append(h.jobs, job)
	h.mu.Unlock()

	status := h.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func TestScanHandler_Trigger(t *testing.T) {
	webhook := &recordingWebhook{}
	env := newTestEnv(t, webhook)
	account := testutil.CreateTestCloudAccount(t, env.DB, env.Encryptor, env.Org.ID, models.ProviderAWS, "Production", map[string]string{"access_key": "AKIA", "secret_key": "s3cr3t"})

	body := map[string]string{"cloudAccountId": account.ID.String(), "scanType": "security"}
	rr := env.do(testutil.AuthenticatedRequest(t, http.MethodPost, "/api/scan", body, env.Token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Message string    `json:"message"`
		ScanID  uuid.UUID `json:"scan_id"`
	}
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, "Scan initiated successfully", resp.Message)

	var scan models.ScanResult
	require.NoError(t, env.DB.First(&scan, "id = ?", resp.ScanID).Error)
	assert.Equal(t, models.ScanStatusPending, scan.Status)
	assert.Equal(t, models.ScanTypeSecurity, scan.ScanType)

	require.Len(t, webhook.jobs, 1)
	job := webhook.jobs[0]
	assert.Equal(t, resp.ScanID, job.ScanID)
	assert.Equal(t, account.ID, job.CloudAccountID)
	assert.Equal(t, models.ProviderAWS, job.Provider)
	assert.JSONEq(t, `{"access_key":"AKIA","secret_key":"s3cr3t"}`, string(job.Credentials))

	var stored models.CloudAccount
	require.NoError(t, env.DB.First(&stored, "id = ?", account.ID).Error)
	assert.NotNil(t, stored.LastScanAt)
}

func TestScanHandler_TriggerValidation(t *testing.T) {
	webhook := &recordingWebhook{}
	env := newTestEnv(t, webhook)
	account := testutil.CreateTestCloudAccount(t, env.DB, env.Encryptor, env.Org.ID, models.ProviderAWS, "Production", map[string]string{"access_key": "a", "secret_key": "b"})

	otherUser, _ := env.AddOtherOrgUser(t)
	foreign := testutil.CreateTestCloudAccount(t, env.DB, env.Encryptor, otherUser.OrganizationID, models.ProviderAWS, "Foreign", map[string]string{"access_key": "a", "secret_key": "b"})

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantError  string
	}{
		{"missing account", map[string]string{"scanType": "security"}, http.StatusBadRequest, "Missing required fields"},
		{"missing type", map[string]string{"cloudAccountId": account.ID.String()}, http.StatusBadRequest, "Missing required fields"},
		{"malformed account id", map[string]string{"cloudAccountId": "abc", "scanType": "security"}, http.StatusBadRequest, "Invalid cloud account ID"},
		{"invalid type", map[string]string{"cloudAccountId": account.ID.String(), "scanType": "deep"}, http.StatusBadRequest, "Invalid scan type. Must be one of: security, cost, compliance"},
		{"unknown account", map[string]string{"cloudAccountId": uuid.NewString(), "scanType": "cost"}, http.StatusNotFound, "Cloud account not found"},
		{"other organization", map[string]string{"cloudAccountId": foreign.ID.String(), "scanType": "cost"}, http.StatusNotFound, "Cloud account not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(testutil.AuthenticatedRequest(t, http.MethodPost, "/api/scan", tt.body, env.Token))
			assert.Equal(t, tt.wantStatus, rr.Code)

			var resp struct {
				Error string `json:"error"`
			}
			testutil.ParseJSONResponse(t, rr, &resp)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}

	var n int64
	require.NoError(t, env.DB.Model(&models.ScanResult{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, webhook.jobs)
}

func TestScanHandler_TriggerWebhookFailure(t *testing.T) {
	env := newTestEnv(t, &recordingWebhook{status: http.StatusInternalServerError})
	account := testutil.CreateTestCloudAccount(t, env.DB, env.Encryptor, env.Org.ID, models.ProviderAWS, "Production", map[string]string{"access_key": "a", "secret_key": "b"})

	body := map[string]string{"cloudAccountId": account.ID.String(), "scanType": "compliance"}
	rr := env.do(testutil.AuthenticatedRequest(t, http.MethodPost, "/api/scan", body, env.Token))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Failed to trigger scan workflow"}`, rr.Body.String())

	var scans []models.ScanResult
	require.NoError(t, env.DB.Find(&scans).Error)
	require.Len(t, scans, 1)
	assert.Equal(t, models.ScanStatusFailed, scans[0].Status)
}

func TestScanHandler_List(t *testing.T) {
	env := newTestEnv(t, acceptWebhook())
	prod := testutil.CreateTestCloudAccount(t, env.DB, env.Encryptor, env.Org.ID, models.ProviderAWS, "Production", map[string]string{"access_key": "a", "secret_key": "b"})
	staging := testutil.CreateTestCloudAccount(t, env.DB, env.Encryptor, env.Org.ID, models.ProviderAWS, "Staging", map[string]string{"access_key": "a", "secret_key": "b"})

	for i := 0; i < 3; i++ {
		testutil.CreateTestScanResult(t, env.DB, prod.ID, models.ScanTypeSecurity, models.ScanStatusCompleted)
	}
	testutil.CreateTestScanResult(t, env.DB, staging.ID, models.ScanTypeCost, models.ScanStatusPending)

	otherUser, _ := env.AddOtherOrgUser(t)
	foreign := testutil.CreateTestCloudAccount(t, env.DB, env.Encryptor, otherUser.OrganizationID, models.ProviderAWS, "Foreign", map[string]string{"access_key": "a", "secret_key": "b"})
	testutil.CreateTestScanResult(t, env.DB, foreign.ID, models.ScanTypeSecurity, models.ScanStatusCompleted)

	tests := []struct {
		name      string
		query     string
		wantLen   int
		wantTotal int64
		wantPages int
	}{
		{"all scans", "", 4, 4, 1},
		{"filtered by account", "?cloudAccountId=" + prod.ID.String(), 3, 3, 1},
		{"paged", "?page=2&per_page=3", 1, 4, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(testutil.AuthenticatedRequest(t, http.MethodGet, "/api/scan"+tt.query, nil, env.Token))
			require.Equal(t, http.StatusOK, rr.Code)

			var resp struct {
				Data       []models.ScanResult `json:"data"`
				Total      int64               `json:"total"`
				TotalPages int                 `json:"total_pages"`
			}
			testutil.ParseJSONResponse(t, rr, &resp)
			assert.Len(t, resp.Data, tt.wantLen)
			assert.Equal(t, tt.wantTotal, resp.Total)
			assert.Equal(t, tt.wantPages, resp.TotalPages)
		})
	}
}

func TestScanHandler_Get(t *testing.T) {
	env := newTestEnv(t, acceptWebhook())
	account := testutil.CreateTestCloudAccount(t, env.DB, env.Encryptor, env.Org.ID, models.ProviderAWS, "Production", map[string]string{"access_key": "a", "secret_key": "b"})
	scan := testutil.CreateTestScanResult(t, env.DB, account.ID, models.ScanTypeSecurity, models.ScanStatusCompleted)
	_, otherToken := env.AddOtherOrgUser(t)

	rr := env.do(testutil.AuthenticatedRequest(t, http.MethodGet, "/api/scan/"+scan.ID.String(), nil, env.Token))
	require.Equal(t, http.StatusOK, rr.Code)

	var got models.ScanResult
	testutil.ParseJSONResponse(t, rr, &got)
	assert.Equal(t, scan.ID, got.ID)

	rr = env.do(testutil.AuthenticatedRequest(t, http.MethodGet, "/api/scan/"+scan.ID.String(), nil, otherToken))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(testutil.AuthenticatedRequest(t, http.MethodGet, "/api/scan/nope", nil, env.Token))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
