package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/notify"
	"github.com/hugh/cloudguard/internal/testutil"
	"github.com/hugh/cloudguard/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	alerts    []notify.Alert
	summaries []notify.ScanSummary
	err       error
}

func (n *fakeNotifier) SendAlert(_ context.Context, a notify.Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func (n *fakeNotifier) SendScanSummary(_ context.Context, s notify.ScanSummary) error {
	n.summaries = append(n.summaries, s)
	return n.err
}

func (n *fakeNotifier) SendMessage(context.Context, string) error { return n.err }

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (e *fakeEnqueuer) types() []string {
	out := make([]string, len(e.tasks))
	for i, task := range e.tasks {
		out[i] = task.Type()
	}
	return out
}

var sampleFindings = []cloud.Finding{
	{Type: "s3_public_access", Severity: models.SeverityCritical, ResourceID: "customer-data", ResourceType: "S3 Bucket",
		Issue: "S3 bucket grants access to AllUsers", Recommendation: "Remove public ACL grants"},
	{Type: "ebs_unencrypted", Severity: models.SeverityMedium, ResourceID: "vol-1", ResourceType: "EBS Volume",
		Issue: "EBS volume is not encrypted", Recommendation: "Enable EBS encryption"},
	{Type: "ebs_unencrypted", Severity: models.SeverityMedium, ResourceID: "vol-2", ResourceType: "EBS Volume",
		Issue: "EBS volume is not encrypted", Recommendation: "Enable EBS encryption"},
}

type fixture struct {
	ts       *testutil.TestSetup
	account  *models.CloudAccount
	scan     *models.ScanResult
	notifier *fakeNotifier
	enqueuer *fakeEnqueuer
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ts := testutil.NewTestContext(t)
	account := testutil.CreateTestCloudAccount(t, ts.DB, ts.Encryptor, ts.Org.ID, models.ProviderAWS, "Production", nil)
	scan := testutil.CreateTestScanResult(t, ts.DB, account.ID, models.ScanTypeSecurity, models.ScanStatusPending)
	n := &fakeNotifier{}
	e := &fakeEnqueuer{}
	return &fixture{
		ts:       ts,
		account:  account,
		scan:     scan,
		notifier: n,
		enqueuer: e,
		handler:  NewHandler(ts.DB, n, e, "https://app.cloudguard.example/reports/", util.Discard()),
	}
}

func (f *fixture) recordTask(t *testing.T, status models.ScanStatus, findings []cloud.Finding) *asynq.Task {
	t.Helper()
	task, err := NewRecordScanTask(RecordScanPayload{
		ScanID:         f.scan.ID,
		CloudAccountID: f.account.ID,
		ScanType:       models.ScanTypeSecurity,
		Status:         status,
		Findings:       findings,
	})
	require.NoError(t, err)
	return task
}

func TestHandleRecordScan(t *testing.T) {
	f := newFixture(t)

	err := f.handler.HandleRecordScan(context.Background(), f.recordTask(t, models.ScanStatusCompleted, sampleFindings))
	require.NoError(t, err)

	var stored models.ScanResult
	require.NoError(t, f.ts.DB.First(&stored, "id = ?", f.scan.ID).Error)
	assert.Equal(t, models.ScanStatusCompleted, stored.Status)
	assert.Equal(t, models.SeverityCounts{Critical: 1, Medium: 2}, stored.SeverityCounts.Data())
	assert.JSONEq(t, `["Remove public ACL grants","Enable EBS encryption"]`, string(stored.Recommendations))

	var findings []cloud.Finding
	require.NoError(t, json.Unmarshal(stored.Findings, &findings))
	assert.Equal(t, sampleFindings, findings)

	assert.Equal(t, []string{TypeScanSummary, TypeSecurityAlert}, f.enqueuer.types())

	var summary ScanSummaryPayload
	require.NoError(t, json.Unmarshal(f.enqueuer.tasks[0].Payload(), &summary))
	assert.Equal(t, "Production", summary.AccountName)
	assert.Equal(t, "https://app.cloudguard.example/reports/"+f.scan.ID.String(), summary.ReportURL)
	assert.Equal(t, 1, summary.Counts.Critical)

	var alert SecurityAlertPayload
	require.NoError(t, json.Unmarshal(f.enqueuer.tasks[1].Payload(), &alert))
	assert.Equal(t, "customer-data", alert.ResourceID)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestHandleRecordScan_Failed(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.HandleRecordScan(context.Background(), f.recordTask(t, models.ScanStatusFailed, nil)))

	var stored models.ScanResult
	require.NoError(t, f.ts.DB.First(&stored, "id = ?", f.scan.ID).Error)
	assert.Equal(t, models.ScanStatusFailed, stored.Status)
	assert.JSONEq(t, `[]`, string(stored.Findings))
	assert.Empty(t, f.enqueuer.tasks)
}

func TestHandleRecordScan_EnqueueFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.enqueuer.err = errors.New("redis down")

	err := f.handler.HandleRecordScan(context.Background(), f.recordTask(t, models.ScanStatusCompleted, sampleFindings))
	assert.NoError(t, err)
}

func TestHandleRecordScan_SkipRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.handler.HandleRecordScan(ctx, asynq.NewTask(TypeRecordScan, []byte("invalid json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "unmarshal payload")

	err = f.handler.HandleRecordScan(ctx, f.recordTask(t, models.ScanStatusRunning, nil))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewRecordScanTask(RecordScanPayload{
		ScanID:         uuid.New(),
		CloudAccountID: f.account.ID,
		Status:         models.ScanStatusCompleted,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, f.handler.HandleRecordScan(ctx, task), asynq.SkipRetry)

	task, err = NewRecordScanTask(RecordScanPayload{
		ScanID:         f.scan.ID,
		CloudAccountID: uuid.New(),
		Status:         models.ScanStatusCompleted,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, f.handler.HandleRecordScan(ctx, task), asynq.SkipRetry)
}

func TestHandleRecordScan_FinishedRowIsLeftAlone(t *testing.T) {
	tests := []struct {
		name    string
		current models.ScanStatus
	}{
		{"marked failed by trigger", models.ScanStatusFailed},
		{"already completed", models.ScanStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.ts.DB.Model(&models.ScanResult{}).
				Where("id = ?", f.scan.ID).
				Update("status", tt.current).Error)

			err := f.handler.HandleRecordScan(context.Background(), f.recordTask(t, models.ScanStatusCompleted, sampleFindings))
			require.NoError(t, err)

			var stored models.ScanResult
			require.NoError(t, f.ts.DB.First(&stored, "id = ?", f.scan.ID).Error)
			assert.Equal(t, tt.current, stored.Status)
			assert.Empty(t, f.enqueuer.tasks)
		})
	}
}

func TestHandleRecordScan_Redelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.recordTask(t, models.ScanStatusCompleted, sampleFindings)

	require.NoError(t, f.handler.HandleRecordScan(ctx, task))
	require.NoError(t, f.handler.HandleRecordScan(ctx, task))

	assert.Equal(t, []string{TypeScanSummary, TypeSecurityAlert}, f.enqueuer.types())
}

func TestHandleScanSummary(t *testing.T) {
	f := newFixture(t)

	task, err := NewScanSummaryTask(ScanSummaryPayload{
		ScanID:      f.scan.ID,
		AccountName: "Production",
		ScanType:    models.ScanTypeSecurity,
		Counts:      models.SeverityCounts{High: 2},
		ReportURL:   "https://example/r/1",
	})
	require.NoError(t, err)

	require.NoError(t, f.handler.HandleScanSummary(context.Background(), task))
	require.Len(t, f.notifier.summaries, 1)
	got := f.notifier.summaries[0]
	assert.Equal(t, "Security Scan", got.ScanType)
	assert.Equal(t, 2, got.Counts.High)
	assert.Equal(t, "https://example/r/1", got.ReportURL)
}

func TestHandleSecurityAlert(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = notify.ErrWebhookFailed

	task, err := NewSecurityAlertTask(SecurityAlertPayload{
		Title:      "Root account without MFA",
		Severity:   models.SeverityCritical,
		ResourceID: "root",
	})
	require.NoError(t, err)

	err = f.handler.HandleSecurityAlert(context.Background(), task)
	assert.ErrorIs(t, err, notify.ErrWebhookFailed, "delivery errors are returned so asynq retries")
	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, "root", f.notifier.alerts[0].ResourceID)

	err = f.handler.HandleSecurityAlert(context.Background(), asynq.NewTask(TypeSecurityAlert, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestScanTypeLabel(t *testing.T) {
	assert.Equal(t, "Security Scan", scanTypeLabel(models.ScanTypeSecurity))
	assert.Equal(t, "Compliance Scan", scanTypeLabel(models.ScanTypeCompliance))
	assert.Equal(t, "Scan", scanTypeLabel(""))
}

func TestRegisterHandlers(t *testing.T) {
	f := newFixture(t)
	mux := asynq.NewServeMux()

	assert.NotPanics(t, func() {
		f.handler.RegisterHandlers(mux)
	})
}
