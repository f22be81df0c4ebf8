package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/tasks"
)

var ErrInvalidRequest = errors.New("invalid scan request")

// Request is the job body the automation workflow posts to /scan.
// AccountID is the provider's own account number and is only echoed back.
// CloudAccountID keys the scan_results row; when it is absent a UUID-shaped
// AccountID is used instead.
type Request struct {
	ScanID         uuid.UUID            `json:"scan_id"`
	AccountID      string               `json:"account_id"`
	CloudAccountID uuid.UUID            `json:"cloud_account_id"`
	Provider       models.CloudProvider `json:"provider"`
	ScanType       models.ScanType      `json:"scan_type"`
	Credentials    json.RawMessage      `json:"credentials"`
}

// recordKey returns the cloud_accounts row the result belongs to.
func (r Request) recordKey() (uuid.UUID, bool) {
	if r.CloudAccountID != uuid.Nil {
		return r.CloudAccountID, true
	}
	id, err := uuid.Parse(r.AccountID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

type Result struct {
	ScanID         uuid.UUID             `json:"scan_id"`
	AccountID      string                `json:"account_id"`
	ScanType       models.ScanType       `json:"scan_type"`
	Status         models.ScanStatus     `json:"status"`
	Findings       []cloud.Finding       `json:"findings"`
	ScannedAt      time.Time             `json:"scanned_at"`
	SeverityCounts models.SeverityCounts `json:"severity_counts"`
	Error          string                `json:"error,omitempty"`
}

// ProviderScanner runs the checks for one provider account.
type ProviderScanner interface {
	Scan(ctx context.Context, scanType models.ScanType) ([]cloud.Finding, error)
}

// Factory builds a ProviderScanner from a credential document.
type Factory func(ctx context.Context, credentials json.RawMessage) (ProviderScanner, error)

// Service executes scans. Providers with a Factory get their checks run;
// providers with only a validator get a credential check and no findings.
type Service struct {
	factories  map[models.CloudProvider]Factory
	validators cloud.Registry
	enqueuer   tasks.Enqueuer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds the scan service. enqueuer may be nil, in which case
// results are only returned to the caller.
func NewService(factories map[models.CloudProvider]Factory, validators cloud.Registry, enqueuer tasks.Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		factories:  factories,
		validators: validators,
		enqueuer:   enqueuer,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if !req.Provider.Valid() {
		return nil, fmt.Errorf("%w: provider %q", ErrInvalidRequest, req.Provider)
	}
	if !req.ScanType.Valid() {
		return nil, fmt.Errorf("%w: scan type %q", ErrInvalidRequest, req.ScanType)
	}
	if len(req.Credentials) == 0 {
		return nil, fmt.Errorf("%w: credentials required", ErrInvalidRequest)
	}

	logger := s.logger.With("scan_id", req.ScanID, "provider", req.Provider, "scan_type", req.ScanType)
	logger.Info("scan started")

	result := &Result{
		ScanID:    req.ScanID,
		AccountID: req.AccountID,
		ScanType:  req.ScanType,
		Status:    models.ScanStatusCompleted,
		Findings:  []cloud.Finding{},
	}

	findings, err := s.scan(ctx, req)
	if err != nil {
		logger.Error("scan failed", "error", err)
		result.Status = models.ScanStatusFailed
		result.Error = err.Error()
	} else {
		result.Findings = findings
	}

	result.SeverityCounts = cloud.CountSeverities(result.Findings)
	result.ScannedAt = s.now().UTC()

	logger.Info("scan finished",
		"status", result.Status,
		"findings", len(result.Findings),
	)

	s.record(req, result)
	return result, nil
}

// scan fails only when the account cannot be scanned at all. Individual
// check errors are logged and the remaining findings kept.
func (s *Service) scan(ctx context.Context, req Request) ([]cloud.Finding, error) {
	if factory, ok := s.factories[req.Provider]; ok {
		ps, err := factory(ctx, req.Credentials)
		if err != nil {
			return nil, err
		}
		findings, err := ps.Scan(ctx, req.ScanType)
		if err != nil {
			s.logger.Warn("scan completed with check errors", "scan_id", req.ScanID, "error", err)
		}
		if findings == nil {
			findings = []cloud.Finding{}
		}
		return findings, nil
	}

	if v, ok := s.validators[req.Provider]; ok {
		if _, err := v.Validate(ctx, req.Credentials); err != nil {
			return nil, err
		}
	}
	return []cloud.Finding{}, nil
}

func (s *Service) record(req Request, result *Result) {
	if s.enqueuer == nil || result.ScanID == uuid.Nil {
		return
	}
	accountID, ok := req.recordKey()
	if !ok {
		s.logger.Warn("scan result not recorded: no cloud account id",
			"scan_id", result.ScanID,
			"account_id", req.AccountID,
		)
		return
	}

	task, err := tasks.NewRecordScanTask(tasks.RecordScanPayload{
		ScanID:         result.ScanID,
		CloudAccountID: accountID,
		ScanType:       result.ScanType,
		Status:         result.Status,
		Findings:       result.Findings,
		Error:          result.Error,
	})
	if err == nil {
		_, err = s.enqueuer.Enqueue(task)
	}
	if err != nil {
		s.logger.Error("failed to queue scan result", "scan_id", result.ScanID, "error", err)
	}
}
