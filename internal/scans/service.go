package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/internal/workflow"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidScanType = errors.New("invalid scan type")
	ErrScanNotFound    = errors.New("scan result not found")
	ErrDispatchFailed  = errors.New("scan workflow dispatch failed")
)

// Dispatcher hands a scan job to the system that performs it.
type Dispatcher interface {
	Trigger(ctx context.Context, job workflow.ScanJob) error
}

// AccountSource resolves organization-scoped cloud accounts and their
// decrypted credentials.
type AccountSource interface {
	Get(ctx context.Context, orgID, accountID uuid.UUID) (*models.CloudAccount, error)
	Credentials(account *models.CloudAccount) (json.RawMessage, error)
	MarkScanned(ctx context.Context, accountID uuid.UUID, at time.Time) error
}

// Service records scan requests and forwards them to the automation
// workflow. Each call is one attempt; nothing is retried.
type Service struct {
	db         *gorm.DB
	accounts   AccountSource
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(db *gorm.DB, accounts AccountSource, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		accounts:   accounts,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Trigger creates a pending scan result and dispatches it. If the dispatch
// fails the result is marked failed and ErrDispatchFailed is returned along
// with the stored row.
func (s *Service) Trigger(ctx context.Context, orgID, accountID uuid.UUID, scanType models.ScanType) (*models.ScanResult, error) {
	if !scanType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScanType, scanType)
	}

	account, err := s.accounts.Get(ctx, orgID, accountID)
	if err != nil {
		return nil, err
	}

	creds, err := s.accounts.Credentials(account)
	if err != nil {
		return nil, err
	}

	scan := &models.ScanResult{
		CloudAccountID:  account.ID,
		ScanType:        scanType,
		Status:          models.ScanStatusPending,
		Findings:        datatypes.JSON(`{}`),
		Recommendations: datatypes.JSON(`{}`),
		SeverityCounts:  datatypes.NewJSONType(models.SeverityCounts{}),
	}
	if err := s.db.WithContext(ctx).Create(scan).Error; err != nil {
		return nil, fmt.Errorf("creating scan result: %w", err)
	}

	err = s.dispatcher.Trigger(ctx, workflow.ScanJob{
		ScanID:         scan.ID,
		CloudAccountID: account.ID,
		AccountID:      account.AccountID,
		Provider:       account.Provider,
		Credentials:    creds,
		ScanType:       scanType,
	})
	if err != nil {
		s.logger.Error("scan dispatch failed",
			"scan_id", scan.ID,
			"cloud_account_id", account.ID,
			"error", err,
		)
		// The request context may already be done; the status write must
		// still land.
		if uerr := s.setStatus(context.WithoutCancel(ctx), scan, models.ScanStatusFailed); uerr != nil {
			s.logger.Error("marking scan failed", "scan_id", scan.ID, "error", uerr)
		}
		return scan, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	if err := s.accounts.MarkScanned(ctx, account.ID, s.now()); err != nil {
		s.logger.Warn("updating last scan time", "cloud_account_id", account.ID, "error", err)
	}

	s.logger.Info("scan dispatched",
		"scan_id", scan.ID,
		"cloud_account_id", account.ID,
		"scan_type", scanType,
	)

	return scan, nil
}

func (s *Service) setStatus(ctx context.Context, scan *models.ScanResult, status models.ScanStatus) error {
	if err := s.db.WithContext(ctx).Model(scan).Update("status", status).Error; err != nil {
		return err
	}
	scan.Status = status
	return nil
}

const defaultListLimit = 20

// ListFilter narrows List. A nil CloudAccountID lists every account of the
// organization.
type ListFilter struct {
	CloudAccountID *uuid.UUID
	Limit          int
	Offset         int
}

// List returns the organization's scan results newest first and the total
// count before paging.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]models.ScanResult, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}

	scoped := func() *gorm.DB {
		q := s.db.WithContext(ctx).
			Model(&models.ScanResult{}).
			Joins("JOIN cloud_accounts ON cloud_accounts.id = scan_results.cloud_account_id").
			Where("cloud_accounts.organization_id = ? AND cloud_accounts.deleted_at IS NULL", orgID)
		if filter.CloudAccountID != nil {
			q = q.Where("scan_results.cloud_account_id = ?", *filter.CloudAccountID)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting scan results: %w", err)
	}

	var results []models.ScanResult
	if err := scoped().
		Select("scan_results.*").
		Order("scan_results.created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("listing scan results: %w", err)
	}

	return results, total, nil
}

// Get returns one scan result if its account belongs to the organization.
func (s *Service) Get(ctx context.Context, orgID, scanID uuid.UUID) (*models.ScanResult, error) {
	var result models.ScanResult
	err := s.db.WithContext(ctx).
		Joins("JOIN cloud_accounts ON cloud_accounts.id = scan_results.cloud_account_id").
		Select("scan_results.*").
		Where("scan_results.id = ? AND cloud_accounts.organization_id = ? AND cloud_accounts.deleted_at IS NULL", scanID, orgID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("loading scan result: %w", err)
	}
	return &result, nil
}
