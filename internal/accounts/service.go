package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound     = errors.New("cloud account not found")
	ErrForbidden           = errors.New("cloud account belongs to another organization")
	ErrProviderUnsupported = errors.New("no credential validator for provider")
)

// CreateInput is an already validated create request.
type CreateInput struct {
	Provider    models.CloudProvider
	AccountName string
	AccountID   string
	Credentials map[string]any
}

// Service manages an organization's cloud accounts. Credentials are sealed
// with the encryptor before they reach the database.
type Service struct {
	db         *gorm.DB
	encryptor  *crypto.Encryptor
	validators cloud.Registry
	logger     *slog.Logger
}

func NewService(db *gorm.DB, encryptor *crypto.Encryptor, validators cloud.Registry, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		encryptor:  encryptor,
		validators: validators,
		logger:     logger,
	}
}

// List returns the organization's accounts, newest first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]models.CloudAccount, error) {
	var accounts []models.CloudAccount
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("listing cloud accounts: %w", err)
	}
	return accounts, nil
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreateInput) (*models.CloudAccount, error) {
	sealed, err := s.encryptor.SealJSON(in.Credentials)
	if err != nil {
		return nil, fmt.Errorf("sealing credentials: %w", err)
	}

	accountID := strings.TrimSpace(in.AccountID)
	if accountID == "" {
		accountID = models.UnknownAccountID
	}

	account := &models.CloudAccount{
		OrganizationID: orgID,
		Provider:       in.Provider,
		AccountName:    in.AccountName,
		AccountID:      accountID,
		Credentials:    sealed,
		IsActive:       true,
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, fmt.Errorf("saving cloud account: %w", err)
	}

	s.logger.Info("created cloud account",
		"id", account.ID,
		"organization_id", orgID,
		"provider", in.Provider,
	)

	return account, nil
}

// Get loads an account scoped to the organization. Accounts of other
// organizations are reported as ErrAccountNotFound.
func (s *Service) Get(ctx context.Context, orgID, accountID uuid.UUID) (*models.CloudAccount, error) {
	var account models.CloudAccount
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", accountID, orgID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("loading cloud account: %w", err)
	}
	return &account, nil
}

// Delete removes an account. A missing row is ErrAccountNotFound, a row
// owned by another organization is ErrForbidden and is left untouched.
func (s *Service) Delete(ctx context.Context, orgID, accountID uuid.UUID) error {
	var owner struct {
		OrganizationID uuid.UUID
	}
	err := s.db.WithContext(ctx).
		Model(&models.CloudAccount{}).
		Select("organization_id").
		Where("id = ?", accountID).
		Take(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("loading cloud account owner: %w", err)
	}
	if owner.OrganizationID != orgID {
		return ErrForbidden
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", accountID, orgID).
		Delete(&models.CloudAccount{})
	if result.Error != nil {
		return fmt.Errorf("deleting cloud account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	s.logger.Info("deleted cloud account", "id", accountID, "organization_id", orgID)
	return nil
}

// Credentials returns the decrypted credential document.
func (s *Service) Credentials(account *models.CloudAccount) (json.RawMessage, error) {
	raw, err := s.encryptor.OpenJSON(account.Credentials)
	if err != nil {
		return nil, fmt.Errorf("opening credentials for account %s: %w", account.ID, err)
	}
	return raw, nil
}

// MarkScanned stamps last_scan_at.
func (s *Service) MarkScanned(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.CloudAccount{}).
		Where("id = ?", accountID).
		Update("last_scan_at", at).Error
}

// Test checks the stored credentials against the provider. When the
// provider reports an account id and none is stored yet, it is saved.
func (s *Service) Test(ctx context.Context, orgID, accountID uuid.UUID) (*models.CloudAccount, error) {
	account, err := s.Get(ctx, orgID, accountID)
	if err != nil {
		return nil, err
	}

	validator, ok := s.validators[account.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnsupported, account.Provider)
	}

	raw, err := s.Credentials(account)
	if err != nil {
		return nil, err
	}

	providerID, err := validator.Validate(ctx, raw)
	if err != nil {
		s.logger.Warn("credential test failed",
			"id", account.ID,
			"provider", account.Provider,
			"error", err,
		)
		return nil, err
	}

	if providerID != "" && account.AccountID == models.UnknownAccountID {
		if err := s.db.WithContext(ctx).Model(account).Update("account_id", providerID).Error; err != nil {
			return nil, fmt.Errorf("saving provider account id: %w", err)
		}
		account.AccountID = providerID
	}

	return account, nil
}
