package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/database/models"
	"gorm.io/gorm"
)

var slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)

// Profile is the organization and display name derived for a new identity.
type Profile struct {
	FullName string
	Company  string
	Slug     string
}

// DeriveProfile falls back to the email local part for the name and the email
// domain for the company. The slug is suffixed with the first eight characters
// of the identity id.
func DeriveProfile(id Identity) Profile {
	local, domain, _ := strings.Cut(id.Email, "@")

	fullName := firstNonEmpty(id.Metadata.FullName, local, "User")
	company := firstNonEmpty(id.Metadata.Company, domain, "Default Organization")
	slug := slugSeparator.ReplaceAllString(strings.ToLower(company), "-") + "-" + id.ID.String()[:8]

	return Profile{FullName: fullName, Company: company, Slug: slug}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Provisioner creates the Organization and owner User for an identity on its
// first authenticated request. It holds the elevated connection and must not
// be handed to any other component.
type Provisioner struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewProvisioner(serviceDB *gorm.DB, logger *slog.Logger) *Provisioner {
	return &Provisioner{db: serviceDB, logger: logger}
}

// Ensure returns the User for id, creating it with a fresh Organization when
// none exists. created is true only for the call that performed the insert.
// Both rows are written in one transaction, so a losing concurrent call rolls
// back its Organization and returns the winner's User.
func (p *Provisioner) Ensure(ctx context.Context, id Identity) (*models.User, bool, error) {
	existing, err := p.lookup(ctx, id.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, fmt.Errorf("looking up user: %w", err)
	}

	profile := DeriveProfile(id)
	org := &models.Organization{Name: profile.Company, Slug: profile.Slug}
	user := &models.User{
		Base:     models.Base{ID: id.ID},
		Email:    id.Email,
		FullName: profile.FullName,
		Role:     models.RoleOwner,
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return fmt.Errorf("%w: %w", ErrOrgCreation, err)
		}
		user.OrganizationID = org.ID
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("%w: %w", ErrUserCreation, err)
		}
		return nil
	})
	if err != nil {
		if winner, lookupErr := p.lookup(ctx, id.ID); lookupErr == nil {
			p.logger.Info("provisioning lost race to concurrent request", "user_id", id.ID, "error", err)
			return winner, false, nil
		}
		return nil, false, err
	}

	p.logger.Info("provisioned account",
		"user_id", user.ID,
		"organization_id", org.ID,
		"slug", org.Slug,
	)

	user.Organization = org
	return user, true, nil
}

func (p *Provisioner) lookup(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := p.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
