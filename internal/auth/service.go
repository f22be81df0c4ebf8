package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/database/models"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// Service resolves identities to local users on the application connection.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetUserByID returns ErrUserNotFound when the identity has not been
// provisioned yet.
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Organization").First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
