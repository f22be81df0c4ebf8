package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/database/models"
)

// TokenVerifier turns a raw session token into an Identity.
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// UserResolver looks up the local User for an identity.
type UserResolver interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AccountProvisioner performs first-login setup.
type AccountProvisioner interface {
	Ensure(ctx context.Context, id Identity) (*models.User, bool, error)
}

// Compile-time interface satisfaction checks
var (
	_ TokenVerifier      = (*SessionVerifier)(nil)
	_ UserResolver       = (*Service)(nil)
	_ AccountProvisioner = (*Provisioner)(nil)
)
