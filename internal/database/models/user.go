package models

import "github.com/google/uuid"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is the local record of an identity-provider account. Its ID is the
// provider's subject id, so the primary key doubles as the one-row-per-identity
// constraint.
type User struct {
	Base
	Email          string    `gorm:"not null" json:"email"`
	FullName       string    `json:"full_name"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	Role           Role      `gorm:"not null;default:'member'" json:"role"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (User) TableName() string {
	return "users"
}
