package models

import (
	"time"

	"github.com/google/uuid"
)

type CloudProvider string

const (
	ProviderAWS   CloudProvider = "aws"
	ProviderAzure CloudProvider = "azure"
	ProviderGCP   CloudProvider = "gcp"
)

func (p CloudProvider) Valid() bool {
	switch p {
	case ProviderAWS, ProviderAzure, ProviderGCP:
		return true
	}
	return false
}

const UnknownAccountID = "unknown"

type CloudAccount struct {
	Base
	OrganizationID uuid.UUID     `gorm:"type:uuid;index;not null" json:"organization_id"`
	Provider       CloudProvider `gorm:"not null" json:"provider"`
	AccountName    string        `gorm:"not null" json:"account_name"`
	AccountID      string        `gorm:"not null;default:'unknown'" json:"account_id"`

	// age-encrypted JSON credential document, never serialized
	Credentials []byte `gorm:"column:credentials;type:bytea;not null" json:"-"`

	IsActive   bool       `gorm:"default:true" json:"is_active"`
	LastScanAt *time.Time `json:"last_scan_at"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	ScanResults  []ScanResult  `gorm:"foreignKey:CloudAccountID" json:"-"`
}

func (CloudAccount) TableName() string {
	return "cloud_accounts"
}
