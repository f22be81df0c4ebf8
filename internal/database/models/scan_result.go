package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

type ScanType string

const (
	ScanTypeSecurity   ScanType = "security"
	ScanTypeCost       ScanType = "cost"
	ScanTypeCompliance ScanType = "compliance"
)

func (t ScanType) Valid() bool {
	switch t {
	case ScanTypeSecurity, ScanTypeCost, ScanTypeCompliance:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add increments the bucket for s. Unknown severities are ignored.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	}
}

func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// ScanResult rows are append-only history, so there is no soft delete.
type ScanResult struct {
	ID              uuid.UUID                          `gorm:"type:uuid;primary_key" json:"id"`
	CloudAccountID  uuid.UUID                          `gorm:"type:uuid;index;not null" json:"cloud_account_id"`
	ScanType        ScanType                           `gorm:"not null" json:"scan_type"`
	Status          ScanStatus                         `gorm:"not null;index;default:'pending'" json:"status"`
	Findings        datatypes.JSON                     `json:"findings"`
	Recommendations datatypes.JSON                     `json:"recommendations"`
	SeverityCounts  datatypes.JSONType[SeverityCounts] `json:"severity_counts"`
	CreatedAt       time.Time                          `json:"created_at"`

	// Relationships
	CloudAccount *CloudAccount `gorm:"foreignKey:CloudAccountID" json:"-"`
}

func (ScanResult) TableName() string {
	return "scan_results"
}

func (s *ScanResult) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
