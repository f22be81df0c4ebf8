package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReportType string

const (
	ReportTypeDSGVO    ReportType = "dsgvo"
	ReportTypeISO27001 ReportType = "iso27001"
	ReportTypeSOC2     ReportType = "soc2"
)

type ReportStatus string

const (
	ReportStatusGenerating ReportStatus = "generating"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// ComplianceReport is schema only. Reports are produced outside this service.
type ComplianceReport struct {
	ID             uuid.UUID    `gorm:"type:uuid;primary_key" json:"id"`
	OrganizationID uuid.UUID    `gorm:"type:uuid;index;not null" json:"organization_id"`
	ReportType     ReportType   `gorm:"not null" json:"report_type"`
	Status         ReportStatus `gorm:"not null;default:'generating'" json:"status"`
	ReportURL      *string      `json:"report_url"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (ComplianceReport) TableName() string {
	return "compliance_reports"
}

func (r *ComplianceReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
