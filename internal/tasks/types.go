package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/pkg/queue"
)

// Task type names
const (
	TypeRecordScan    = "scan:record_result"
	TypeScanSummary   = "notify:scan_summary"
	TypeSecurityAlert = "notify:security_alert"
)

// RecordScanPayload carries a finished scan from the scanner service to the
// worker, which owns the database write.
type RecordScanPayload struct {
	ScanID         uuid.UUID         `json:"scan_id"`
	CloudAccountID uuid.UUID         `json:"cloud_account_id"`
	ScanType       models.ScanType   `json:"scan_type"`
	Status         models.ScanStatus `json:"status"`
	Findings       []cloud.Finding   `json:"findings"`
	Error          string            `json:"error,omitempty"`
}

func NewRecordScanTask(payload RecordScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRecordScan, data, asynq.Queue(queue.Default), asynq.MaxRetry(5)), nil
}

// ScanSummaryPayload is the digest posted to chat after a scan is recorded.
type ScanSummaryPayload struct {
	ScanID      uuid.UUID             `json:"scan_id"`
	AccountName string                `json:"account_name"`
	ScanType    models.ScanType       `json:"scan_type"`
	Counts      models.SeverityCounts `json:"counts"`
	ReportURL   string                `json:"report_url"`
}

func NewScanSummaryTask(payload ScanSummaryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeScanSummary, data, asynq.Queue(queue.Critical), asynq.MaxRetry(3)), nil
}

// SecurityAlertPayload is one critical finding relayed to chat.
type SecurityAlertPayload struct {
	ScanID       uuid.UUID       `json:"scan_id"`
	AccountName  string          `json:"account_name"`
	Severity     models.Severity `json:"severity"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
}

func NewSecurityAlertTask(payload SecurityAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSecurityAlert, data, asynq.Queue(queue.Critical), asynq.MaxRetry(3)), nil
}
