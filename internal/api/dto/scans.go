package dto

import "github.com/google/uuid"

type TriggerScanRequest struct {
	CloudAccountID string `json:"cloudAccountId"`
	ScanType       string `json:"scanType"`
}

type TriggerScanResponse struct {
	Message string    `json:"message"`
	ScanID  uuid.UUID `json:"scan_id"`
}
