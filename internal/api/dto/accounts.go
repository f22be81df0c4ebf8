package dto

import "github.com/hugh/cloudguard/internal/database/models"

type CreateAccountRequest struct {
	Provider    string         `json:"provider"`
	AccountName string         `json:"account_name"`
	AccountID   string         `json:"account_id"`
	Credentials map[string]any `json:"credentials"`
}

type AccountListResponse struct {
	Accounts []models.CloudAccount `json:"accounts"`
}

type AccountResponse struct {
	Message string               `json:"message"`
	Account *models.CloudAccount `json:"account"`
}
