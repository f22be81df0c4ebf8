package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
)

const MaxAccountNameLength = 128

// Error is a request validation failure. Message is shown to the caller,
// Details names the offending fields.
type Error struct {
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates a string to maxLen characters
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// ValidateCloudAccount checks a create-account request. Presence is checked
// first, then the provider, then the provider's credential fields.
func ValidateCloudAccount(provider, accountName string, credentials map[string]any) *Error {
	missing := make(map[string]string)
	if strings.TrimSpace(provider) == "" {
		missing["provider"] = "required"
	}
	if strings.TrimSpace(accountName) == "" {
		missing["account_name"] = "required"
	}
	if credentials == nil {
		missing["credentials"] = "required"
	}
	if len(missing) > 0 {
		return &Error{
			Message: "Missing required fields: provider, account_name, credentials",
			Details: missing,
		}
	}

	p := models.CloudProvider(provider)
	if !p.Valid() {
		return &Error{
			Message: "Invalid provider. Must be one of: aws, azure, gcp",
			Details: map[string]string{"provider": "must be one of: aws, azure, gcp"},
		}
	}

	if fields := cloud.MissingFields(p, credentials); len(fields) > 0 {
		details := make(map[string]string, len(fields))
		for _, f := range fields {
			details["credentials."+f] = "required"
		}
		return &Error{Message: credentialMessage(p), Details: details}
	}

	return nil
}

func credentialMessage(p models.CloudProvider) string {
	switch p {
	case models.ProviderAWS:
		return "AWS credentials must include access_key and secret_key"
	case models.ProviderAzure:
		return "Azure credentials must include tenant_id, client_id, client_secret and subscription_id"
	default:
		return "GCP credentials must include project_id and service_account_json"
	}
}
