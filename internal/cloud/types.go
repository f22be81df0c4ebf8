package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hugh/cloudguard/internal/database/models"
)

var ErrInvalidCredentials = errors.New("invalid cloud credentials")

// AWSCredentials is the credential document stored for aws accounts.
type AWSCredentials struct {
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	SessionToken string `json:"session_token,omitempty"`
	Region       string `json:"region,omitempty"`
}

// AzureCredentials is a service principal scoped to one subscription.
type AzureCredentials struct {
	TenantID       string `json:"tenant_id"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	SubscriptionID string `json:"subscription_id"`
}

// GCPCredentials carries a service account key file as a JSON string.
type GCPCredentials struct {
	ProjectID          string `json:"project_id"`
	ServiceAccountJSON string `json:"service_account_json"`
}

var requiredFields = map[models.CloudProvider][]string{
	models.ProviderAWS:   {"access_key", "secret_key"},
	models.ProviderAzure: {"tenant_id", "client_id", "client_secret", "subscription_id"},
	models.ProviderGCP:   {"project_id", "service_account_json"},
}

// MissingFields returns the required keys that are absent, empty, or not
// strings in creds, in declaration order.
func MissingFields(provider models.CloudProvider, creds map[string]any) []string {
	var missing []string
	for _, field := range requiredFields[provider] {
		v, ok := creds[field].(string)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Decode unmarshals a stored credential document into the provider's type.
func Decode[T any](raw json.RawMessage) (T, error) {
	var creds T
	if err := json.Unmarshal(raw, &creds); err != nil {
		return creds, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return creds, nil
}

// Validator checks credentials against the provider's API. On success it
// returns the provider-side account identifier.
type Validator interface {
	Provider() models.CloudProvider
	Validate(ctx context.Context, raw json.RawMessage) (string, error)
}

// Registry maps each provider to its validator.
type Registry map[models.CloudProvider]Validator

func NewRegistry(validators ...Validator) Registry {
	r := make(Registry, len(validators))
	for _, v := range validators {
		r[v.Provider()] = v
	}
	return r
}

// Finding is a single misconfiguration reported by a scanner.
type Finding struct {
	Type           string          `json:"type"`
	Severity       models.Severity `json:"severity"`
	ResourceID     string          `json:"resource_id"`
	ResourceType   string          `json:"resource_type"`
	Issue          string          `json:"issue"`
	Recommendation string          `json:"recommendation"`
}

// CountSeverities tallies findings by severity.
func CountSeverities(findings []Finding) models.SeverityCounts {
	var counts models.SeverityCounts
	for _, f := range findings {
		counts.Add(f.Severity)
	}
	return counts
}
