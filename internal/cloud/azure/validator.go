package azure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/subscription/armsubscription"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
)

// Validator confirms a service principal can read its subscription.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Provider() models.CloudProvider {
	return models.ProviderAzure
}

// Validate returns the subscription id once the principal has read it.
func (v *Validator) Validate(ctx context.Context, raw json.RawMessage) (string, error) {
	creds, err := cloud.Decode[cloud.AzureCredentials](raw)
	if err != nil {
		return "", err
	}

	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", cloud.ErrInvalidCredentials, err)
	}

	client, err := armsubscription.NewSubscriptionsClient(cred, nil)
	if err != nil {
		return "", fmt.Errorf("creating subscription client: %w", err)
	}

	resp, err := client.Get(ctx, creds.SubscriptionID, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", cloud.ErrInvalidCredentials, err)
	}

	if resp.SubscriptionID != nil {
		return *resp.SubscriptionID, nil
	}
	return creds.SubscriptionID, nil
}

var _ cloud.Validator = (*Validator)(nil)
