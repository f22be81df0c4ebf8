package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Validator confirms a service account key can list buckets in its project.
type Validator struct {
	clientOptions []option.ClientOption
}

// NewValidator accepts extra client options, e.g. option.WithEndpoint for an
// emulator.
func NewValidator(opts ...option.ClientOption) *Validator {
	return &Validator{clientOptions: opts}
}

func (v *Validator) Provider() models.CloudProvider {
	return models.ProviderGCP
}

// Validate returns the project id.
func (v *Validator) Validate(ctx context.Context, raw json.RawMessage) (string, error) {
	creds, err := cloud.Decode[cloud.GCPCredentials](raw)
	if err != nil {
		return "", err
	}

	googleCreds, err := google.CredentialsFromJSON(ctx, []byte(creds.ServiceAccountJSON), storage.ScopeReadOnly)
	if err != nil {
		return "", fmt.Errorf("%w: %v", cloud.ErrInvalidCredentials, err)
	}

	opts := append([]option.ClientOption{option.WithCredentials(googleCreds)}, v.clientOptions...)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("creating storage client: %w", err)
	}
	defer client.Close()

	it := client.Buckets(ctx, creds.ProjectID)
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return "", fmt.Errorf("%w: %v", cloud.ErrInvalidCredentials, err)
	}

	return creds.ProjectID, nil
}

var _ cloud.Validator = (*Validator)(nil)
