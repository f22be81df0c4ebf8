package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
)

// Validator confirms AWS keys with STS GetCallerIdentity.
type Validator struct {
	defaultRegion string
	opts          options
}

func NewValidator(defaultRegion string, opts ...Option) *Validator {
	return &Validator{defaultRegion: defaultRegion, opts: buildOptions(opts)}
}

func (v *Validator) Provider() models.CloudProvider {
	return models.ProviderAWS
}

// Validate returns the twelve-digit account number the keys belong to.
func (v *Validator) Validate(ctx context.Context, raw json.RawMessage) (string, error) {
	creds, err := cloud.Decode[cloud.AWSCredentials](raw)
	if err != nil {
		return "", err
	}

	cfg, err := loadConfig(ctx, creds, v.defaultRegion, v.opts)
	if err != nil {
		return "", err
	}

	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", cloud.ErrInvalidCredentials, err)
	}

	return aws.ToString(out.Account), nil
}

var _ cloud.Validator = (*Validator)(nil)
