package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/hugh/cloudguard/internal/cloud"
)

// Option adjusts how SDK clients are built.
type Option func(*options)

type options struct {
	endpoint string
}

// WithEndpoint points every client at a custom endpoint, e.g. LocalStack.
func WithEndpoint(url string) Option {
	return func(o *options) { o.endpoint = url }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// loadConfig builds an SDK config from stored credentials. The stored region
// wins over defaultRegion.
func loadConfig(ctx context.Context, creds cloud.AWSCredentials, defaultRegion string, o options) (aws.Config, error) {
	region := creds.Region
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKey,
			creds.SecretKey,
			creds.SessionToken,
		)),
	}
	if o.endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(o.endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}
