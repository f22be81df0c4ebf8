package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hugh/cloudguard/internal/cloud"
	"github.com/hugh/cloudguard/internal/database/models"
)

const allUsersURI = "http://acs.amazonaws.com/groups/global/AllUsers"

type ec2API interface {
	ec2.DescribeInstancesAPIClient
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
}

type s3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketAcl(ctx context.Context, params *s3.GetBucketAclInput, optFns ...func(*s3.Options)) (*s3.GetBucketAclOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
}

type iamAPI interface {
	iam.ListUsersAPIClient
	GetAccountSummary(ctx context.Context, params *iam.GetAccountSummaryInput, optFns ...func(*iam.Options)) (*iam.GetAccountSummaryOutput, error)
	ListMFADevices(ctx context.Context, params *iam.ListMFADevicesInput, optFns ...func(*iam.Options)) (*iam.ListMFADevicesOutput, error)
}

// Scanner runs the security checks against one AWS account. Each check group
// is independent: a failing API call is reported but the others still run.
type Scanner struct {
	ec2    ec2API
	s3     s3API
	iam    iamAPI
	logger *slog.Logger
}

func NewScanner(ctx context.Context, raw json.RawMessage, defaultRegion string, logger *slog.Logger, opts ...Option) (*Scanner, error) {
	creds, err := cloud.Decode[cloud.AWSCredentials](raw)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	cfg, err := loadConfig(ctx, creds, defaultRegion, o)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		so.UsePathStyle = o.endpoint != ""
	})
	return newScanner(ec2.NewFromConfig(cfg), s3Client, iam.NewFromConfig(cfg), logger), nil
}

func newScanner(ec2Client ec2API, s3Client s3API, iamClient iamAPI, logger *slog.Logger) *Scanner {
	return &Scanner{ec2: ec2Client, s3: s3Client, iam: iamClient, logger: logger}
}

// Scan returns findings for scanType. Only security scans have checks; cost
// and compliance return no findings. The error joins every failed check
// group and may accompany partial findings.
func (s *Scanner) Scan(ctx context.Context, scanType models.ScanType) ([]cloud.Finding, error) {
	findings := []cloud.Finding{}
	if scanType != models.ScanTypeSecurity {
		return findings, nil
	}

	var errs []error
	checks := []struct {
		name string
		run  func(context.Context) ([]cloud.Finding, error)
	}{
		{"ec2", s.checkEC2},
		{"s3", s.checkS3},
		{"iam", s.checkIAM},
	}

	for _, check := range checks {
		found, err := check.run(ctx)
		findings = append(findings, found...)
		if err != nil {
			s.logger.Warn("check failed", "check", check.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", check.name, err))
		}
	}

	return findings, errors.Join(errs...)
}

func (s *Scanner) checkEC2(ctx context.Context) ([]cloud.Finding, error) {
	var findings []cloud.Finding
	var volumeIDs []string

	pager := ec2.NewDescribeInstancesPaginator(s.ec2, &ec2.DescribeInstancesInput{})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return findings, fmt.Errorf("describing instances: %w", err)
		}

		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				if instance.PublicIpAddress != nil {
					findings = append(findings, cloud.Finding{
						Type:           "security",
						Severity:       models.SeverityHigh,
						ResourceID:     aws.ToString(instance.InstanceId),
						ResourceType:   "EC2",
						Issue:          "Instance has public IP address",
						Recommendation: "Consider using private subnets with NAT Gateway",
					})
				}
				for _, bdm := range instance.BlockDeviceMappings {
					if bdm.Ebs != nil && bdm.Ebs.VolumeId != nil {
						volumeIDs = append(volumeIDs, *bdm.Ebs.VolumeId)
					}
				}
			}
		}
	}

	if len(volumeIDs) == 0 {
		return findings, nil
	}

	// Attached block devices do not report encryption; the volume does.
	out, err := s.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: volumeIDs})
	if err != nil {
		return findings, fmt.Errorf("describing volumes: %w", err)
	}
	for _, vol := range out.Volumes {
		if !aws.ToBool(vol.Encrypted) {
			findings = append(findings, cloud.Finding{
				Type:           "security",
				Severity:       models.SeverityMedium,
				ResourceID:     aws.ToString(vol.VolumeId),
				ResourceType:   "EBS",
				Issue:          "EBS volume is not encrypted",
				Recommendation: "Enable encryption for EBS volumes",
			})
		}
	}

	return findings, nil
}

func (s *Scanner) checkS3(ctx context.Context) ([]cloud.Finding, error) {
	var findings []cloud.Finding

	out, err := s.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}

	for _, bucket := range out.Buckets {
		name := aws.ToString(bucket.Name)

		acl, err := s.s3.GetBucketAcl(ctx, &s3.GetBucketAclInput{Bucket: bucket.Name})
		if err != nil {
			s.logger.Debug("skipping bucket acl", "bucket", name, "error", err)
			continue
		}
		for _, grant := range acl.Grants {
			if grant.Grantee != nil && aws.ToString(grant.Grantee.URI) == allUsersURI {
				findings = append(findings, cloud.Finding{
					Type:           "security",
					Severity:       models.SeverityCritical,
					ResourceID:     name,
					ResourceType:   "S3",
					Issue:          "S3 bucket has public access",
					Recommendation: "Remove public access and use pre-signed URLs or CloudFront",
				})
				break
			}
		}

		enc, err := s.s3.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: bucket.Name})
		if err != nil || enc.ServerSideEncryptionConfiguration == nil {
			findings = append(findings, cloud.Finding{
				Type:           "security",
				Severity:       models.SeverityMedium,
				ResourceID:     name,
				ResourceType:   "S3",
				Issue:          "S3 bucket is not encrypted",
				Recommendation: "Enable default encryption for S3 bucket",
			})
		}
	}

	return findings, nil
}

func (s *Scanner) checkIAM(ctx context.Context) ([]cloud.Finding, error) {
	var findings []cloud.Finding

	summary, err := s.iam.GetAccountSummary(ctx, &iam.GetAccountSummaryInput{})
	if err != nil {
		return nil, fmt.Errorf("getting account summary: %w", err)
	}
	if enabled, ok := summary.SummaryMap["AccountMFAEnabled"]; ok && enabled == 0 {
		findings = append(findings, cloud.Finding{
			Type:           "security",
			Severity:       models.SeverityCritical,
			ResourceID:     "root-account",
			ResourceType:   "IAM",
			Issue:          "Root account does not have MFA enabled",
			Recommendation: "Enable MFA for root account immediately",
		})
	}

	pager := iam.NewListUsersPaginator(s.iam, &iam.ListUsersInput{})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return findings, fmt.Errorf("listing users: %w", err)
		}

		for _, user := range page.Users {
			name := aws.ToString(user.UserName)
			devices, err := s.iam.ListMFADevices(ctx, &iam.ListMFADevicesInput{UserName: user.UserName})
			if err != nil {
				s.logger.Debug("skipping user mfa", "user", name, "error", err)
				continue
			}
			if len(devices.MFADevices) == 0 {
				findings = append(findings, cloud.Finding{
					Type:           "security",
					Severity:       models.SeverityHigh,
					ResourceID:     name,
					ResourceType:   "IAM",
					Issue:          fmt.Sprintf("User %s does not have MFA enabled", name),
					Recommendation: "Enable MFA for all IAM users",
				})
			}
		}
	}

	return findings, nil
}
