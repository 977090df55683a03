package aws

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/zgpcy/aws-tag-compliance-exporter/internal/config"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/logger"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/provider"
)

// Discovery client retry/timeout constants. Retry policy belongs to the
// SDK retryer; nothing in this package wraps calls in a second retry loop.
const (
	// MaxRetryAttempts bounds SDK retries per API call
	MaxRetryAttempts = 5

	// ConnectTimeout is the TCP connect timeout for discovery calls
	ConnectTimeout = 10 * time.Second

	// RequestTimeout is the end-to-end timeout for a single discovery call
	RequestTimeout = 60 * time.Second
)

// taggingClientFactory builds a tagging client for one region, with the
// given temporary credentials or the ambient identity when creds is nil.
// Injected so tests can substitute fakes.
type taggingClientFactory func(ctx context.Context, region string, creds *aws.Credentials) (taggingAPI, error)

// Client discovers and classifies resources across the configured
// account matrix. It implements provider.ComplianceScanner.
type Client struct {
	cfg        *config.Config
	logger     *logger.Logger
	resolver   *credentialResolver
	newTagging taggingClientFactory
}

// Verify that Client implements provider.ComplianceScanner
var _ provider.ComplianceScanner = (*Client)(nil)

// NewClient creates a scan client using the ambient AWS identity for STS
func NewClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	baseCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.DefaultRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		cfg:        cfg,
		logger:     log,
		resolver:   newCredentialResolver(sts.NewFromConfig(baseCfg), cfg.AssumeRoleTemplate, cfg.AccountOverrides, log),
		newTagging: newTaggingClient,
	}, nil
}

// AccountCount returns the number of accounts in the scan matrix
func (c *Client) AccountCount() int {
	return len(c.cfg.Accounts)
}

// Scan iterates the account matrix in configuration order, resolves
// credentials per account, scans each of the account's regions, and
// assembles the full compliance snapshot. One account's credential
// failure or one region's API failure never aborts the rest of the run.
func (c *Client) Scan(ctx context.Context) (*provider.Snapshot, error) {
	snapshot := &provider.Snapshot{
		Accounts: make([]provider.AccountResult, 0, len(c.cfg.Accounts)),
	}

	for _, acct := range c.cfg.Accounts {
		c.logger.Info("Scanning account",
			"account_id", acct.ID,
			"account_name", acct.Name,
			"regions", len(acct.Regions))

		result := provider.AccountResult{
			AccountID:   acct.ID,
			AccountName: acct.Name,
		}

		creds, err := c.resolver.Resolve(ctx, acct.ID)
		if err != nil {
			c.logger.Error("Credential resolution failed, skipping account",
				"account_id", acct.ID,
				"error", err)
			result.Err = err.Error()
			snapshot.Accounts = append(snapshot.Accounts, result)
			continue
		}

		for _, region := range acct.Regions {
			result.Regions = append(result.Regions, c.scanRegion(ctx, acct, region, creds))
		}

		snapshot.Accounts = append(snapshot.Accounts, result)
	}

	c.logger.Info("Scan complete",
		"accounts", len(snapshot.Accounts),
		"resources", snapshot.TotalResources())

	return snapshot, nil
}

// scanRegion builds a per-region tagging client and runs the region
// scanner. A client construction failure is recorded the same way as a
// discovery failure: in the region's error list.
func (c *Client) scanRegion(ctx context.Context, acct config.Account, region string, creds *aws.Credentials) provider.RegionResult {
	client, err := c.newTagging(ctx, region, creds)
	if err != nil {
		c.logger.Error("Failed to create tagging client",
			"account_id", acct.ID,
			"region", region,
			"error", err)
		return provider.RegionResult{
			Region: region,
			Errors: []string{fmt.Sprintf("failed to create tagging client in region %s: %v", region, err)},
		}
	}

	scanner := &regionScanner{
		client:        client,
		region:        region,
		requiredTags:  c.cfg.RequiredTags,
		excludedTypes: c.cfg.ExcludedResourceTypes,
		logger:        c.logger,
	}
	return scanner.scan(ctx, acct.ID, acct.Name)
}

// newTaggingClient builds a real Resource Groups Tagging API client for
// one region with standard-mode retries and bounded timeouts.
func newTaggingClient(ctx context.Context, region string, creds *aws.Credentials) (taggingAPI, error) {
	httpClient := awshttp.NewBuildableClient().
		WithTimeout(RequestTimeout).
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = ConnectTimeout
		})

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithRetryMaxAttempts(MaxRetryAttempts),
		awsconfig.WithHTTPClient(httpClient),
	}
	if creds != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for region %s: %w", region, err)
	}

	return resourcegroupstaggingapi.NewFromConfig(awsCfg), nil
}
