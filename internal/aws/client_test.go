package aws

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/zgpcy/aws-tag-compliance-exporter/internal/config"
)

// newTestClient wires a Client with fake STS and per-region fake tagging clients
func newTestClient(cfg *config.Config, stsClient stsAPI, regionPages map[string][][]types.ResourceTagMapping) *Client {
	return &Client{
		cfg:      cfg,
		logger:   testLogger(),
		resolver: newCredentialResolver(stsClient, cfg.AssumeRoleTemplate, cfg.AccountOverrides, testLogger()),
		newTagging: func(ctx context.Context, region string, creds *aws.Credentials) (taggingAPI, error) {
			return &fakeTaggingClient{pages: regionPages[region]}, nil
		},
	}
}

// TestScanAssemblesSnapshot tests a two-account scan in matrix order
func TestScanAssemblesSnapshot(t *testing.T) {
	cfg := &config.Config{
		Accounts: []config.Account{
			{ID: "111111111111", Name: "prod", Regions: []string{"us-east-1", "eu-west-1"}},
			{ID: "222222222222", Name: "staging", Regions: []string{"us-east-1"}},
		},
		RequiredTags: []string{"Owner"},
	}
	regionPages := map[string][][]types.ResourceTagMapping{
		"us-east-1": {{
			mapping("arn:aws:ec2:us-east-1:1:instance/i-1", map[string]string{"Owner": "a"}),
		}},
		"eu-west-1": {{
			mapping("arn:aws:ec2:eu-west-1:1:instance/i-2", nil),
		}},
	}

	client := newTestClient(cfg, &fakeSTSClient{}, regionPages)
	snapshot, err := client.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if len(snapshot.Accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(snapshot.Accounts))
	}
	if snapshot.Accounts[0].AccountID != "111111111111" || snapshot.Accounts[1].AccountID != "222222222222" {
		t.Errorf("account order not preserved: %s, %s",
			snapshot.Accounts[0].AccountID, snapshot.Accounts[1].AccountID)
	}

	prod := snapshot.Accounts[0]
	if prod.Err != "" {
		t.Errorf("prod account error = %q, want none", prod.Err)
	}
	if len(prod.Regions) != 2 {
		t.Fatalf("prod regions = %d, want 2", len(prod.Regions))
	}
	if prod.Regions[0].Region != "us-east-1" || prod.Regions[1].Region != "eu-west-1" {
		t.Errorf("region order not preserved: %s, %s", prod.Regions[0].Region, prod.Regions[1].Region)
	}
	if len(prod.Regions[0].Compliant) != 1 || len(prod.Regions[1].NonCompliant) != 1 {
		t.Errorf("unexpected classification: %+v", prod.Regions)
	}

	if snapshot.TotalResources() != 3 {
		t.Errorf("TotalResources = %d, want 3", snapshot.TotalResources())
	}
}

// TestScanIsolatesCredentialFailure tests that one account's credential
// failure never aborts the rest of the run
func TestScanIsolatesCredentialFailure(t *testing.T) {
	cfg := &config.Config{
		Accounts: []config.Account{
			{ID: "111111111111", Name: "broken", Regions: []string{"us-east-1"}},
			{ID: "222222222222", Name: "healthy", Regions: []string{"us-east-1"}},
		},
		RequiredTags:       []string{"Owner"},
		AssumeRoleTemplate: "tag-audit-{account_id}",
	}
	regionPages := map[string][][]types.ResourceTagMapping{
		"us-east-1": {{
			mapping("arn:aws:ec2:us-east-1:2:instance/i-1", map[string]string{"Owner": "a"}),
		}},
	}

	failFirst := &selectiveSTSClient{failAccounts: map[string]bool{"111111111111": true}}
	client := newTestClient(cfg, failFirst, regionPages)

	snapshot, err := client.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	broken := snapshot.Accounts[0]
	if broken.Err == "" {
		t.Error("broken account should carry a credential error")
	}
	if !strings.Contains(broken.Err, "AccessDenied") {
		t.Errorf("error %q should carry the STS failure", broken.Err)
	}
	if len(broken.Regions) != 0 {
		t.Errorf("broken account regions = %d, want 0", len(broken.Regions))
	}

	healthy := snapshot.Accounts[1]
	if healthy.Err != "" {
		t.Errorf("healthy account error = %q, want none", healthy.Err)
	}
	if len(healthy.Regions) != 1 || len(healthy.Regions[0].Compliant) != 1 {
		t.Errorf("healthy account was not scanned: %+v", healthy.Regions)
	}
}

// selectiveSTSClient fails role assumption for chosen accounts only. The
// session name embeds the account id, which is how it tells them apart.
type selectiveSTSClient struct {
	fakeSTSClient
	failAccounts map[string]bool
}

func (s *selectiveSTSClient) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	session := aws.ToString(params.RoleSessionName)
	accountID := strings.TrimPrefix(session, "audit-")
	if s.failAccounts[accountID] {
		return nil, errors.New("AccessDenied: not authorized to assume role")
	}
	return s.fakeSTSClient.AssumeRole(ctx, params, optFns...)
}

// TestScanRecordsClientFactoryFailure tests that a tagging client
// construction failure is recorded as a region error
func TestScanRecordsClientFactoryFailure(t *testing.T) {
	cfg := &config.Config{
		Accounts: []config.Account{
			{ID: "111111111111", Name: "prod", Regions: []string{"us-east-1"}},
		},
		RequiredTags: []string{"Owner"},
	}

	client := &Client{
		cfg:      cfg,
		logger:   testLogger(),
		resolver: newCredentialResolver(&fakeSTSClient{}, "", nil, testLogger()),
		newTagging: func(ctx context.Context, region string, creds *aws.Credentials) (taggingAPI, error) {
			return nil, errors.New("no such region")
		},
	}

	snapshot, err := client.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	acct := snapshot.Accounts[0]
	if acct.Err != "" {
		t.Errorf("account error = %q, want none (region-level failure)", acct.Err)
	}
	if len(acct.Regions) != 1 || len(acct.Regions[0].Errors) != 1 {
		t.Fatalf("expected one region error, got %+v", acct.Regions)
	}
	if !strings.Contains(acct.Regions[0].Errors[0], "us-east-1") {
		t.Errorf("region error %q should name the region", acct.Regions[0].Errors[0])
	}
}
