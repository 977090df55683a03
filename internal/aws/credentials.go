package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/zgpcy/aws-tag-compliance-exporter/internal/config"
	"github.com/zgpcy/aws-tag-compliance-exporter/internal/logger"
)

// Role assumption constants
const (
	// RoleSessionDuration bounds the lifetime of assumed-role sessions.
	// A fresh session is requested every scan cycle, so one hour always
	// outlives a single scan.
	RoleSessionDuration = 3600 // seconds

	// accountIDPlaceholder is rendered into the role name template
	accountIDPlaceholder = "{account_id}"
)

// stsAPI is the subset of the STS client used for role assumption
type stsAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// credentialResolver resolves per-account credentials. Resolution order:
// explicit override role ARN, then the template-derived role ARN, then
// ambient identity (nil credentials) when neither is configured.
type credentialResolver struct {
	sts          stsAPI
	roleTemplate string
	overrides    map[string]config.AccountOverride
	logger       *logger.Logger
}

func newCredentialResolver(stsClient stsAPI, roleTemplate string, overrides map[string]config.AccountOverride, log *logger.Logger) *credentialResolver {
	return &credentialResolver{
		sts:          stsClient,
		roleTemplate: roleTemplate,
		overrides:    overrides,
		logger:       log,
	}
}

// roleARNFor returns the role ARN to assume for an account, or empty
// when the account is scanned with the ambient identity.
func (r *credentialResolver) roleARNFor(accountID string) string {
	if override, ok := r.overrides[accountID]; ok && override.RoleARN != "" {
		return override.RoleARN
	}
	if r.roleTemplate != "" {
		roleName := strings.ReplaceAll(r.roleTemplate, accountIDPlaceholder, accountID)
		return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
	}
	return ""
}

// Resolve returns temporary credentials for the account, or nil when the
// ambient identity should be used. Role assumption is a single STS call;
// failures are returned to the caller as an account-level error, never
// retried here.
func (r *credentialResolver) Resolve(ctx context.Context, accountID string) (*aws.Credentials, error) {
	roleARN := r.roleARNFor(accountID)
	if roleARN == "" {
		r.logger.Debug("No role configured, using ambient identity", "account_id", accountID)
		return nil, nil
	}

	r.logger.Info("Assuming role", "account_id", accountID, "role_arn", roleARN)

	// Session name embeds the account id for auditability in CloudTrail
	out, err := r.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(fmt.Sprintf("audit-%s", accountID)),
		DurationSeconds: aws.Int32(RoleSessionDuration),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assume role %s: %w", roleARN, err)
	}

	creds := out.Credentials
	if creds == nil || creds.AccessKeyId == nil || creds.SecretAccessKey == nil || creds.SessionToken == nil {
		return nil, fmt.Errorf("assume role %s returned incomplete credentials", roleARN)
	}

	return &aws.Credentials{
		AccessKeyID:     *creds.AccessKeyId,
		SecretAccessKey: *creds.SecretAccessKey,
		SessionToken:    *creds.SessionToken,
	}, nil
}
