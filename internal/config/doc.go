// Package config provides configuration management for the AWS Tag
// Compliance Exporter.
//
// This package handles loading configuration from YAML files, applying
// environment variable overrides, setting defaults, and validating the
// configuration.
//
// Configuration sources (in order of precedence):
//   1. Environment variables (highest priority)
//   2. YAML configuration file
//   3. Default values (lowest priority)
//
// Supported environment variables:
//   - AWS_TAG_REFRESH_INTERVAL: Refresh interval in seconds (minimum: 60)
//   - AWS_TAG_HTTP_PORT: HTTP server port (1-65535)
//   - AWS_TAG_LOG_LEVEL: Log level (debug, info, warn, error)
//   - AWS_TAG_REQUIRED_TAGS: Comma-separated required tag keys
//   - AWS_TAG_ASSUME_ROLE_TEMPLATE: Role name template with {account_id}
//
// The main type is Config, which contains all application settings including:
//   - Accounts: List of AWS accounts to scan, each with its regions
//   - RequiredTags: Tag keys every resource must carry
//   - AssumeRoleTemplate: Role name template rendered per account
//   - AccountOverrides: Per-account explicit role ARNs
//   - ExcludedResourceTypes: Resource-type patterns dropped from accounting
//   - RefreshInterval: How often to re-run the scan
//   - HTTPPort: Port for the HTTP server
//   - LogLevel: Logging verbosity
//
// Example configuration file (config.yaml):
//
//	accounts:
//	  - account_id: "111111111111"
//	    account_name: "production"
//	    regions: ["us-east-1", "eu-west-1"]
//	  - account_id: "222222222222"
//	    account_name: "staging"
//
//	required_tags: ["Owner", "Environment", "CostCenter"]
//
//	assume_role_name_template: "tag-audit-{account_id}"
//	account_overrides:
//	  "222222222222":
//	    role_arn: "arn:aws:iam::222222222222:role/custom-audit"
//
//	excluded_resource_types: ["eks:*", "cloudformation"]
//
//	refresh_interval: 300
//	http_port: 8080
//	log_level: "info"
//
// Example usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//		log.Fatalf("Failed to load config: %v", err)
//	}
//
//	fmt.Printf("Scanning %d accounts\n", len(cfg.Accounts))
//	fmt.Printf("Refresh interval: %d seconds\n", cfg.RefreshInterval)
package config
