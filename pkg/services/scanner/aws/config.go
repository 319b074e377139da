package aws

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
)

const (
	DefaultRegion      = "us-east-1" // Default region if neither the account nor the profile sets one
	DefaultSessionName = "waste-atlas-audit"
)

// Settings control how sessions are opened and how provider calls are retried.
type Settings struct {
	// DefaultRegion is used when the account lists no regions (default: us-east-1)
	DefaultRegion string `mapstructure:"default_region"`
	// MaxAttempts bounds the SDK retryer, first call included (default: 5)
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`
	// MaxBackoff caps the exponential backoff between attempts (default: 20s)
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// CallTimeout bounds a single scanner invocation including retries (default: 2m)
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// SessionName is the role session name used when assuming roles
	SessionName string `mapstructure:"session_name"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultRegion: DefaultRegion,
		MaxAttempts:   5,
		MaxBackoff:    20 * time.Second,
		CallTimeout:   2 * time.Minute,
		SessionName:   DefaultSessionName,
	}
}

// LoadConfig builds an SDK config for the account, assuming its role when one
// is configured, and verifies that credentials can actually be retrieved.
func LoadConfig(ctx context.Context, account domain.Account, settings Settings) (awssdk.Config, error) {
	region := settings.DefaultRegion
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithDefaultRegion(region),
		config.WithRetryer(func() awssdk.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				if settings.MaxAttempts > 0 {
					o.MaxAttempts = settings.MaxAttempts
				}
				if settings.MaxBackoff > 0 {
					o.MaxBackoff = settings.MaxBackoff
				}
			})
		}),
	}
	if account.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(account.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awssdk.Config{}, fmt.Errorf("%w: unable to load AWS SDK config: %w", domain.ErrCredentials, err)
	}

	if account.RoleARN != "" {
		sessionName := settings.SessionName
		if sessionName == "" {
			sessionName = DefaultSessionName
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), account.RoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = sessionName
				if account.ExternalID != "" {
					o.ExternalID = awssdk.String(account.ExternalID)
				}
			})
		awsCfg.Credentials = awssdk.NewCredentialsCache(provider)
	}

	// Test the credentials
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return awssdk.Config{}, fmt.Errorf("%w: invalid AWS credentials for account %s: %w",
			domain.ErrCredentials, account.ID, err)
	}

	return awsCfg, nil
}
