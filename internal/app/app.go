// Package app assembles a bridge.Bridge from configuration. It is shared by
// the Lambda entry point and the replay CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/mail-to-discourse/internal/bridge"
	"github.com/shineum/mail-to-discourse/internal/config"
	"github.com/shineum/mail-to-discourse/internal/discourse"
	"github.com/shineum/mail-to-discourse/internal/email"
	"github.com/shineum/mail-to-discourse/internal/mailstore"
	"github.com/shineum/mail-to-discourse/internal/notifier"
	"github.com/shineum/mail-to-discourse/internal/notifier/ses"
	"github.com/shineum/mail-to-discourse/internal/notifier/stdout"
)

// LoadConfig loads configuration from the optional env file and YAML path,
// then validates it.
func LoadConfig(envFile, path string) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SelectNotifier returns the stdout notifier when dryRun is set, otherwise
// the SES notifier.
func SelectNotifier(ctx context.Context, cfg *config.Config, dryRun bool) (notifier.Sender, error) {
	from := email.Address{Name: cfg.Notify.FromName, Address: cfg.Notify.FromAddress}
	if dryRun {
		slog.Info("using stdout notifier")
		return stdout.New(from), nil
	}

	slog.Info("using AWS SES notifier",
		"region", cfg.Storage.Region,
		"from", cfg.Notify.FromAddress,
	)
	p, err := ses.New(ctx, sesConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create SES notifier: %w", err)
	}
	return p, nil
}

func sesConfig(cfg *config.Config) ses.SESProviderConfig {
	return ses.SESProviderConfig{
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Notify.AccessKeyID,
		SecretAccessKey: cfg.Notify.SecretAccessKey,
		FromAddress:     cfg.Notify.FromAddress,
		FromName:        cfg.Notify.FromName,
	}
}

// NewBridge wires the S3 mail store, the Discourse client and sender.
func NewBridge(ctx context.Context, cfg *config.Config, sender notifier.Sender) (*bridge.Bridge, error) {
	store, err := mailstore.New(ctx, mailstore.StoreConfig{
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		KeyPrefix: cfg.Storage.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mail store: %w", err)
	}

	forum := discourse.New(discourse.ClientConfig{
		Host:           cfg.Discourse.Host,
		APIKey:         cfg.Discourse.APIKey,
		SystemUsername: cfg.Discourse.SystemUsername,
		Timeout:        cfg.Discourse.Timeout,
	})

	slog.Info("bridge configured",
		"bucket", cfg.Storage.Bucket,
		"discourse_host", cfg.Discourse.Host,
		"category", cfg.Discourse.Category,
		"notifier", sender.Name(),
	)
	return bridge.New(cfg, store, forum, sender), nil
}
