package services

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"passreset/internal/config"
)

// EmailSender delivers a single message. Implementations are
// interchangeable transports; callers treat delivery failure as a
// logged, non-fatal outcome.
type EmailSender interface {
	Send(to string, subject string, body string) error
}

// NewEmailSenderFromConfig picks the transport named by
// cfg.EmailProvider. Business logic never branches on the provider; it
// only ever sees the EmailSender interface.
func NewEmailSenderFromConfig(cfg *config.Config) (EmailSender, error) {
	switch cfg.EmailProvider {
	case "smtp":
		return &SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUsername,
			Pass:     cfg.SMTPPassword,
			From:     cfg.SMTPFromEmail,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPUseTLS,
		}, nil
	case "resend":
		return NewResendSender(cfg.ResendAPIKey, cfg.SMTPFromEmail, cfg.SMTPFromName), nil
	case "ses":
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.AWSRegion),
		}
		if cfg.AWSAccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewSESSender(awsCfg, cfg.SESFromEmail), nil
	default:
		return nil, fmt.Errorf("unknown email provider: %q", cfg.EmailProvider)
	}
}
