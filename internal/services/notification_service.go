package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/pkg/logger"
)

// LockoutEvent describes a lock that was started or extended
type LockoutEvent struct {
	ClientKey    string
	Username     string
	Outcome      FailureOutcome
	LockoutUntil time.Time
}

// LockoutNotifier is told about every new or extended lockout
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, event LockoutEvent) error
}

// NoopNotifier discards lockout events
type NoopNotifier struct{}

func (NoopNotifier) NotifyLockout(context.Context, LockoutEvent) error { return nil }

// SESClient is the subset of the SES client used for notifications
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLockoutNotifier emails an operator address using AWS SES
type SESLockoutNotifier struct {
	sesClient   SESClient
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewSESLockoutNotifier creates a notifier backed by the default AWS credential chain
func NewSESLockoutNotifier(region, fromAddress, toAddress string, logger *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESLockoutNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, toAddress, logger), nil
}

// NewSESLockoutNotifierWithClient creates a notifier around an existing client
func NewSESLockoutNotifierWithClient(client SESClient, fromAddress, toAddress string, logger *slog.Logger) *SESLockoutNotifier {
	return &SESLockoutNotifier{
		sesClient:   client,
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}
}

// NotifyLockout sends a plain-text alert for a lockout event
func (s *SESLockoutNotifier) NotifyLockout(ctx context.Context, event LockoutEvent) error {
	action := "started"
	if event.Outcome == OutcomeLockoutExtended {
		action = "extended"
	}

	subject := fmt.Sprintf("Login lockout %s for %s", action, event.ClientKey)

	textBody := fmt.Sprintf(`A login lockout was %s.

Client:        %s
Username:      %s
Locked until:  %s

Repeated failed login attempts from this client exceeded the configured limit.
If this address belongs to a trusted system, add it to the whitelist.

This is an automated message. Please do not reply to this email.
`, action, event.ClientKey, usernameOrUnknown(event.Username), event.LockoutUntil.Format(models.LockoutTimeLayout))

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send lockout notification via SES",
			slog.String("client_key", event.ClientKey),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("lockout notification sent",
		slog.String("client_key", event.ClientKey),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

func usernameOrUnknown(username string) string {
	if username == "" {
		return "(none)"
	}
	return logger.SanitizedUsername(username)
}
