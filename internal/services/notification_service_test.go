package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginguard/internal/services"
)

type fakeSESClient struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESLockoutNotifier_SendsAlert(t *testing.T) {
	client := &fakeSESClient{}
	notifier := services.NewSESLockoutNotifierWithClient(client, "guard@example.com", "ops@example.com", testLogger())

	err := notifier.NotifyLockout(context.Background(), services.LockoutEvent{
		ClientKey:    "198.51.100.9",
		Username:     "mallory",
		Outcome:      services.OutcomeLockoutExtended,
		LockoutUntil: time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "guard@example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"ops@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Login lockout extended for 198.51.100.9", aws.ToString(client.input.Message.Subject.Data))
	body := aws.ToString(client.input.Message.Body.Text.Data)
	assert.Contains(t, body, "mallory")
	assert.Contains(t, body, "2026-03-01 14:00:00 UTC")
}

func TestSESLockoutNotifier_ReturnsSendError(t *testing.T) {
	client := &fakeSESClient{err: errors.New("throttled")}
	notifier := services.NewSESLockoutNotifierWithClient(client, "guard@example.com", "ops@example.com", testLogger())

	err := notifier.NotifyLockout(context.Background(), services.LockoutEvent{ClientKey: "198.51.100.9", Outcome: services.OutcomeLockoutStarted})
	assert.Error(t, err)
}
