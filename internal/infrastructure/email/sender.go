package email

import (
	"context"
	"fmt"

	"clinic-scheduling/config"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sirupsen/logrus"
)

const defaultFromName = "Clinic Appointments"

// Sender delivers a single email. Implementations are swappable.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one outgoing email
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string // optional
}

// NewSender picks the provider named in cfg
func NewSender(ctx context.Context, cfg config.NotificationConfig, log *logrus.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", "stub":
		return NewStubSender(log), nil
	case "sendgrid":
		sender := NewSendGridSender(SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, log)
		if sender == nil {
			return nil, fmt.Errorf("email: SENDGRID_API_KEY is required for the sendgrid provider")
		}
		return sender, nil
	case "ses":
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("email: load aws config: %w", err)
		}
		return NewSESSender(sesv2.NewFromConfig(awsCfg), SESConfig{
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, log), nil
	default:
		return nil, fmt.Errorf("email: unknown provider %q", cfg.Provider)
	}
}

// StubSender logs instead of sending
type StubSender struct {
	log *logrus.Logger
}

func NewStubSender(log *logrus.Logger) *StubSender {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StubSender{log: log}
}

func (s *StubSender) Send(ctx context.Context, msg Message) error {
	s.log.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("stub email sender: would send email")
	return nil
}
