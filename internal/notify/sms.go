package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const twilioMessagesPath = "/2010-04-01/Accounts/{sid}/Messages.json"

// SMSConfig configures the Twilio SMS channel.
type SMSConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	To         string
	Timeout    time.Duration
	// Messages maps a hazard type to its message body.
	Messages map[string]string
}

// SMS sends a text message through the Twilio REST API.
type SMS struct {
	client   *resty.Client
	sid      string
	from     string
	to       string
	messages map[string]string
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewSMS creates the SMS channel.
func NewSMS(cfg SMSConfig) *SMS {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &SMS{
		client:   client,
		sid:      cfg.AccountSID,
		from:     cfg.From,
		to:       cfg.To,
		messages: cfg.Messages,
	}
}

func (s *SMS) Name() string { return "sms" }

// Notify sends the hazard's message body.
func (s *SMS) Notify(ctx context.Context, a Alert) error {
	var (
		msg    twilioMessage
		apiErr twilioError
	)
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("sid", s.sid).
		SetFormData(map[string]string{
			"To":   s.to,
			"From": s.from,
			"Body": messageFor(s.messages, a.Hazard, "🚨 %s hazard detected! Please check immediately."),
		}).
		SetResult(&msg).
		SetError(&apiErr).
		Post(twilioMessagesPath)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("send sms: twilio %d: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("send sms: twilio returned %s", resp.Status())
	}
	return nil
}

// messageFor returns the configured text for hazard, or fallback formatted
// with the hazard name.
func messageFor(messages map[string]string, hazard, fallback string) string {
	if m, ok := messages[hazard]; ok && m != "" {
		return m
	}
	return fmt.Sprintf(fallback, hazard)
}
