package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig holds credentials and addressing for the Twilio messages API.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	// Channel is prefixed to the destination number, e.g. "whatsapp:".
	Channel string
}

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender sends messages through Twilio (SMS or WhatsApp).
type TwilioSender struct {
	api     messageCreator
	from    string
	channel string
}

func NewTwilioSender(cfg TwilioConfig) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio account sid and auth token are required")
	}
	if cfg.From == "" {
		return nil, errors.New("twilio from address is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{
		api:     client.Api,
		from:    cfg.From,
		channel: cfg.Channel,
	}, nil
}

func (s *TwilioSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(s.address(msg.To))
	params.SetFrom(s.from)
	params.SetBody(msg.Body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio create message: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

func (s *TwilioSender) address(phone string) string {
	if s.channel == "" || strings.HasPrefix(phone, s.channel) {
		return phone
	}
	return s.channel + phone
}

// WebhookValidator checks the X-Twilio-Signature of inbound webhooks.
type WebhookValidator struct {
	validator twilioclient.RequestValidator
}

func NewWebhookValidator(authToken string) *WebhookValidator {
	return &WebhookValidator{validator: twilioclient.NewRequestValidator(authToken)}
}

// Valid reports whether signature matches the url and form params.
func (v *WebhookValidator) Valid(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return v.validator.Validate(url, params, signature)
}
