package messaging

import (
	"context"
	"errors"
	"testing"

	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	params *openapi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM42"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

func TestNewTwilioSender_RequiresCredentials(t *testing.T) {
	_, err := NewTwilioSender(TwilioConfig{From: "+1000"})
	assert.Error(t, err)

	_, err = NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "tok"})
	assert.Error(t, err)

	s, err := NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "whatsapp:+14155238886"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestTwilioSender_AddressesChannel(t *testing.T) {
	api := &fakeCreator{}
	s := &TwilioSender{api: api, from: "whatsapp:+14155238886", channel: "whatsapp:"}

	id, err := s.Send(context.Background(), Message{To: "+1555", Body: "Your code is 1."})
	require.NoError(t, err)
	assert.Equal(t, "SM42", id)
	require.NotNil(t, api.params)
	assert.Equal(t, "whatsapp:+1555", *api.params.To)
	assert.Equal(t, "whatsapp:+14155238886", *api.params.From)
	assert.Equal(t, "Your code is 1.", *api.params.Body)

	_, err = s.Send(context.Background(), Message{To: "whatsapp:+1666"})
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+1666", *api.params.To)
}

func TestTwilioSender_Error(t *testing.T) {
	s := &TwilioSender{api: &fakeCreator{err: errors.New("401")}, from: "+1000"}

	_, err := s.Send(context.Background(), Message{To: "+1555"})
	assert.ErrorContains(t, err, "twilio create message")
}

func TestWebhookValidator_RejectsMissingSignature(t *testing.T) {
	v := NewWebhookValidator("token")
	assert.False(t, v.Valid("https://example.com/api/receiveMessage", map[string]string{"Body": "hi"}, ""))
	assert.False(t, v.Valid("https://example.com/api/receiveMessage", map[string]string{"Body": "hi"}, "bogus"))
}
