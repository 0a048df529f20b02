// Package messaging delivers passcodes to users' devices.
package messaging

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultTemplate is the passcode message body; %s is replaced by the code.
const DefaultTemplate = "Your BytesCare Hunt code is %s."

// Message is an outbound text addressed to a phone number.
type Message struct {
	To   string
	Body string
}

// OTPMessage builds the passcode message for phone using template.
func OTPMessage(template, phone, code string) Message {
	if template == "" {
		template = DefaultTemplate
	}
	return Message{To: phone, Body: fmt.Sprintf(template, code)}
}

// Sender hands a message to a delivery provider and returns the provider's
// message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger logrus.FieldLogger
}

func (s LogSender) Send(ctx context.Context, msg Message) (string, error) {
	s.Logger.WithField("to", msg.To).Infof("outbound message: %s", msg.Body)
	return "", nil
}
