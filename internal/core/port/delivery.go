package port

import "context"

// Message is a notification addressed to an account holder.
type Message struct {
	To      string
	Subject string
	Body    string
}

// MessageDelivery hands a message to an external transport (SMTP, SMS
// gateway). Fire-and-forget: the core logs failures and never retries.
type MessageDelivery interface {
	Send(ctx context.Context, msg Message) error
}
