package mailer

import "context"

type Service interface {
	Send(ctx context.Context, e Email) error
}

// Email is a transactional message: payment confirmations and similar
// single-purpose notices. There is no Cc/Bcc surface; everything this
// service sends goes to exactly the customer on the order.
type Email struct {
	FromName string // display name, optional
	From     string // envelope sender, required

	To      []string
	Subject string

	TextBody string
	HTMLBody string
}
