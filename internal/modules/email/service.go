package email

import (
	"context"
	"fmt"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/mailer"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
)

// Sender composes the customer-facing payment emails. Delivery mechanics live
// behind the mailer boundary.
type Sender struct {
	FromName    string
	FromAddress string
}

func (s Sender) SendPaymentConfirmation(ctx context.Context, svc mailer.Service, ord orders.Order) error {
	total := ord.Amount.StringFixed(2) + " " + ord.Currency

	subject := fmt.Sprintf("Payment received - order %s", ord.OrderNumber)
	textBody := "Hi " + ord.CustomerName + ",\n\n" +
		"We received your payment for order " + ord.OrderNumber + ".\n" +
		"Total: " + total + "\n\n" +
		"See you on the field!\nWinter League Cricket"

	htmlBody := `
<html>
  <body style="font-family: sans-serif;">
    <h2>Payment received</h2>
    <p>Hi ` + ord.CustomerName + `,</p>
    <p>We received your payment.</p>
    <p><strong>Order:</strong> ` + ord.OrderNumber + `</p>
    <p><strong>Total:</strong> ` + total + `</p>
    <p>See you on the field!</p>
    <p>Winter League Cricket</p>
  </body>
</html>
`

	return svc.Send(ctx, mailer.Email{
		FromName: s.FromName,
		From:     s.FromAddress,
		To:       []string{ord.CustomerEmail},
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	})
}
