package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
)

// Service creates orders and their gateway checkouts. It follows a
// three-phase shape: persist the order, call the gateway outside any
// transaction, then store the checkout reference. A gateway failure leaves
// the order pending with no checkout ref; the caller may retry, and the
// sweep ignores refless orders.
type Service struct {
	orders   *orders.Repo
	gateways *Registry
	logger   *slog.Logger
}

func NewService(orderRepo *orders.Repo, gateways *Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orders: orderRepo, gateways: gateways, logger: logger}
}

type CheckoutInput struct {
	Kind          string
	CustomerName  string
	CustomerEmail string
	Amount        decimal.Decimal
	Currency      string
	ItemName      string

	// Set for registration orders; the revenue-entry idempotency reference.
	FormSubmissionID *string

	GatewayName string
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
}

type CheckoutOutput struct {
	OrderNumber string
	CheckoutID  string
	RedirectURL string
}

func (s *Service) CreateOrderCheckout(ctx context.Context, in CheckoutInput) (CheckoutOutput, error) {
	gw, err := s.gateways.Get(in.GatewayName)
	if err != nil {
		return CheckoutOutput{}, err
	}

	ord := orders.Order{
		OrderNumber:      orders.NewOrderNumber(time.Now()),
		Kind:             in.Kind,
		CustomerEmail:    in.CustomerEmail,
		CustomerName:     in.CustomerName,
		Amount:           in.Amount,
		Currency:         in.Currency,
		GatewayName:      gw.Name(),
		FormSubmissionID: in.FormSubmissionID,
	}
	if err := s.orders.Create(ctx, &ord); err != nil {
		return CheckoutOutput{}, fmt.Errorf("create order: %w", err)
	}

	sess, err := gw.CreateCheckout(ctx, CheckoutRequest{
		OrderNumber:   ord.OrderNumber,
		Amount:        ord.Amount,
		Currency:      ord.Currency,
		CustomerEmail: ord.CustomerEmail,
		ItemName:      in.ItemName,
		ReturnURL:     in.ReturnURL,
		CancelURL:     in.CancelURL,
		NotifyURL:     in.NotifyURL,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "checkout creation failed",
			"order_number", ord.OrderNumber, "gateway", gw.Name(), "err", err)
		return CheckoutOutput{}, fmt.Errorf("create checkout for %s: %w", ord.OrderNumber, err)
	}

	if err := s.orders.SetCheckoutRef(ctx, ord.OrderNumber, gw.Name(), sess.CheckoutID); err != nil {
		return CheckoutOutput{}, fmt.Errorf("store checkout ref for %s: %w", ord.OrderNumber, err)
	}

	s.logger.InfoContext(ctx, "checkout created",
		"order_number", ord.OrderNumber, "gateway", gw.Name(), "checkout_id", sess.CheckoutID)

	return CheckoutOutput{
		OrderNumber: ord.OrderNumber,
		CheckoutID:  sess.CheckoutID,
		RedirectURL: sess.RedirectURL,
	}, nil
}
