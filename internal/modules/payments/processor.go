package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
)

type Outcome string

const (
	// OutcomePaid: this call won the pending->paid transition and ran the cascade.
	OutcomePaid Outcome = "paid"
	// OutcomeAlreadyPaid: short-circuited before any side effect.
	OutcomeAlreadyPaid Outcome = "already_paid"
	// OutcomeAlreadyApplied: another entry point won the transition first.
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeStillPending   Outcome = "still_pending"
	// OutcomeAmountMismatch: flagged in history, left pending for manual review.
	OutcomeAmountMismatch Outcome = "amount_mismatch"
)

// Processor is the single reconciliation point. The webhook receiver, the
// client verify endpoint and the periodic sweep all call Process with the
// same normalized event and no caller-specific branching; whichever path
// observes "completed" first wins, later observations are no-ops.
type Processor struct {
	orders  *orders.Repo
	cascade *Cascade
	logger  *slog.Logger
}

func NewProcessor(orderRepo *orders.Repo, cascade *Cascade, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{orders: orderRepo, cascade: cascade, logger: logger}
}

func (p *Processor) Process(ctx context.Context, ord orders.Order, ev GatewayEvent) (Outcome, error) {
	// Primary idempotency guard: once paid, nothing else happens.
	if ord.PaymentStatus == orders.PaymentPaid {
		return OutcomeAlreadyPaid, nil
	}

	switch ev.Status {
	case StatusCompleted:
		return p.applyCompleted(ctx, ord, ev)

	case StatusExpired, StatusFailed:
		return p.applyTerminalFailure(ctx, ord, ev)

	case StatusPending:
		// Normal "still waiting" outcome, not an error.
		return OutcomeStillPending, nil

	default:
		return "", fmt.Errorf("process order %s: unknown gateway status %q", ord.OrderNumber, ev.Status)
	}
}

func (p *Processor) applyCompleted(ctx context.Context, ord orders.Order, ev GatewayEvent) (Outcome, error) {
	// Fraud/bug detector, not a transient error: a differing amount is
	// flagged and left for manual review, never retried into acceptance.
	if ev.Amount != nil && !ev.Amount.Equal(ord.Amount) {
		note := fmt.Sprintf("security: amount mismatch: gateway reported %s, order amount %s",
			ev.Amount.StringFixed(2), ord.Amount.StringFixed(2))

		// The order stays pending, so the sweep re-observes the same mismatch
		// every cycle. One history flag and one log line per incident.
		last, err := p.orders.LatestHistoryNote(ctx, ord.OrderNumber)
		if err != nil {
			return "", fmt.Errorf("check amount mismatch flag for %s: %w", ord.OrderNumber, err)
		}
		if last != note {
			if err := p.orders.AppendHistory(ctx, ord.OrderNumber, note); err != nil {
				return "", fmt.Errorf("record amount mismatch for %s: %w", ord.OrderNumber, err)
			}
			p.logger.ErrorContext(ctx, "payment amount mismatch",
				"order_number", ord.OrderNumber,
				"order_amount", ord.Amount.StringFixed(2),
				"gateway_amount", ev.Amount.StringFixed(2))
		}
		return OutcomeAmountMismatch, nil
	}

	in := orders.TransitionInput{
		OrderNumber:        ord.OrderNumber,
		NotPaymentStatusIn: []string{orders.PaymentPaid},
		ToStatus:           orders.StatusConfirmed,
		ToPaymentStatus:    orders.PaymentPaid,
		Note:               "payment completed (gateway " + ord.GatewayName + ")",
	}
	if ev.PaymentID != "" {
		in.GatewayPaymentID = &ev.PaymentID
	}

	applied, err := p.orders.ConditionalTransition(ctx, in)
	if err != nil {
		return "", fmt.Errorf("transition %s to paid: %w", ord.OrderNumber, err)
	}
	if !applied {
		return OutcomeAlreadyApplied, nil
	}

	p.logger.InfoContext(ctx, "order marked paid",
		"order_number", ord.OrderNumber, "gateway", ord.GatewayName, "payment_id", ev.PaymentID)

	// Cascade failures never roll back the payment confirmation.
	res := p.cascade.Run(ctx, ord)
	for _, e := range res.Errors {
		p.logger.ErrorContext(ctx, "cascade side effect failed",
			"order_number", ord.OrderNumber, "err", e)
	}

	return OutcomePaid, nil
}

func (p *Processor) applyTerminalFailure(ctx context.Context, ord orders.Order, ev GatewayEvent) (Outcome, error) {
	note := "payment failed"
	if ev.Status == StatusExpired {
		note = "checkout expired"
	}

	applied, err := p.orders.ConditionalTransition(ctx, orders.TransitionInput{
		OrderNumber:        ord.OrderNumber,
		NotPaymentStatusIn: []string{orders.PaymentPaid, orders.PaymentCancelled},
		ToStatus:           orders.StatusCancelled,
		ToPaymentStatus:    orders.PaymentCancelled,
		Note:               note,
	})
	if err != nil {
		return "", fmt.Errorf("transition %s to cancelled: %w", ord.OrderNumber, err)
	}
	if !applied {
		return OutcomeAlreadyApplied, nil
	}

	p.logger.InfoContext(ctx, "order cancelled",
		"order_number", ord.OrderNumber, "gateway", ord.GatewayName, "reason", string(ev.Status))
	return OutcomeCancelled, nil
}
