package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/payments"
)

// ReconcileWorker is the periodic repair path for orders whose webhook never
// arrived: it polls the gateway for every pending order with a checkout
// reference and feeds the result through the same processor the webhook and
// verify paths use.
type ReconcileWorker struct {
	orders    *orders.Repo
	gateways  *payments.Registry
	processor *payments.Processor
	logger    *slog.Logger

	interval    time.Duration
	window      time.Duration
	callTimeout time.Duration
}

func NewReconcileWorker(
	orderRepo *orders.Repo,
	gateways *payments.Registry,
	processor *payments.Processor,
	logger *slog.Logger,
	interval, window, callTimeout time.Duration,
) *ReconcileWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileWorker{
		orders:      orderRepo,
		gateways:    gateways,
		processor:   processor,
		logger:      logger,
		interval:    interval,
		window:      window,
		callTimeout: callTimeout,
	}
}

type OrderResult struct {
	OrderNumber string `json:"orderNumber"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
}

type Summary struct {
	Checked      int           `json:"checked"`
	Confirmed    int           `json:"confirmed"`
	Expired      int           `json:"expired"`
	StillPending int           `json:"stillPending"`
	Errors       int           `json:"errors"`
	Details      []OrderResult `json:"details"`
}

// Run drives the sweep on a fixed interval until the context is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reconciliation worker started",
		"interval", w.interval, "window", w.window)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			sum := w.RunOnce(ctx)
			if sum.Checked > 0 || sum.Errors > 0 {
				w.logger.Info("reconciliation sweep finished",
					"checked", sum.Checked,
					"confirmed", sum.Confirmed,
					"expired", sum.Expired,
					"still_pending", sum.StillPending,
					"errors", sum.Errors)
			}
		}
	}
}

// RunOnce sweeps every candidate exactly once. Each order is processed in
// isolation: a slow or failing gateway call is bounded by the per-call
// timeout and recorded per order, never aborting the rest of the sweep.
func (w *ReconcileWorker) RunOnce(ctx context.Context) Summary {
	var sum Summary

	candidates, err := w.orders.FindPendingWithCheckout(ctx, w.window)
	if err != nil {
		w.logger.Error("reconciliation sweep: listing candidates failed", "err", err)
		sum.Errors++
		sum.Details = append(sum.Details, OrderResult{Error: fmt.Sprintf("list candidates: %v", err)})
		return sum
	}

	for _, ord := range candidates {
		sum.Checked++
		res := w.reconcileOne(ctx, ord)
		sum.Details = append(sum.Details, res)

		switch {
		case res.Error != "":
			sum.Errors++
		case res.Outcome == string(payments.OutcomePaid), res.Outcome == string(payments.OutcomeAlreadyPaid):
			sum.Confirmed++
		case res.Outcome == string(payments.OutcomeCancelled):
			sum.Expired++
		default:
			sum.StillPending++
		}
	}
	return sum
}

func (w *ReconcileWorker) reconcileOne(ctx context.Context, ord orders.Order) (res OrderResult) {
	res.OrderNumber = ord.OrderNumber

	// A panic in one order's handling must not take the sweep down.
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
			w.logger.Error("reconciliation sweep: recovered panic",
				"order_number", ord.OrderNumber, "panic", r)
		}
	}()

	gw, err := w.gateways.Get(ord.GatewayName)
	if err != nil {
		res.Error = fmt.Sprintf("gateway %q: %v", ord.GatewayName, err)
		return res
	}

	// The timeout bounds the gateway call only; a reply landing near the
	// deadline must not starve the transition that follows.
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	ev, err := gw.FetchStatus(callCtx, *ord.GatewayCheckoutID)
	cancel()
	if err != nil {
		// Transient: the order stays a candidate for the next cycle.
		res.Error = err.Error()
		w.logger.Warn("reconciliation sweep: fetch status failed",
			"order_number", ord.OrderNumber, "gateway", ord.GatewayName, "err", err)
		return res
	}

	outcome, err := w.processor.Process(ctx, ord, ev)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Outcome = string(outcome)
	return res
}
