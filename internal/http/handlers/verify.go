package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/http/middleware"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/payments"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/shared/apperr"
)

type VerifyHandler struct {
	Logger    *slog.Logger
	Orders    *orders.Repo
	Gateways  *payments.Registry
	Processor *payments.Processor

	CallTimeout time.Duration
}

func NewVerifyHandler(logger *slog.Logger, orderRepo *orders.Repo, gws *payments.Registry, proc *payments.Processor, callTimeout time.Duration) *VerifyHandler {
	return &VerifyHandler{
		Logger:      logger,
		Orders:      orderRepo,
		Gateways:    gws,
		Processor:   proc,
		CallTimeout: callTimeout,
	}
}

type verifyInput struct {
	OrderNumber string `json:"orderNumber" binding:"required,max=32"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// POST /payments/verify
//
// Called by the success page right after the gateway redirect, possibly
// before the webhook has landed. Idempotent and safe to poll: the answer is
// always definitive-but-honest ("paid" or "still processing"), never a long
// block and never a fabricated failure.
func (h *VerifyHandler) Handle(c *gin.Context) {
	var in verifyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request.", nil))
		return
	}

	ctx := c.Request.Context()

	ord, err := h.Orders.FindByNumber(ctx, in.OrderNumber)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			middleware.Fail(c, apperr.NotFoundErr("Order not found."))
			return
		}
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	switch ord.PaymentStatus {
	case orders.PaymentPaid:
		c.JSON(http.StatusOK, verifyResponse{Success: true, Status: "paid", Message: "Payment confirmed."})
		return
	case orders.PaymentCancelled:
		c.JSON(http.StatusOK, verifyResponse{Success: false, Status: "cancelled", Message: "Payment was not completed."})
		return
	}

	if ord.GatewayCheckoutID == nil {
		c.JSON(http.StatusOK, stillProcessing())
		return
	}

	gw, err := h.Gateways.Get(ord.GatewayName)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	// The timeout bounds the gateway call only; the transition below runs
	// on the request context so a slow reply cannot starve it.
	callCtx, cancel := context.WithTimeout(ctx, h.CallTimeout)
	ev, err := gw.FetchStatus(callCtx, *ord.GatewayCheckoutID)
	cancel()
	if err != nil {
		// Transient gateway trouble is not the customer's problem; the
		// sweep will settle the order. Report "still processing".
		h.Logger.Warn("verify: fetch status failed",
			"order_number", ord.OrderNumber, "gateway", ord.GatewayName, "err", err)
		c.JSON(http.StatusOK, stillProcessing())
		return
	}

	outcome, err := h.Processor.Process(ctx, ord, ev)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	switch outcome {
	case payments.OutcomePaid, payments.OutcomeAlreadyPaid:
		c.JSON(http.StatusOK, verifyResponse{Success: true, Status: "paid", Message: "Payment confirmed."})
	case payments.OutcomeCancelled:
		c.JSON(http.StatusOK, verifyResponse{Success: false, Status: "cancelled", Message: "Payment was not completed."})
	case payments.OutcomeAlreadyApplied:
		// Another entry point transitioned the order mid-request; report
		// whatever it landed on.
		fresh, err := h.Orders.FindByNumber(ctx, ord.OrderNumber)
		if err != nil {
			middleware.Fail(c, apperr.Wrap(err))
			return
		}
		if fresh.PaymentStatus == orders.PaymentPaid {
			c.JSON(http.StatusOK, verifyResponse{Success: true, Status: "paid", Message: "Payment confirmed."})
			return
		}
		c.JSON(http.StatusOK, verifyResponse{Success: false, Status: fresh.PaymentStatus, Message: "Payment was not completed."})
	default:
		// still_pending and amount_mismatch both read as "processing" to
		// the customer; the latter is already flagged for manual review.
		c.JSON(http.StatusOK, stillProcessing())
	}
}

func stillProcessing() verifyResponse {
	return verifyResponse{Success: false, Status: "pending", Message: "Payment is still being processed. Please check back shortly."}
}
