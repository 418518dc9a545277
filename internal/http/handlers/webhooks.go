package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/payments"
)

type WebhookHandler struct {
	Logger    *slog.Logger
	Gateways  *payments.Registry
	Log       *payments.NotificationLog
	Orders    *orders.Repo
	Processor *payments.Processor

	// Bound applied to the FetchStatus re-query for unsigned notifications.
	LookupTimeout time.Duration
}

func NewWebhookHandler(logger *slog.Logger, gws *payments.Registry, log *payments.NotificationLog, orderRepo *orders.Repo, proc *payments.Processor, lookupTimeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		Logger:        logger,
		Gateways:      gws,
		Log:           log,
		Orders:        orderRepo,
		Processor:     proc,
		LookupTimeout: lookupTimeout,
	}
}

// POST /webhooks/:gateway
//
// Always answers 200 once the gateway is recognized: a non-200 would feed the
// gateway's retry storm, and every failure mode below is either repaired by
// the sweep or needs manual review, not redelivery.
func (h *WebhookHandler) Handle(c *gin.Context) {
	gw, err := h.Gateways.Get(c.Param("gateway"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "unknown gateway"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Logger.Warn("webhook body read failed", "gateway", gw.Name(), "err", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	notice, err := gw.DecodeNotification(c.Request.Header, body)
	if err != nil {
		// Malformed or badly signed payloads are logged and acknowledged.
		h.Logger.Warn("webhook rejected",
			"gateway", gw.Name(), "err", err,
			"bad_signature", errors.Is(err, payments.ErrBadSignature))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ctx := c.Request.Context()

	logID, duplicate, err := h.Log.Record(ctx, gw.Name(), notice.EventID, string(notice.Event.Status), body)
	if err != nil {
		h.Logger.Error("webhook event persist failed",
			"gateway", gw.Name(), "event_id", notice.EventID, "err", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if duplicate {
		h.Logger.Info("webhook event deduplicated",
			"gateway", gw.Name(), "event_id", notice.EventID)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ev := notice.Event
	if notice.RequiresLookup {
		// The body is unsigned: state comes from the gateway, not the payload.
		lookupCtx, cancel := context.WithTimeout(ctx, h.LookupTimeout)
		fetched, err := gw.FetchStatus(lookupCtx, notice.CheckoutID)
		cancel()
		if err != nil {
			h.failed(ctx, logID, gw.Name(), notice.EventID, "status lookup failed", err)
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		ev = fetched
	}

	ord, err := h.resolveOrder(ctx, gw.Name(), notice)
	if err != nil {
		h.failed(ctx, logID, gw.Name(), notice.EventID, "order lookup failed", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	outcome, err := h.Processor.Process(ctx, ord, ev)
	if err != nil {
		h.failed(ctx, logID, gw.Name(), notice.EventID, "processing failed", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if err := h.Log.MarkProcessed(ctx, logID); err != nil {
		h.Logger.Error("webhook event mark processed failed",
			"gateway", gw.Name(), "event_id", notice.EventID, "err", err)
	}

	h.Logger.Info("webhook event processed",
		"gateway", gw.Name(), "event_id", notice.EventID,
		"order_number", ord.OrderNumber, "outcome", string(outcome))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *WebhookHandler) resolveOrder(ctx context.Context, gatewayName string, notice payments.Notification) (orders.Order, error) {
	if notice.OrderNumber != "" {
		return h.Orders.FindByNumber(ctx, notice.OrderNumber)
	}
	return h.Orders.FindByCheckout(ctx, gatewayName, notice.CheckoutID)
}

func (h *WebhookHandler) failed(ctx context.Context, logID, gateway, eventID, msg string, err error) {
	h.Logger.Error("webhook "+msg,
		"gateway", gateway, "event_id", eventID, "err", err)
	if markErr := h.Log.MarkFailed(ctx, logID, msg+": "+err.Error()); markErr != nil {
		h.Logger.Error("webhook event mark failed failed",
			"gateway", gateway, "event_id", eventID, "err", markErr)
	}
}
