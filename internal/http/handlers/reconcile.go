package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/worker"
)

type ReconcileHandler struct {
	Logger *slog.Logger
	Worker *worker.ReconcileWorker
}

func NewReconcileHandler(logger *slog.Logger, w *worker.ReconcileWorker) *ReconcileHandler {
	return &ReconcileHandler{Logger: logger, Worker: w}
}

// POST /cron/reconcile
//
// Manual/scheduled trigger for the same sweep the background worker runs.
// Holds no state of its own; everything it changes lands on the orders.
func (h *ReconcileHandler) Trigger(c *gin.Context) {
	sum := h.Worker.RunOnce(c.Request.Context())

	h.Logger.Info("reconcile trigger finished",
		"checked", sum.Checked,
		"confirmed", sum.Confirmed,
		"expired", sum.Expired,
		"still_pending", sum.StillPending,
		"errors", sum.Errors)

	c.JSON(http.StatusOK, sum)
}
