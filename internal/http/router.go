package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/config"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/http/handlers"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/http/middleware"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/payments"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/worker"
)

type RouterDeps struct {
	Logger  *slog.Logger
	Cfg     *config.Service
	Orders  *orders.Repo
	Service *payments.Service

	Gateways        *payments.Registry
	NotificationLog *payments.NotificationLog
	Processor       *payments.Processor
	Sweeper         *worker.ReconcileWorker
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.ErrorHandler(d.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	set := d.Cfg.Settings()

	checkout := handlers.NewCheckoutHandler(d.Logger, d.Service, d.Cfg)
	r.POST("/checkout", checkout.Create)

	verify := handlers.NewVerifyHandler(d.Logger, d.Orders, d.Gateways, d.Processor, set.GatewayTimeout)
	r.POST("/payments/verify", verify.Handle)

	webhook := handlers.NewWebhookHandler(d.Logger, d.Gateways, d.NotificationLog, d.Orders, d.Processor, set.GatewayTimeout)
	r.POST("/webhooks/:gateway", webhook.Handle)

	reconcile := handlers.NewReconcileHandler(d.Logger, d.Sweeper)
	cron := r.Group("/cron", middleware.RequireCronSecret(func() string {
		return d.Cfg.Settings().CronSecret
	}))
	cron.POST("/reconcile", reconcile.Trigger)

	return r
}
