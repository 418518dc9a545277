package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/config"
	apphttp "github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/http"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/mailer"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/email"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/payments"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/teams"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/worker"
)

func main() {
	// Load .env file (ignore error if not found - prod uses real env vars)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.NewService()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	set := cfg.Settings()

	db, err := gorm.Open(mysql.Open(set.DBDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	orderRepo := orders.NewRepo(db)
	teamRepo := teams.NewRepo(db)

	httpClient := &http.Client{Timeout: set.GatewayTimeout}
	registry := payments.NewRegistry(
		payments.NewPayFast(cfg, httpClient),
		payments.NewYoco(cfg, httpClient),
	)

	mail := mailer.NewSMTPMailer(set.SMTP)
	sender := email.Sender{FromName: set.SMTP.FromName, FromAddress: set.SMTP.FromAddress}

	cascade := payments.NewCascade(orderRepo, teamRepo, mail, sender, logger)
	processor := payments.NewProcessor(orderRepo, cascade, logger)
	checkoutSvc := payments.NewService(orderRepo, registry, logger)
	notificationLog := payments.NewNotificationLog(db)

	sweeper := worker.NewReconcileWorker(
		orderRepo, registry, processor, logger,
		set.SweepInterval, set.SweepWindow, set.GatewayTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sweeper.Run(ctx)

	r := apphttp.NewRouter(apphttp.RouterDeps{
		Logger:          logger,
		Cfg:             cfg,
		Orders:          orderRepo,
		Service:         checkoutSvc,
		Gateways:        registry,
		NotificationLog: notificationLog,
		Processor:       processor,
		Sweeper:         sweeper,
	})

	logger.Info("listening", "addr", set.ListenAddr)
	if err := r.Run(set.ListenAddr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
