package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flanux/ledger-core/internal/adapters/balance"
	"github.com/flanux/ledger-core/internal/adapters/broker/rabbitmq"
	"github.com/flanux/ledger-core/internal/adapters/database/pgsql"
	"github.com/flanux/ledger-core/internal/consumers"
	"github.com/flanux/ledger-core/internal/core/domain"
	"github.com/flanux/ledger-core/internal/core/services"
	"github.com/flanux/ledger-core/internal/handlers"
	"github.com/flanux/ledger-core/internal/middleware"
	"github.com/flanux/ledger-core/internal/outbox"
	"github.com/flanux/ledger-core/pkg/config"
	"github.com/flanux/ledger-core/pkg/database"
)

const (
	auditQueue        = "transactions.audit"
	notificationQueue = "transactions.notifications"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)
	logger.Info("Database connection pool established")

	if err := database.RunMigrations(cfg.MigrationsPath, cfg.DatabaseURL, logger); err != nil {
		logger.Error("Failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, pubChannel, err := rabbitmq.Connect(cfg.AMQPURL)
	if err != nil {
		logger.Error("Failed to connect to broker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("Broker connection established")

	queues := []rabbitmq.QueueSpec{
		{Name: auditQueue, RoutingKeys: []string{"transaction.*"}},
		{Name: notificationQueue, RoutingKeys: []string{
			domain.EventTransactionCompleted,
			domain.EventTransactionFailed,
			domain.EventTransactionReversed,
		}},
	}
	if err := rabbitmq.DeclareTopology(pubChannel, cfg.EventExchange, queues, cfg.ConsumerRetryDelay); err != nil {
		logger.Error("Failed to declare broker topology", slog.String("error", err.Error()))
		os.Exit(1)
	}

	publisher, err := rabbitmq.NewConfirmablePublisher(pubChannel, cfg.EventExchange, cfg.PublishConfirmTimeout)
	if err != nil {
		logger.Error("Failed to initialize publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Repositories
	transactionRepo := pgsql.NewTransactionRepository(dbPool)
	ledgerRepo := pgsql.NewLedgerRepository(dbPool)
	outboxRepo := pgsql.NewOutboxRepository(dbPool)
	auditRepo := pgsql.NewAuditRepository(dbPool)
	notificationRepo := pgsql.NewNotificationRepository(dbPool)

	// Services
	balanceClient := balance.NewClient(cfg.BalanceServiceURL, cfg.BalanceTimeout)
	ledgerService := services.NewLedgerService(ledgerRepo)
	transactionService := services.NewTransactionService(transactionRepo, ledgerService, balanceClient)

	// Outbox dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, outbox.Options{
		Interval:    cfg.DispatchInterval,
		BatchSize:   cfg.DispatchBatchSize,
		MaxAttempts: cfg.PublishMaxAttempts,
	}, logger.With(slog.String("component", "outbox_dispatcher")))
	go dispatcher.Run(ctx)

	// Consumers. Each runs on its own channel, which also serves as the
	// publisher for parking exhausted deliveries.
	auditCh, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open audit consumer channel", slog.String("error", err.Error()))
		os.Exit(1)
	}
	auditHandler := consumers.NewAuditConsumer(auditRepo).HandleEvent
	auditConsumer := rabbitmq.NewConsumer(auditQueue, cfg.ConsumerMaxRedeliveries, auditCh, logger)
	auditConsumer.Handle(domain.EventTransactionInitiated, auditHandler)
	auditConsumer.Handle(domain.EventTransactionCompleted, auditHandler)
	auditConsumer.Handle(domain.EventTransactionFailed, auditHandler)
	auditConsumer.Handle(domain.EventTransactionReversed, auditHandler)

	notificationCh, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open notification consumer channel", slog.String("error", err.Error()))
		os.Exit(1)
	}
	notificationHandler := consumers.NewNotificationConsumer(notificationRepo).HandleEvent
	notificationConsumer := rabbitmq.NewConsumer(notificationQueue, cfg.ConsumerMaxRedeliveries, notificationCh, logger)
	notificationConsumer.Handle(domain.EventTransactionCompleted, notificationHandler)
	notificationConsumer.Handle(domain.EventTransactionFailed, notificationHandler)
	notificationConsumer.Handle(domain.EventTransactionReversed, notificationHandler)

	if err := startConsumer(ctx, auditCh, auditQueue, auditConsumer); err != nil {
		logger.Error("Failed to start audit consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := startConsumer(ctx, notificationCh, notificationQueue, notificationConsumer); err != nil {
		logger.Error("Failed to start notification consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// HTTP server
	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(logger))
	r.Use(gin.Recovery())

	handlers.RegisterRoutes(r, transactionService, ledgerService)

	logger.Info("Starting server", slog.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// startConsumer begins consuming from the queue on the consumer's channel and
// runs the dispatch loop. Acknowledgements are manual.
func startConsumer(ctx context.Context, ch *amqp.Channel, queue string, consumer *rabbitmq.Consumer) error {
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return err
	}

	go consumer.Run(ctx, deliveries)
	return nil
}
