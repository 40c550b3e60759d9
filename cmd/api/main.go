package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	httptransport "github.com/campus-portal/helpdesk/internal/api/http"
	"github.com/campus-portal/helpdesk/internal/api/http/handlers"
	"github.com/campus-portal/helpdesk/internal/auth"
	"github.com/campus-portal/helpdesk/internal/chat"
	"github.com/campus-portal/helpdesk/internal/config"
	"github.com/campus-portal/helpdesk/internal/events"
	"github.com/campus-portal/helpdesk/internal/observability"
	"github.com/campus-portal/helpdesk/internal/persistence"
	"github.com/campus-portal/helpdesk/internal/repository"
	"github.com/campus-portal/helpdesk/internal/service"
	"github.com/campus-portal/helpdesk/internal/worker"
)

// tokenTTLMinutes only matters for tokens minted locally in tests; the
// identity service sets expiry on the tokens it issues.
const tokenTTLMinutes = 60

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var natsConn *persistence.NATS
	if cfg.Chat.Backend == config.BroadcastNATS {
		natsConn, err = persistence.NewNATS(cfg.NATS, logger)
		if err != nil {
			logger.Fatal("failed to connect nats", zap.Error(err))
		}
		defer natsConn.Close()
	}

	metrics := observability.NewMetrics()

	groupOpts := []chat.GroupOption{
		chat.WithSendBuffer(cfg.Chat.SendBuffer),
		chat.WithMetrics(metrics),
	}
	switch cfg.Chat.Backend {
	case config.BroadcastRedis:
		groupOpts = append(groupOpts, chat.WithBus(chat.NewRedisBus(redis.Client, logger)))
	case config.BroadcastNATS:
		groupOpts = append(groupOpts, chat.WithBus(chat.NewNATSBus(natsConn.Conn, logger)))
	}
	group := chat.NewGroup(logger.Named("chat"), groupOpts...)
	if err := worker.StartChatRelay(ctx, group, cfg.Chat.Backend, logger); err != nil {
		logger.Fatal("failed to start chat relay", zap.Error(err))
	}

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	messageRepo := repository.NewChatMessageRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:    ticketRepo,
		HistoryRepo:   historyRepo,
		MessageRepo:   messageRepo,
		Dispatcher:    dispatcher,
		Logger:        logger,
		TranscriptLen: cfg.Chat.HistoryLimit,
	})
	chatBridge := service.NewChatBridge(ticketRepo, messageRepo, dispatcher, logger, cfg.Chat.HistoryLimit)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, group, logger), logger)

	sessionCfg := chat.SessionConfig{
		HistoryLimit:       cfg.Chat.HistoryLimit,
		RateLimitPerMinute: cfg.Chat.RateLimitPerMinute,
	}
	if cfg.Chat.SanitizeHTML {
		sessionCfg.Sanitizer = chat.NewTextSanitizer(bluemonday.StrictPolicy())
	}
	sessions := chat.NewHandler(group, messageRepo, sessionCfg, logger.Named("chat"), metrics)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, tokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo, cfg.Auth.CookieName, cfg.Chat.ConnectTimeout)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, natsConn, metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AdminTickets:   handlers.NewAdminTicketsHandler(ticketService),
		Chat:           handlers.NewChatHandler(ctx, chatBridge, sessions, cfg.Chat.ConnectTimeout, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	// Cancelling first ends live chat sessions so Shutdown does not wait on them.
	cancel()
	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
