package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"campustickets/config"
	_ "campustickets/docs"
	"campustickets/internal/adapters/auth"
	"campustickets/internal/adapters/email"
	"campustickets/internal/adapters/ratelimit"
	deliveryhttp "campustickets/internal/delivery/http"
	"campustickets/internal/delivery/http/controllers"
	"campustickets/internal/delivery/http/middleware"
	"campustickets/internal/repository/postgres"
	"campustickets/internal/services"
)

// @title Campus Tickets API
// @version 1.0
// @description Ticket issuance, door check-in, and confirmation delivery for campus events.
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Error("ping database", "err", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	ticketRepo := postgres.NewTicketRepository(db)
	eventRepo := postgres.NewEventRepository(db)
	holderRepo := postgres.NewHolderRepository(db)
	deliveryLogRepo := postgres.NewDeliveryLogRepository(db)

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.MailerProvider,
		FromAddress: cfg.MailerFrom,
		FromName:    cfg.MailerFromName,
		SES: email.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		},
	}, logger)
	if err != nil {
		logger.Error("create mailer", "err", err)
		os.Exit(1)
	}

	signer := auth.NewTicketTokenSigner(cfg.TicketTokenSecret, cfg.TicketTokenTTL)
	limiter := ratelimit.NewResendLimiter(redisClient, cfg.ResendLimit, cfg.ResendWindow)
	renderer := email.NewTemplateRenderer()

	dispatcher := services.NewDispatcher(
		deliveryLogRepo, ticketRepo, eventRepo, holderRepo,
		limiter, mailer, renderer, signer, logger,
		services.DispatcherConfig{
			Workers:      cfg.DispatchWorkers,
			MaxAttempts:  cfg.DispatchMaxAttempts,
			PollInterval: cfg.DispatchPoll,
			BaseURL:      cfg.AppBaseURL,
			SupportEmail: cfg.SupportEmail,
		},
	)

	issuanceService := services.NewIssuanceService(ticketRepo, eventRepo, holderRepo, dispatcher, logger)
	checkInService := services.NewCheckInService(ticketRepo, logger)
	queryService := services.NewTicketQueryService(ticketRepo, holderRepo, signer)

	ticketController := controllers.NewTicketController(logger, issuanceService, queryService, checkInService, dispatcher)
	checkInController := controllers.NewCheckInController(logger, checkInService, queryService)
	deliveryController := controllers.NewDeliveryController(logger, deliveryLogRepo)

	mux := deliveryhttp.NewRouter(ticketController, checkInController, deliveryController)
	// Identity wraps logging so request logs carry the holder id.
	var handler http.Handler = middleware.LoggingMiddleware(logger, mux)
	handler = middleware.Identity(handler)
	if len(cfg.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(cfg.CORSAllowedOrigins, handler)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", server.Addr, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
