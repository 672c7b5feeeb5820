package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisclient "github.com/redis/go-redis/v9"

	"motorent/internal/app/allocation"
	"motorent/internal/app/commands"
	bookingapp "motorent/internal/app/handlers/booking"
	rentalapp "motorent/internal/app/handlers/rental"
	"motorent/internal/app/middleware"
	"motorent/internal/app/outbox"
	"motorent/internal/app/policies"
	"motorent/internal/app/queries"
	authsvc "motorent/internal/app/services/auth"
	"motorent/internal/app/sweep"
	"motorent/internal/app/uow"
	domainauth "motorent/internal/domain/auth"
	domainbooking "motorent/internal/domain/booking"
	domainrental "motorent/internal/domain/rental"
	domainuser "motorent/internal/domain/user"
	"motorent/internal/infra/broker/kafka"
	"motorent/internal/infra/config"
	mongodb "motorent/internal/infra/db/mongo"
	ginserver "motorent/internal/infra/http/gin"
	"motorent/internal/infra/notify"
	"motorent/internal/infra/obs"
	infraoutbox "motorent/internal/infra/outbox"
	"motorent/internal/infra/security"
	"motorent/internal/infra/storage/memory"
	redisstore "motorent/internal/infra/storage/redis"
	"motorent/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application wiring failed", "error", err)
		os.Exit(1)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	for _, bg := range app.background {
		go bg(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers   ginserver.Handlers
	background []func(context.Context)
	ready      func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, error) {
	metrics := obs.NewMetrics()

	var (
		factory     uow.UoWFactory
		users       domainuser.Repository
		outboxStore outbox.Outbox
		background  []func(context.Context)
		ready       = func() error { return nil }
	)

	var outboxDocs *infraoutbox.Store
	switch cfg.StorageMode {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, err
		}
		f := mongodb.NewFactory(client.DB)
		factory = f
		users = f.UserRepo
		outboxDocs = infraoutbox.NewStore(client.DB)
		outboxStore = outboxDocs
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
	default:
		f := memory.NewFactory()
		factory = f
		users = f.UserRepo
		outboxStore = memory.NewOutbox()
	}

	var idStore middleware.IdempotencyStore
	if cfg.RedisAddr != "" {
		rc := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		if err := rc.Ping(ctx).Err(); err != nil {
			return application{}, err
		}
		idStore = redisstore.NewIdempotencyStore(rc, cfg.IdempotencyTTL)
	} else {
		idStore = memory.NewIdempotencyStore()
	}

	var notifier policies.Notifier = notify.LogNotifier{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return application{}, err
		}
		notifier = &notify.KafkaNotifier{Producer: producer, Prefix: cfg.KafkaTopicPrefix}

		relay := &notify.Relay{Sender: notify.LogSender{Logger: logger}, Logger: logger}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, "motorent-notify", nil, relay)
		if err != nil {
			return application{}, err
		}
		background = append(background, func(ctx context.Context) {
			if err := consumer.Run(ctx, []string{cfg.KafkaTopicPrefix + notify.Topic}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification relay stopped", "error", err)
			}
		})

		if outboxDocs != nil {
			worker := &infraoutbox.Worker{
				Store:       outboxDocs,
				Producer:    producer,
				Interval:    cfg.OutboxPollInterval,
				TopicPrefix: cfg.KafkaTopicPrefix,
				Backoff:     cfg.RetryBackoff,
			}
			background = append(background, func(ctx context.Context) {
				if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("outbox worker stopped", "error", err)
				}
			})
		}
	}

	policy := domainbooking.Policy{
		MaxRentalDays:      cfg.MaxRentalDays,
		MaxAdvanceDays:     cfg.MaxAdvanceDays,
		MaxActiveBookings:  cfg.MaxActiveBookings,
		CancellationWindow: cfg.CancellationWindow,
		CheckInWindow:      cfg.CheckInWindow,
		SweepInterval:      cfg.SweepInterval,
	}
	fees := domainrental.DefaultFeePolicy()
	allocator := allocation.Allocator{Logger: logger}
	encoder := outbox.JSONEventEncoder{}

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler(commandBus, bookingapp.CreateBookingCommand{}.Key(), &bookingapp.CreateBookingHandler{
		UoWFactory: factory,
		Allocator:  allocator,
		Policy:     policy,
		Fees:       fees,
		Outbox:     outboxStore,
		Encoder:    encoder,
		Notifier:   notifier,
		Logger:     logger,
		Conflicts:  metrics.AllocationConflicts,
		Created:    metrics.BookingsCreated,
	})
	commands.RegisterHandler(commandBus, bookingapp.ConfirmBookingCommand{}.Key(), &bookingapp.ConfirmBookingHandler{
		UoWFactory: factory,
		Outbox:     outboxStore,
		Encoder:    encoder,
		Notifier:   notifier,
		Logger:     logger,
	})
	commands.RegisterHandler(commandBus, bookingapp.CancelBookingCommand{}.Key(), &bookingapp.CancelBookingHandler{
		UoWFactory: factory,
		Policy:     policy,
		Allocator:  allocator,
		Outbox:     outboxStore,
		Encoder:    encoder,
		Notifier:   notifier,
		Logger:     logger,
	})
	commands.RegisterHandler(commandBus, bookingapp.ScanCheckInCommand{}.Key(), &bookingapp.ScanCheckInHandler{
		UoWFactory: factory,
		Outbox:     outboxStore,
		Encoder:    encoder,
		Logger:     logger,
	})
	commands.RegisterHandler(commandBus, rentalapp.CheckoutCommand{}.Key(), &rentalapp.CheckoutHandler{
		UoWFactory: factory,
		Fees:       fees,
		Outbox:     outboxStore,
		Encoder:    encoder,
		Notifier:   notifier,
		Logger:     logger,
		Completed:  metrics.RentalsCompleted,
	})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, bookingapp.ListBookingsQuery{}.Key(), &bookingapp.ListBookingsHandler{
		UoWFactory: factory,
	})
	queries.RegisterHandler(queryBus, rentalapp.GetRentalQuery{}.Key(), &rentalapp.GetRentalHandler{
		UoWFactory: factory,
	})

	commandBusWithMW := middleware.ChainCommands(
		commandBus,
		middleware.SelfValidation(),
		middleware.Idempotency(idStore, nil),
		middleware.Transaction(factory, nil),
		middleware.OutboxFlush(outboxStore),
	)
	queryBusWithMW := middleware.ChainQueries(queryBus)

	sweeper := &sweep.Sweeper{
		UoWFactory: factory,
		Policy:     policy,
		Allocator:  allocator,
		Outbox:     outboxStore,
		Encoder:    encoder,
		Notifier:   notifier,
		Logger:     logger,
		Reclaimed:  metrics.BookingsReclaimed,
	}
	background = append(background, func(ctx context.Context) {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reclaim sweeper stopped", "error", err)
		}
	})

	var sessions domainauth.SessionStore = memory.NewSessionStore()
	auth := &authsvc.Service{
		Users:      users,
		Sessions:   sessions,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	var photos policies.PhotoStore = s3.NoopUploader{}
	if cfg.S3Endpoint != "" {
		bucket, err := s3.NewPhotoBucket(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			return application{}, err
		}
		photos = bucket
	}

	return application{
		handlers: ginserver.Handlers{
			Auth:    ginserver.AuthHandler{Service: auth, Logger: logger},
			Booking: ginserver.BookingHandler{Commands: commandBusWithMW, Queries: queryBusWithMW},
			Rental:  ginserver.RentalHandler{Commands: commandBusWithMW, Queries: queryBusWithMW, Photos: photos},
			AuthMiddleware: ginserver.AuthMiddleware{
				Service: auth,
				Logger:  logger,
			}.Handle,
			Metrics: metrics,
		},
		background: background,
		ready:      ready,
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
