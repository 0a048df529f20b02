package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"referral-hunt/internal/config"
	apphttp "referral-hunt/internal/http"
	"referral-hunt/internal/messaging"
	"referral-hunt/internal/otp"
	"referral-hunt/internal/referral"
	"referral-hunt/internal/repository"
	"referral-hunt/internal/repository/postgres"
	"referral-hunt/internal/repository/sqlite"
	"referral-hunt/internal/service"
	"referral-hunt/internal/session"
	"referral-hunt/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo, db, err := openUserRepository(ctx, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	codes := otp.NewMemoryCache(time.Minute, cfg.OTP.MaxAttempts)
	defer codes.Close()

	store, err := session.NewMemoryStore(session.StoreConfig{
		Secret:          cfg.Session.Secret,
		TTL:             cfg.Session.TTL,
		Secure:          cfg.Session.Secure,
		CleanupInterval: 10 * time.Minute,
	})
	if err != nil {
		logger.Fatalf("setup sessions: %v", err)
	}
	defer store.Close()

	sender, err := buildSender(cfg, logger)
	if err != nil {
		logger.Fatalf("setup messaging: %v", err)
	}

	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		MaxConcurrent: cfg.Messaging.Workers,
		SendTimeout:   cfg.Messaging.Timeout,
		Logger:        logger,
	}, sender)
	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatalf("start dispatcher: %v", err)
	}

	authService := service.NewAuthService(
		userRepo,
		codes,
		dispatcher,
		referral.NewGenerator(cfg.Referral.Length, cfg.Referral.FallbackLength, cfg.Referral.MaxAttempts),
		service.AuthConfig{
			OTPTTL:          cfg.OTP.TTL,
			OTPDigits:       cfg.OTP.Digits,
			MessageTemplate: cfg.Twilio.Template,
			Logger:          logger,
		},
	)

	archive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup archive: %v", err)
	}

	var webhook *messaging.WebhookValidator
	if cfg.Twilio.ValidateWebhook {
		webhook = messaging.NewWebhookValidator(cfg.Twilio.AuthToken)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(authService, store, archive, apphttp.HandlerConfig{
		ArchivePrefix:  cfg.Archive.KeyPrefix,
		Webhook:        webhook,
		WebhookURL:     cfg.Twilio.WebhookURL,
		AllowedOrigins: cfg.CORS.Origins,
		CookieName:     cfg.Session.CookieName,
		Logger:         logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	dispatcher.Shutdown()

	logger.Info("bye")
}

func openUserRepository(ctx context.Context, cfg config.Config) (repository.UserRepository, io.Closer, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewUserRepository(db), db, nil
	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewUserRepository(db), db, nil
	}
}

func buildSender(cfg config.Config, logger *logrus.Logger) (messaging.Sender, error) {
	if !cfg.TwilioEnabled() {
		logger.Warn("twilio is not configured; passcodes will only be logged")
		return messaging.LogSender{Logger: logger}, nil
	}
	sender, err := messaging.NewTwilioSender(messaging.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		From:       cfg.Twilio.From,
		Channel:    cfg.Twilio.Channel,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("sending passcodes via twilio from %s", cfg.Twilio.From)
	return sender, nil
}

func buildArchive(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Archive, error) {
	if cfg.Archive.Bucket == "" {
		logger.Info("no archive bucket configured; inbound messages are only logged")
		return storage.NopArchive{}, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Archive.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Archive.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Archive.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("archiving inbound messages to s3 bucket %s (region %s)", cfg.Archive.Bucket, cfg.Archive.Region)
	return storage.NewS3Archive(client, cfg.Archive.Bucket), nil
}
