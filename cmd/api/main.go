package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/sales-eval-api/api/swagger"
	"github.com/noah-isme/sales-eval-api/internal/handler"
	"github.com/noah-isme/sales-eval-api/internal/middleware"
	"github.com/noah-isme/sales-eval-api/internal/repository"
	"github.com/noah-isme/sales-eval-api/internal/service"
	"github.com/noah-isme/sales-eval-api/pkg/cache"
	"github.com/noah-isme/sales-eval-api/pkg/config"
	"github.com/noah-isme/sales-eval-api/pkg/database"
	"github.com/noah-isme/sales-eval-api/pkg/extract"
	"github.com/noah-isme/sales-eval-api/pkg/logger"
	"github.com/noah-isme/sales-eval-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sales-eval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sales-eval-api/pkg/middleware/requestid"
	"github.com/noah-isme/sales-eval-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

// @title Sales Evaluation API
// @version 1.0.0
// @description Equipment evaluation tracking with compliance checks and customer e-signatures
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	metrics := service.NewMetricsService()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, redisClient != nil)

	backend, err := newStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	sender := newMailer(cfg, logr)

	validate := validator.New()

	users := repository.NewUserRepository(db)
	accounts := repository.NewAccountRepository(db)
	skus := repository.NewSKURepository(db)
	evaluations := repository.NewEvaluationRepository(db)
	announcements := repository.NewAnnouncementRepository(db)
	posts := repository.NewPostRepository(db)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sales-eval-api",
	})
	userSvc := service.NewUserService(users, validate, logr)
	skuSvc := service.NewSKUService(skus, cacheSvc, validate, logr)
	accountSvc := service.NewAccountService(accounts, evaluations, users, validate, logr)
	complianceSvc := service.NewComplianceService(evaluations, skuSvc, metrics, logr, service.ComplianceConfig{
		LookbackDays:    cfg.Compliance.LookbackDays,
		EligibilityDays: cfg.Compliance.EligibilityDays,
	})
	evaluationSvc := service.NewEvaluationService(evaluations, accounts, complianceSvc, skuSvc, users, validate, logr)
	notificationSvc := service.NewNotificationService(sender, metrics, logr, service.NotificationConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		FromName:   cfg.Mail.FromName,
	})
	signatureSvc := service.NewSignatureService(evaluations, accounts, skuSvc, sender, notificationSvc, users, metrics, validate, logr, service.SignatureConfig{
		Origin:         cfg.Signature.Origin,
		FromName:       cfg.Mail.FromName,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	announcementSvc := service.NewAnnouncementService(announcements, validate, logr)
	postSvc := service.NewPostService(posts, validate, logr)
	uploadSvc := service.NewUploadService(backend, logr, service.UploadConfig{
		MaxFileSizeBytes: cfg.Storage.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Storage.AllowedMIMEs,
	})
	var extractor *extract.Extractor
	if cfg.Extraction.Enabled {
		extractor = extract.New(extract.NewOpenAICompleter(extract.OpenAIConfig{
			APIKey:  cfg.Extraction.APIKey,
			Model:   cfg.Extraction.Model,
			BaseURL: cfg.Extraction.BaseURL,
		}), cfg.Extraction.Timeout, logr)
	}
	extractionSvc := service.NewExtractionService(cfg.Extraction.Enabled, uploadSvc, extractor, validate, logr)

	checks := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(logger.Recovery(logr))
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.MaxMultipartMemory = cfg.Storage.MaxFileSizeBytes

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Accounts:    handler.NewAccountHandler(accountSvc),
		SKUs:        handler.NewSKUHandler(skuSvc),
		Evaluations: handler.NewEvaluationHandler(evaluationSvc),
		Signatures:  handler.NewSignatureHandler(signatureSvc),
		Feed:        handler.NewFeedHandler(announcementSvc, postSvc),
		Uploads:     handler.NewUploadHandler(uploadSvc, extractionSvc),
		Metrics:     handler.NewMetricsHandler(metrics, checks),
	}, handler.RouteDeps{
		Prefix: cfg.APIPrefix,
		Tokens: authSvc,
		Audit:  users,
		Logger: logr,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	notificationSvc.Start(gctx)
	defer notificationSvc.Stop()

	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		runMaintenance(gctx, cfg.Storage, uploadSvc, authSvc, logr)
		return nil
	})

	return g.Wait()
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.Storage.Driver == config.StorageDriverS3 {
		s3, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.Storage.S3Bucket,
			Region:          cfg.Storage.S3Region,
			AccessKeyID:     cfg.Storage.S3AccessKeyID,
			SecretAccessKey: cfg.Storage.S3SecretKey,
			URLTTL:          cfg.Storage.SignedURLTTL,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	local, err := storage.NewLocalStorage(cfg.Storage.LocalDir, signer, cfg.APIPrefix+"/files")
	if err != nil {
		return nil, err
	}
	return local, nil
}

func newMailer(cfg *config.Config, logr *zap.Logger) mailer.Sender {
	if cfg.Mail.Driver == config.MailDriverSMTP {
		return mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:        cfg.Mail.Host,
			Port:        cfg.Mail.Port,
			Username:    cfg.Mail.Username,
			Password:    cfg.Mail.Password,
			FromAddress: cfg.Mail.FromAddress,
			FromName:    cfg.Mail.FromName,
		})
	}
	return mailer.NewLogSender(logr)
}

// runMaintenance prunes expired uploads and refresh tokens until ctx is done.
func runMaintenance(ctx context.Context, cfg config.StorageConfig, uploads *service.UploadService, auth *service.AuthService, logr *zap.Logger) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.CleanupInterval > 0 {
				if _, err := uploads.Cleanup(cfg.SignedURLTTL); err != nil {
					logr.Warn("upload cleanup failed", zap.Error(err))
				}
			}
			if n, err := auth.PruneRefreshTokens(ctx); err != nil {
				logr.Warn("refresh token pruning failed", zap.Error(err))
			} else if n > 0 {
				logr.Info("expired refresh tokens pruned", zap.Int64("count", n))
			}
		}
	}
}
