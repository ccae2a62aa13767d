package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/braingame/waitlist-core/internal/config"
	"github.com/braingame/waitlist-core/internal/database"
	"github.com/braingame/waitlist-core/internal/middleware"
	"github.com/braingame/waitlist-core/internal/modules/subscription"
	"github.com/braingame/waitlist-core/internal/pkg/jwt"
	"github.com/braingame/waitlist-core/internal/pkg/mail"
	"github.com/braingame/waitlist-core/internal/pkg/ratelimit"
	"github.com/braingame/waitlist-core/internal/pkg/tracking"
)

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	logger  *zap.Logger
	svc     *subscription.Service
	limiter *ratelimit.Limiter
	tracker *tracking.Service
}

// New initializes the application: config → stores → limiter → routes.
// With no DSN configured the app runs on in-memory stores, which is the
// zero-config dev mode; the limiter moves to Redis when a redis URL is set
// so that multiple instances share buckets.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	jwt.SetSecret(cfg.AdminSecret)

	var (
		subs   subscription.SubscriberStore
		tokens subscription.TokenStore
	)
	if cfg.DSN != "" {
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		subs = database.NewSubscriberStore(db)
		tokens = database.NewTokenStore(db)
	} else {
		logger.Warn("no dsn configured, using in-memory stores")
		subs = subscription.NewMemorySubscriberStore()
		tokens = subscription.NewMemoryTokenStore()
	}

	var limitStore ratelimit.Store
	if cfg.RedisURL != "" {
		rdb, err := connectRedis(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		limitStore = ratelimit.NewRedisStore(rdb)
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(limitStore, cfg.RateLimit.Max, cfg.RateLimit.Window(), logger)

	var mailer subscription.Mailer
	if cfg.Mail.Enable {
		mailer = mail.NewSubscriptionMailer(mail.New(cfg.Mail), cfg.PublicURL)
	} else {
		logger.Info("mail delivery disabled, tokens are issued but not sent")
	}

	tracker := tracking.New(cfg.Tracking.Endpoint, cfg.Tracking.Key, logger)
	svc := subscription.NewService(subs, tokens, mailer, logger)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	app := &App{
		cfg:     cfg,
		router:  router,
		logger:  logger,
		svc:     svc,
		limiter: limiter,
		tracker: tracker,
	}
	app.registerRoutes()
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

func connectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
