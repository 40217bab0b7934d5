package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalith-99/campuslink/internal/api"
	"github.com/lalith-99/campuslink/internal/cache"
	"github.com/lalith-99/campuslink/internal/chat"
	"github.com/lalith-99/campuslink/internal/config"
	"github.com/lalith-99/campuslink/internal/db"
	"github.com/lalith-99/campuslink/internal/fanout"
	"github.com/lalith-99/campuslink/internal/middleware"
	"github.com/lalith-99/campuslink/internal/notify"
	"github.com/lalith-99/campuslink/internal/observ"
	"github.com/lalith-99/campuslink/internal/realtime"
	"github.com/lalith-99/campuslink/internal/repository/postgres"
	"github.com/lalith-99/campuslink/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no parent deadline; connecting takes as long as it
	// takes. Once serving, each action carries its own context.
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	pool := database.Pool()
	messageRepo := postgres.NewMessageStore(pool)
	membershipRepo := postgres.NewMembershipStore(pool)
	notificationRepo := postgres.NewNotificationStore(pool)
	userRepo := postgres.NewUserStore(pool)

	directory := realtime.NewDirectory(logger, cfg.TypingTTL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go directory.Run(ctx)

	chatSvc := chat.NewService(messageRepo, membershipRepo, directory, logger)
	publisher := fanout.NewPublisher(directory, logger)

	unreadCache := cache.NewUnreadCache(redisClient)
	channels := []notify.Channel{
		notify.NewLogChannel("email", logger),
		notify.NewLogChannel("sms", logger),
		notify.NewLogChannel("push", logger),
	}
	notifySvc := notify.NewService(notificationRepo, membershipRepo, publisher, unreadCache, channels, logger)

	authHandler := api.NewAuthHandler(userRepo, cfg.JWTSecret, cfg.TokenTTL, logger)
	notificationHandler := api.NewNotificationHandler(notifySvc, logger)
	wsHandler := ws.NewHandler(cfg.JWTSecret, directory, chatSvc, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	// Health check is public: load balancers hit it unauthenticated.
	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	srv.POST("/v1/auth/login", authHandler.Login)

	// The socket endpoint authenticates itself from the query token;
	// it cannot sit behind the header middleware.
	srv.GET("/v1/ws", wsHandler.Serve)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	v1.GET("/notifications", notificationHandler.List)
	v1.GET("/notifications/unread-count", notificationHandler.UnreadCount)
	v1.PATCH("/notifications/read-all", notificationHandler.MarkAllRead)
	v1.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
	v1.DELETE("/notifications/read", notificationHandler.DeleteAllRead)
	v1.DELETE("/notifications/:id", notificationHandler.Delete)

	logger.Info("starting CampusLink realtime core",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	return srv.Run(":" + cfg.Port)
}
