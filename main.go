package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"im-message-service/internal/config"
	"im-message-service/internal/db"
	"im-message-service/internal/handlers"
	"im-message-service/internal/middleware"
	"im-message-service/internal/observability"
	"im-message-service/internal/profile"
	"im-message-service/internal/push"
	"im-message-service/internal/rabbitmq"
	"im-message-service/internal/repositories"
	"im-message-service/internal/service"
	"im-message-service/internal/telemetry"
	"im-message-service/internal/ws"
)

const serviceName = "im-message-service"

func main() {
	cfg := config.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "dev" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPAddr, serviceName, cfg.Environment)
	if err != nil {
		logrus.Fatalf("init tracing: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logrus.Fatalf("connect database: %v", err)
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	logrus.Infof("push publisher mode=%s", rabbitmq.PublisherMode(publisher))

	hub := ws.NewHub()
	sink := push.NewGatewaySink(hub, publisher)

	userRepo := repositories.NewUserRepo(database)
	profiles := profile.NewCachedProvider(userRepo, rdb, 10*time.Minute)

	svc := service.NewService(
		service.WrapDB(database),
		repositories.NewTalkRepo(),
		repositories.NewSequenceRepo(),
		repositories.NewMessageRepo(),
		repositories.NewSessionRepo(),
		repositories.NewDeletionRepo(),
		repositories.NewForwardRepo(),
		profiles,
		sink,
	)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() {
		svc.SweepRevokedTails(context.Background(), 500)
	}); err != nil {
		logrus.Fatalf("schedule session sweep: %v", err)
	}
	sweeper.Start()

	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		otelgin.Middleware(serviceName),
		observability.HTTPMetricsMiddleware(),
		gin.Recovery(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gateway := ws.NewGatewayHandler(hub, func(token string) (int64, error) {
		return middleware.VerifyToken(cfg.JWTSecret, token)
	})
	router.GET("/ws", gateway.Handle)

	api := router.Group("/api/v1", middleware.AuthMiddleware(cfg.JWTSecret))
	handlers.NewMessageHandler(svc).Register(api)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logrus.Infof("message service listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("http shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logrus.Warnf("tracing shutdown: %v", err)
	}
}
