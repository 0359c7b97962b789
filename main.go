package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"messaging-service/internal/config"
	"messaging-service/internal/conversations"
	"messaging-service/internal/db"
	"messaging-service/internal/grpcserver"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const (
	auditRoutingKey = "audit.messaging"
	shutdownTimeout = 10 * time.Second
	healthInterval  = 10 * time.Second
)

func main() {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:          "messaging-service",
		Short:        "Direct messaging conversations, read state and realtime updates",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("port", "8083", "HTTP listen port")
	root.PersistentFlags().String("log.level", "info", "log level: debug|info|warn|error")
	_ = v.BindPFlag("port", root.PersistentFlags().Lookup("port"))
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log.level"))

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and gRPC health servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Log)
			database, err := db.Connect(cfg.DSN)
			if err != nil {
				return err
			}
			defer database.Close()
			return db.Migrate(cmd.Context(), database)
		},
	}
	root.AddCommand(serve, migrate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("messaging-service exit", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.Setup(cfg.Log)

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTelEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	database, err := db.Connect(cfg.DSN)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.Migrate(ctx, database); err != nil {
		return err
	}

	messageRepo := repositories.NewMessageRepo(database, cfg.StoreTimeout)
	profileRepo := repositories.NewProfileRepo(database, cfg.StoreTimeout)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer publisher.Close()
	logger.Info("audit publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment)

	feed, changes, closeFeed := changeFeed(cfg, logger)
	defer closeFeed()

	if cfg.JWTSecret == "" {
		logger.Warn("jwt.secret is empty, every authenticated request will be rejected")
	}
	validator := middleware.NewTokenValidator(cfg.JWTSecret)
	hub := ws.NewHub(publisher)
	aggregator := conversations.NewAggregator(messageRepo, cfg.Window, logger)

	conversationHandler := handlers.NewConversationHandler(aggregator, messageRepo, profileRepo, hub, changes, audit,
		handlers.ConversationHandlerConfig{DisplayLimit: cfg.DisplayLimit, ThreadLimit: cfg.ThreadLimit}, logger)
	messageHandler := handlers.NewMessageHandler(messageRepo, hub, changes, audit, logger)
	profileHandler := handlers.NewProfileHandler(profileRepo, audit)
	conversationsWS := ws.NewConversationsWebSocketHandler(hub, aggregator, profileRepo, feed, validator, cfg.DisplayLimit,
		realtime.ListenerConfig{MinInterval: cfg.MinInterval, SettleDelay: cfg.SettleDelay}, logger)

	router := newRouter(cfg, database, validator, conversationHandler, messageHandler, profileHandler, conversationsWS, audit)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	health := grpcserver.New()
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return health.Serve(lis)
	})
	g.Go(func() error {
		health.Watch(gctx, healthInterval, database.PingContext)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		health.Stop()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// changeFeed connects the RabbitMQ change feed, falling back to an
// in-process broker that only reaches views served by this instance.
func changeFeed(cfg config.Config, logger *slog.Logger) (realtime.Feed, realtime.Publisher, func()) {
	cf, err := rabbitmq.NewChangeFeed(cfg.AMQPURL, cfg.ChangeExchange)
	if err != nil {
		logger.Warn("change feed unavailable, using in-process broker", "error", err)
		broker := realtime.NewBroker()
		return broker, broker, func() {}
	}
	return cf, cf, func() { _ = cf.Close() }
}

func newRouter(
	cfg config.Config,
	database *sqlx.DB,
	validator *middleware.TokenValidator,
	conversationHandler *handlers.ConversationHandler,
	messageHandler *handlers.MessageHandler,
	profileHandler *handlers.ProfileHandler,
	conversationsWS *ws.ConversationsWebSocketHandler,
	audit *telemetry.AuditEmitter,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", middleware.AuthMiddleware(validator))

	authed.GET("/conversations", conversationHandler.ListConversations)
	authed.GET("/conversations/:user_id/messages", conversationHandler.GetThread)
	authed.POST("/conversations/:user_id/read", conversationHandler.MarkConversationRead)

	authed.POST("/messages", messageHandler.SendMessage)
	authed.GET("/messages/unread-count", messageHandler.UnreadCount)
	authed.POST("/messages/:message_id/read", messageHandler.MarkMessageRead)
	authed.DELETE("/messages/:message_id", messageHandler.DeleteMessage)

	authed.GET("/profiles/:user_id", profileHandler.GetProfile)
	authed.PUT("/profiles/me", profileHandler.UpdateMyProfile)

	handlers.RegisterDebugRoutes(authed, audit, cfg.Environment == "development")

	router.GET("/ws/conversations", conversationsWS.Handle)
	return router
}
