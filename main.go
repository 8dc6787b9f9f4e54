package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"market-chat/internal/config"
	"market-chat/internal/db"
	"market-chat/internal/feed"
	"market-chat/internal/handlers"
	"market-chat/internal/middleware"
	"market-chat/internal/notify"
	"market-chat/internal/observability"
	"market-chat/internal/prefs"
	"market-chat/internal/repositories"
	"market-chat/internal/session"
	"market-chat/internal/telemetry"
	"market-chat/internal/threads"
	"market-chat/internal/ws"
)

const serviceName = "market-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Env)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)
	preferenceRepo := repositories.NewPreferenceRepo(database)

	publisher := feed.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready", "mode", feed.PublisherMode(publisher))

	audit := telemetry.NewAuditEmitter(publisher, "audit.logs", serviceName, cfg.Env, logger)

	hub := ws.NewHub(logger)
	capabilities := notify.Capabilities{
		DesktopSupported: cfg.DesktopSupported,
		Permission:       notify.ParsePermission(cfg.DesktopPermission),
	}
	logger.Info("desktop notification capability",
		"supported", capabilities.DesktopSupported, "permission", capabilities.Permission)

	aggregator := threads.NewAggregator(conversationRepo, messageRepo, profileRepo, preferenceRepo, cfg.RecentWindow)

	manager := session.NewManager(func(userID int) *session.Session {
		prefsPath := filepath.Join(cfg.PrefsDir, fmt.Sprintf("user_%d.json", userID))
		store, err := prefs.Open(prefsPath)
		if err != nil {
			logger.Warn("preference file unreadable, starting empty", "user_id", userID, "error", err)
			store = prefs.Fresh(prefsPath)
		}
		return session.New(userID, session.Deps{
			Aggregator:      aggregator,
			Conversations:   conversationRepo,
			Messages:        messageRepo,
			Profiles:        profileRepo,
			Preferences:     preferenceRepo,
			Prefs:           store,
			Publisher:       publisher,
			Sink:            hub,
			Alerter:         hub.AlerterFor(userID),
			Capabilities:    capabilities,
			Logger:          logger,
			RefreshCooldown: cfg.RefreshCooldown,
			DebounceWindow:  cfg.DebounceWindow,
			ToastTTL:        cfg.ToastTTL,
			PreviewLimit:    cfg.PreviewLimit,
			RecentWindow:    cfg.RecentWindow,
		})
	})
	defer manager.Close()

	if cfg.AMQPURL != "" {
		messageFeed, err := feed.NewAMQPFeed(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("realtime feed connection failed", "error", err)
			os.Exit(1)
		}
		defer messageFeed.Close()
		if err := messageFeed.Subscribe(ctx, manager.HandleEvent); err != nil {
			logger.Error("realtime feed subscription failed", "error", err)
			os.Exit(1)
		}
		logger.Info("realtime feed subscribed", "exchange", cfg.AMQPExchange)
	} else {
		logger.Warn("AMQP_URL not set, realtime feed disabled")
	}

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	threadHandler := handlers.NewThreadHandler(manager, audit)
	wsHandler := ws.NewShellWSHandler(hub, manager, cfg.JWTSecret, publisher)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	authed := router.Group("/", middleware.AuthMiddleware(cfg.JWTSecret))
	authed.GET("/threads", threadHandler.ListThreads)
	authed.POST("/threads/refresh", threadHandler.RefreshThreads)
	authed.POST("/threads/:counterparty_id/open", threadHandler.OpenThread)
	authed.POST("/threads/close", threadHandler.CloseThread)
	authed.POST("/threads/:counterparty_id/archive", threadHandler.ArchiveThread)
	authed.POST("/threads/:counterparty_id/unarchive", threadHandler.UnarchiveThread)
	authed.POST("/threads/:counterparty_id/block", threadHandler.BlockCounterparty)
	authed.POST("/threads/:counterparty_id/unblock", threadHandler.UnblockCounterparty)
	authed.POST("/threads/:counterparty_id/bookmark", threadHandler.BookmarkCounterparty)
	authed.POST("/threads/:counterparty_id/unbookmark", threadHandler.UnbookmarkCounterparty)
	authed.POST("/conversations/start", threadHandler.StartConversation)
	authed.POST("/conversations/:conversation_id/messages", threadHandler.PostMessage)
	authed.PUT("/preferences/mute", threadHandler.SetMute)

	if cfg.DebugRoutes {
		handlers.RegisterDebugRoutes(authed, audit)
		logger.Info("debug routes enabled")
	}

	addr := ":" + cfg.HTTPPort
	logger.Info("starting http server", "addr", addr, "env", cfg.Env)

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}
