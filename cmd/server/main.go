// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tahcohcat/neon-voice/config"
	"github.com/tahcohcat/neon-voice/internal/api"
	"github.com/tahcohcat/neon-voice/internal/auth"
	"github.com/tahcohcat/neon-voice/internal/database"
	"github.com/tahcohcat/neon-voice/internal/logger"
	"github.com/tahcohcat/neon-voice/internal/panel"
	"github.com/tahcohcat/neon-voice/internal/services"
	"github.com/tahcohcat/neon-voice/internal/tts"
	"github.com/tahcohcat/neon-voice/internal/websocket"
)

func main() {
	// Load config from files and environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetGlobalLevel(cfg.Log.Level)
	appLog := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth.Init(cfg.Auth.SessionSecret, cfg.Auth.PasswordHash)

	provider, err := tts.NewProvider(ctx, &cfg.Speech)
	if err != nil {
		log.Fatalf("Failed to initialize speech backend %q: %v", cfg.Speech.Backend, err)
	}
	defer provider.Close()

	hub := websocket.NewHub()

	opts := []panel.Option{
		panel.WithRetryDelay(cfg.Speech.RetryDelay),
		panel.WithMaxAttempts(cfg.Speech.MaxVoiceAttempts),
		panel.WithFallbackLang(cfg.Speech.FallbackLang),
		panel.WithDefaults(cfg.Panel.DefaultRate, cfg.Panel.DefaultPitch),
	}

	// Utterance history is optional
	var history *services.HistoryService
	if cfg.History.Enabled {
		db, err := database.NewDB(cfg.History.Path)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		history = services.NewHistoryService(db, provider.Name())
		opts = append(opts, panel.WithRecorder(history))
	}

	// Every panel pushes its state to the browsers of its view
	base := panel.ProviderFactory(provider, hub, opts...)
	factory := func(viewID string) (*panel.Panel, func()) {
		p, release := base(viewID)
		p.OnChange(func(s panel.State) {
			if err := hub.SendState(viewID, s); err != nil {
				appLog.WithError(err).Debug("state not pushed")
			}
		})
		return p, release
	}

	panels := panel.NewManager(factory, cfg.Panel.IdleTTL, rate.Limit(cfg.Panel.SpeakPerSecond), cfg.Panel.SpeakBurst)
	panels.Start()
	defer panels.Close()

	r := mux.NewRouter()

	// Public routes (no authentication required)
	publicRouter := r.PathPrefix("/").Subrouter()
	publicRouter.HandleFunc("/login", auth.LoginHandler).Methods("GET", "POST")
	publicRouter.HandleFunc("/logout", auth.LogoutHandler(panels.Remove)).Methods("POST", "GET")

	// Authenticated routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(auth.AuthMiddleware)

	// API routes
	apiRouter := authRouter.PathPrefix("/api/v1").Subrouter()
	panelHandler := api.RegisterRoutes(apiRouter, panels, auth.ViewID, provider.Name())
	api.RegisterTTSRoutes(apiRouter, api.NewTTSHandler(panels, auth.ViewID, history, cfg.History.Limit))

	// WebSocket route
	authRouter.HandleFunc("/ws", hub.Handler(auth.ViewID, func(viewID string) {
		v := panels.Get(viewID)
		if err := hub.SendState(viewID, v.Panel.State()); err != nil {
			appLog.WithError(err).Debug("initial state not pushed")
		}
	}))

	// Serve the panel page
	authRouter.HandleFunc("/", panelHandler.Index).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := cfg.Server.Port
	if env := os.Getenv("PORT"); env != "" {
		port = env
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	appLog.Info(fmt.Sprintf("🔊 Neon Voice starting on port %s", port))
	appLog.Info(fmt.Sprintf("📍 Open http://localhost:%s in your browser", port))
	appLog.Info(fmt.Sprintf("🗣️ Speech backend: %s", provider.Name()))
	if history != nil {
		appLog.Info(fmt.Sprintf("🗄️ History: %s", cfg.History.Path))
	}
	if !auth.LoginRequired() {
		appLog.Warn("auth.password_hash is empty, the panel is open to anyone who can reach it")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLog.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
