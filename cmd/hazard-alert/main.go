package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roadwatch/go-road-hazards/internal/api"
	"github.com/roadwatch/go-road-hazards/internal/config"
	"github.com/roadwatch/go-road-hazards/internal/dispatch"
	"github.com/roadwatch/go-road-hazards/internal/hub"
	"github.com/roadwatch/go-road-hazards/internal/logging"
	"github.com/roadwatch/go-road-hazards/internal/observability"
	"github.com/roadwatch/go-road-hazards/internal/registry"
	"github.com/roadwatch/go-road-hazards/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	hazards, err := store.Open(cfg.DB.DSN, store.Params{
		DedupRadiusKm:   cfg.Proximity.DedupRadiusKm,
		DedupWindow:     cfg.Proximity.DedupWindow,
		ResolveRadiusKm: cfg.Proximity.ResolveRadiusKm,
	}, nil)
	if err != nil {
		logging.Fatalf("Failed to initialize hazard store: %v", err)
	}
	defer hazards.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	users := registry.New()

	wsHub := hub.New(users, metrics, cfg.Hub.SendBufferSize)
	dispatcher := dispatch.New(hazards, users, wsHub, metrics, dispatch.Options{
		AlertRadiusKm:  cfg.Proximity.AlertRadiusKm,
		NearbyRadiusKm: cfg.Proximity.NearbyRadiusKm,
		WorkerCount:    cfg.Worker.Count,
		WorkerBuffer:   cfg.Worker.BufferSize,
	})
	wsHub.OnLocationChange = dispatcher.LocationChanged
	dispatcher.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst))

	handler := api.NewHandler(hazards, dispatcher, metrics, api.Options{
		ListCap:         cfg.API.ListCap,
		NearbyRadiusKm:  cfg.Proximity.NearbyRadiusKm,
		ResolveRadiusKm: cfg.Proximity.ResolveRadiusKm,
	})
	handler.RegisterRoutes(router)
	router.GET("/ws", wsHub.ServeWS)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	wsHub.Close()
	dispatcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
