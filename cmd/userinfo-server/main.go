package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LCOGT/photonranch-userinfo/internal/auth"
	"github.com/LCOGT/photonranch-userinfo/internal/config"
	"github.com/LCOGT/photonranch-userinfo/internal/logging"
	"github.com/LCOGT/photonranch-userinfo/internal/metrics"
	"github.com/LCOGT/photonranch-userinfo/internal/server"
	"github.com/LCOGT/photonranch-userinfo/internal/store"
	"github.com/LCOGT/photonranch-userinfo/internal/userinfo"
)

const (
	storeOpenTimeout    = 10 * time.Second
	storeCloseTimeout   = 5 * time.Second
	httpShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.WithFields(logging.Fields{
		"event": "startup",
		"store": cfg.StoreBackend,
		"port":  cfg.HTTPPort,
	}).Info("configuration loaded")

	openCtx, cancelOpen := context.WithTimeout(context.Background(), storeOpenTimeout)
	backend, err := store.Open(openCtx, cfg, logger)
	cancelOpen()
	if err != nil {
		logger.WithError(err).Error("store setup error")
		fmt.Fprintf(os.Stderr, "store setup error: %v\n", err)
		os.Exit(1)
	}

	recorder := metrics.New()
	handlers, err := userinfo.NewHandlers(backend.Table, auth.FromConfig(cfg), logger, userinfo.WithMetrics(recorder))
	if err != nil {
		logger.WithError(err).Error("handler setup error")
		fmt.Fprintf(os.Stderr, "handler setup error: %v\n", err)
		os.Exit(1)
	}

	httpServer, err := server.NewServer(cfg.HTTPPort, handlers.Route, backend.Table, recorder.Handler(), logger)
	if err != nil {
		logger.WithError(err).Error("http server setup error")
		fmt.Fprintf(os.Stderr, "http server setup error: %v\n", err)
		os.Exit(1)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping http server")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("http server stopped unexpectedly")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	cancelShutdown()

	closeCtx, cancelClose := context.WithTimeout(context.Background(), storeCloseTimeout)
	if err := backend.Close(closeCtx); err != nil {
		logger.WithError(err).Error("store close error")
	} else {
		logger.WithField("event", "store_close").Info("store closed")
	}
	cancelClose()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
