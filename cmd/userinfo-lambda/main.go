package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/LCOGT/photonranch-userinfo/internal/auth"
	"github.com/LCOGT/photonranch-userinfo/internal/config"
	"github.com/LCOGT/photonranch-userinfo/internal/logging"
	"github.com/LCOGT/photonranch-userinfo/internal/store"
	"github.com/LCOGT/photonranch-userinfo/internal/userinfo"
)

const storeOpenTimeout = 10 * time.Second

func main() {
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

	openCtx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
	backend, err := store.Open(openCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.WithError(err).Error("store setup error")
		fmt.Fprintf(os.Stderr, "store setup error: %v\n", err)
		os.Exit(1)
	}

	handlers, err := userinfo.NewHandlers(backend.Table, auth.FromConfig(cfg), logger)
	if err != nil {
		logger.WithError(err).Error("handler setup error")
		fmt.Fprintf(os.Stderr, "handler setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event": "lambda_start",
		"store": cfg.StoreBackend,
	}).Info("starting lambda handler")

	lambda.Start(handlers.Route)
}
