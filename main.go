package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/sign"
)

func main() {
	logger := log.NewZapLogger(log.Config{Format: "console", Level: log.LevelInfo})
	if len(os.Args) > 1 {
		// If a CLI command is provided, run it and exit
		runCli(logger, os.Args[1])
		return
	}

	config, err := LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	logger = log.NewZapLogger(config.Log).WithName("ledgergate")

	db, err := ConnectToDB(config.Database, logger)
	if err != nil {
		logger.Fatal("failed to setup database", "error", err)
	}

	signer, err := sign.NewSecp256k1Signer(config.SignerKey)
	if err != nil {
		logger.Fatal("failed to initialise signer", "error", err)
	}
	logger.Info("gateway signer initialized", "account", signer.PublicKey().AccountID())

	ctx := context.Background()
	gateway, err := NewGateway(ctx, config, logger)
	if err != nil {
		logger.Fatal("failed to initialise gateway", "error", err)
	}
	defer gateway.Close()

	metrics := NewMetrics()
	rpcStore := NewRPCStore(db)

	rpcNode, err := NewRPCNode(signer, metrics, logger)
	if err != nil {
		logger.Fatal("failed to initialise RPC node", "error", err)
	}

	submitter := NewSubmitter(SubmitterConfig{
		DB:       db,
		Keystore: gateway.Keystore,
		Ledger:   gateway.Ledger,
		Notifier: rpcNode,
		Metrics:  metrics,
		Account:  config.SubmitterAccount,
		Timeout:  config.SubmissionTimeout,
		Logger:   logger,
	})

	NewRPCRouter(rpcNode, config, signer, gateway, submitter, db, metrics, rpcStore, logger)

	rpcMux := http.NewServeMux()
	rpcMux.Handle(rpcListenEndpoint, rpcNode)
	rpcServer := &http.Server{
		Addr:    config.ListenAddr,
		Handler: rpcMux,
	}

	metricsEndpoint := "/metrics"
	metricsMux := http.NewServeMux()
	metricsMux.Handle(metricsEndpoint, promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    config.MetricsAddr,
		Handler: metricsMux,
	}

	go metrics.RecordMetricsPeriodically(db, gateway.Keystore, logger)

	go func() {
		logger.Info("Prometheus metrics available", "listenAddr", config.MetricsAddr, "endpoint", metricsEndpoint)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failure", "error", err)
		}
	}()

	go func() {
		logger.Info("RPC server available", "listenAddr", config.ListenAddr, "endpoint", rpcListenEndpoint)
		if err := rpcServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("RPC server failure", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down metrics server", "error", err)
	}
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down RPC server", "error", err)
	}

	logger.Info("waiting for in-flight submissions", "timeout", config.SubmissionTimeout)
	submitter.Wait()

	logger.Info("shutdown complete")
}

func runCli(logger log.Logger, name string) {
	switch name {
	case "schemas":
		runSchemasCli(logger)
	case "export-submissions":
		runExportSubmissionsCli(logger)
	case "new-account":
		runNewAccountCli(logger)
	case "call":
		runCallCli(logger)
	case "reconcile":
		runReconcileCli(logger)
	default:
		logger.Fatal("unknown CLI command", "name", name)
	}
}
