package main

import (
	"os"
	"time"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/ledger"
	"github.com/erc7824/ledgergate/pkg/log"
)

// staleSubmissionMessage is recorded on submissions whose ledger call was
// lost, typically because the gateway stopped while they were in flight.
var staleSubmissionMessage = errcode.Message(ledger.ErrRejected) + ": no outcome recorded within the submission timeout"

// runReconcileCli rejects submissions left pending by a previous run.
// Example: ledgergate reconcile 10m
func runReconcileCli(logger log.Logger) {
	logger = logger.WithName("reconcile")
	if len(os.Args) > 3 {
		logger.Fatal("Usage: ledgergate reconcile [min age]")
	}

	config, err := LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	age := config.SubmissionTimeout
	if len(os.Args) == 3 {
		if age, err = time.ParseDuration(os.Args[2]); err != nil {
			logger.Fatal("invalid age", "value", os.Args[2], "error", err)
		}
	}
	if age < config.SubmissionTimeout {
		logger.Fatal("age must be at least the submission timeout", "age", age, "timeout", config.SubmissionTimeout)
	}

	db, err := ConnectToDB(config.Database, logger)
	if err != nil {
		logger.Fatal("failed to setup database", "error", err)
	}

	stale, err := RejectStaleSubmissions(db, time.Now().Add(-age), staleSubmissionMessage)
	if err != nil {
		logger.Fatal("failed to reconcile submissions", "error", err)
	}
	for _, sub := range stale {
		logger.Info("submission rejected", "id", sub.ID, "method", sub.Method, "sender", sub.Sender, "createdAt", sub.CreatedAt)
	}
	logger.Info("reconciliation complete", "rejected", len(stale))
}
