package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/erc7824/ledgergate/pkg/authz"
	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/keystore"
	"github.com/erc7824/ledgergate/pkg/ledger"
	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

// Notifier pushes a notification to the connections of a user.
type Notifier interface {
	Notify(userID, method string, params rpc.Params)
}

// SubmissionOutcome is delivered once per submission. Err is nil when the
// ledger accepted the command.
type SubmissionOutcome struct {
	Submission *Submission
	Err        error
}

// Submitter hands authorized commands to the ledger. Each submission runs in
// its own goroutine and is attempted exactly once.
type Submitter struct {
	db       *gorm.DB
	keys     *keystore.Store
	adapter  ledger.Adapter
	notifier Notifier
	metrics  *Metrics
	// account signs the encoded params. Empty means submissions go out
	// without a submitter signature.
	account string
	timeout time.Duration

	logger log.Logger
	tracer trace.Tracer
	wg     sync.WaitGroup
}

type SubmitterConfig struct {
	DB       *gorm.DB
	Keystore *keystore.Store
	Ledger   ledger.Adapter
	Notifier Notifier
	Metrics  *Metrics
	Account  string
	Timeout  time.Duration
	Logger   log.Logger
}

func NewSubmitter(cfg SubmitterConfig) *Submitter {
	return &Submitter{
		db:       cfg.DB,
		keys:     cfg.Keystore,
		adapter:  cfg.Ledger,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		account:  cfg.Account,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.WithName("submitter"),
		tracer:   otel.Tracer("github.com/erc7824/ledgergate/submitter"),
	}
}

// Submit signs the command with the submitter account, records it as pending
// and starts the ledger call. Keystore failures are returned before anything
// is stored. The returned channel yields exactly one outcome and is then
// closed.
func (s *Submitter) Submit(ctx context.Context, cmd *authz.AuthorizedCommand) (string, <-chan SubmissionOutcome, error) {
	if cmd.Command.Local() {
		return "", nil, errcode.Errorf(errcode.Internal, "%s is not a ledger command", cmd.Command.Method)
	}

	ledgerCmd, err := s.ledgerCommand(cmd)
	if err != nil {
		return "", nil, err
	}

	signatures, err := SignaturesOf(cmd.Signatures)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode signatures: %w", err)
	}

	sub := &Submission{
		ID:         uuid.NewString(),
		Method:     cmd.Command.Method,
		Call:       cmd.Command.Call,
		Schema:     cmd.Command.Schema,
		Sender:     cmd.Sender.String(),
		Params:     fmt.Sprintf("%#x", cmd.Params),
		Signatures: signatures,
		Status:     SubmissionPending,
	}
	if err := CreateSubmission(s.db.WithContext(ctx), sub); err != nil {
		return "", nil, fmt.Errorf("failed to store submission: %w", err)
	}

	logger := log.FromContext(ctx).WithKV("submission", sub.ID)
	logger.Info("submitting command", "call", sub.Call, "sender", sub.Sender)

	out := make(chan SubmissionOutcome, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		out <- s.run(runCtx, sub, ledgerCmd, logger)
	}()

	return sub.ID, out, nil
}

// Wait blocks until every started submission has finished.
func (s *Submitter) Wait() {
	s.wg.Wait()
}

func (s *Submitter) ledgerCommand(cmd *authz.AuthorizedCommand) (ledger.Command, error) {
	lc := ledger.Command{
		Call:         cmd.Command.Call,
		Schema:       cmd.Command.Schema,
		Params:       cmd.Params,
		Signatures:   make([]ledger.Signature, 0, len(cmd.Signatures)),
		SuccessEvent: cmd.Command.SuccessEvent,
	}
	for _, sig := range cmd.Signatures {
		lc.Signatures = append(lc.Signatures, ledger.Signature{
			Role:      string(sig.Role),
			PublicKey: sig.PublicKey,
			Signature: sig.Signature,
		})
	}

	if s.account == "" {
		return lc, nil
	}

	submitter, err := sign.ParseAccountID(s.account)
	if err != nil {
		return ledger.Command{}, errcode.Errorf(errcode.KeyNotFound, "submitter account: %w", err)
	}
	sig, err := s.keys.Sign(s.account, cmd.Params)
	if err != nil {
		return ledger.Command{}, err
	}
	lc.Submitter = submitter
	lc.SubmitterSignature = sig
	return lc, nil
}

func (s *Submitter) run(ctx context.Context, sub *Submission, cmd ledger.Command, logger log.Logger) SubmissionOutcome {
	ctx, span := s.tracer.Start(ctx, "ledger.Submit", trace.WithAttributes(
		attribute.String("submission", sub.ID),
		attribute.String("call", sub.Call),
	))
	defer span.End()

	start := time.Now()
	outcome, submitErr := s.adapter.Submit(ctx, cmd)
	s.metrics.SubmissionLatency.WithLabelValues(sub.Method).Observe(time.Since(start).Seconds())

	status := SubmissionAccepted
	txHash, event, data, errMsg := "", outcome.Event, outcome.Data, ""
	if submitErr != nil {
		status = SubmissionRejected
		if errcode.CodeOf(submitErr) != errcode.LedgerRejected {
			submitErr = fmt.Errorf("%w: %w", ledger.ErrRejected, submitErr)
		}
		errMsg = errcode.Message(submitErr)

		var rejected *ledger.RejectedError
		if errors.As(submitErr, &rejected) {
			txHash, event, data = rejected.TxHash.Hex(), rejected.Event, rejected.Data
		}
		span.SetStatus(codes.Error, errMsg)
		logger.Warn("command rejected by ledger", "error", submitErr)
	} else {
		txHash = outcome.TxHash.Hex()
		span.SetAttributes(attribute.String("txHash", txHash))
		logger.Info("command accepted by ledger", "txHash", txHash, "event", event)
	}
	s.metrics.Submissions.WithLabelValues(sub.Method, string(status)).Inc()

	// The submission is recorded even when the caller has gone away.
	dbCtx := context.WithoutCancel(ctx)
	if err := CompleteSubmission(s.db.WithContext(dbCtx), sub.ID, status, txHash, event, data, errMsg); err != nil {
		logger.Error("failed to record submission outcome", "error", err)
	}

	stored, err := GetSubmission(s.db.WithContext(dbCtx), sub.ID)
	if err != nil {
		logger.Error("failed to reload submission", "error", err)
		sub.Status, sub.TxHash, sub.Event, sub.Error = status, txHash, event, errMsg
		stored = sub
	}

	if params, err := rpc.NewParams(stored.Response(nil)); err != nil {
		logger.Error("failed to encode submission update", "error", err)
	} else {
		s.notifier.Notify(stored.Sender, rpc.SubmissionUpdateEvent.String(), params)
	}

	return SubmissionOutcome{Submission: stored, Err: submitErr}
}
