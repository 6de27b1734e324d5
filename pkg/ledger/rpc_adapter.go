package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/erc7824/ledgergate/pkg/log"
)

const (
	namespace     = "ledger"
	submitMethod  = namespace + "_submitCommand"
	eventsChannel = "events"
	failedSuffix  = "ExtrinsicFailed"
)

// RPCAdapter talks JSON-RPC to a ledger node. Event subscriptions need a
// websocket or IPC endpoint.
type RPCAdapter struct {
	client *rpc.Client
	logger log.Logger
}

// Dial connects to the ledger node at url.
func Dial(ctx context.Context, url string, logger log.Logger) (*RPCAdapter, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger: %w", err)
	}
	return NewRPCAdapter(client, logger), nil
}

func NewRPCAdapter(client *rpc.Client, logger log.Logger) *RPCAdapter {
	return &RPCAdapter{client: client, logger: logger.WithName("ledger")}
}

func (a *RPCAdapter) Close() {
	a.client.Close()
}

// Submit sends cmd and blocks until its success event, a failure event, or
// the end of ctx.
func (a *RPCAdapter) Submit(ctx context.Context, cmd Command) (Outcome, error) {
	logger := a.logger.WithKV("call", cmd.Call)

	var txHash common.Hash
	err := a.client.CallContext(ctx, &txHash, submitMethod,
		cmd.Call,
		cmd.Schema,
		hexutil.Bytes(cmd.Params),
		cmd.Signatures,
		cmd.Submitter,
		cmd.SubmitterSignature,
	)
	if err != nil {
		return Outcome{}, callFailed(ctx, logger, "submit", err)
	}
	logger = logger.WithKV("txHash", txHash.Hex())
	logger.Debug("command submitted")

	events := make(chan Event, 16)
	sub, err := a.client.Subscribe(ctx, namespace, events, eventsChannel, txHash)
	if err != nil {
		return Outcome{}, callFailed(ctx, logger, "subscribe", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, fmt.Errorf("%w: waiting for %s: %w", ErrRejected, txHash.Hex(), ctx.Err())

		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return Outcome{}, callFailed(ctx, logger, "event subscription", err)

		case ev := <-events:
			if ev.TxHash != (common.Hash{}) && ev.TxHash != txHash {
				continue
			}
			switch {
			case ev.Name == cmd.SuccessEvent:
				logger.Info("command accepted", "event", ev.Name)
				return Outcome{TxHash: txHash, Event: ev.Name, Data: ev.Data}, nil
			case strings.HasSuffix(ev.Name, failedSuffix):
				logger.Info("command rejected", "event", ev.Name)
				return Outcome{}, &RejectedError{TxHash: txHash, Event: ev.Name, Data: ev.Data}
			default:
				logger.Debug("ignoring event", "event", ev.Name)
			}
		}
	}
}

// callFailed turns a failed call into a rejection. Transport details only
// reach the log; callers see the step and, for errors answered by the node,
// its JSON-RPC error code.
func callFailed(ctx context.Context, logger log.Logger, step string, err error) error {
	logger.Warn("ledger call failed", "step", step, "error", err)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrRejected, step, ctxErr)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s refused by ledger node (code %d)", ErrRejected, step, rpcErr.ErrorCode())
	}
	return fmt.Errorf("%w: %s failed: ledger node unreachable", ErrRejected, step)
}
