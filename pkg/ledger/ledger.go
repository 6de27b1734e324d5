// Package ledger submits authorized commands to the downstream ledger and
// waits for the event that settles them.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/sign"
)

// ErrRejected is the root of every failure after authorization.
var ErrRejected = errcode.New(errcode.LedgerRejected, "ledger rejected the command")

// Adapter performs one submission per call and never retries.
type Adapter interface {
	Submit(ctx context.Context, cmd Command) (Outcome, error)
}

// Signature is one party's signature as forwarded to the ledger.
type Signature struct {
	Role      string         `json:"role"`
	PublicKey hexutil.Bytes  `json:"publicKey"`
	Signature sign.Signature `json:"signature"`
}

// Command is a verified, encoded ledger call.
type Command struct {
	Call   string
	Schema string
	// Params is the schema encoding the parties signed.
	Params     []byte
	Signatures []Signature
	Submitter  sign.AccountID
	// SubmitterSignature covers Params.
	SubmitterSignature sign.Signature
	// SuccessEvent is the event name that settles the command.
	SuccessEvent string
}

// Event is a ledger event related to a submitted transaction.
type Event struct {
	Name   string          `json:"name"`
	TxHash common.Hash     `json:"txHash"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Outcome describes an accepted command.
type Outcome struct {
	TxHash common.Hash     `json:"tx_hash"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RejectedError reports a command the ledger refused after accepting the
// transaction, for example through an ExtrinsicFailed event.
type RejectedError struct {
	TxHash common.Hash
	Event  string
	Data   json.RawMessage
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%s: %s in %s", ErrRejected.Msg, e.Event, e.TxHash.Hex())
	if len(e.Data) > 0 {
		msg += ": " + string(e.Data)
	}
	return msg
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// Unavailable rejects every command. It stands in when no ledger endpoint
// is configured.
type Unavailable struct{}

func (Unavailable) Submit(context.Context, Command) (Outcome, error) {
	return Outcome{}, fmt.Errorf("%w: no ledger endpoint configured", ErrRejected)
}
