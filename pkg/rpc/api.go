package rpc

import (
	"encoding/json"
	"time"
)

// Method is an RPC method name.
type Method string

const (
	PingMethod  Method = "ping"
	PongMethod  Method = "pong"
	ErrorMethod Method = "error"

	GetConfigMethod        Method = "get_config"
	GetSchemasMethod       Method = "get_schemas"
	GetCommandsMethod      Method = "get_commands"
	EncodeParamsMethod     Method = "encode_params"
	CanonicalMessageMethod Method = "canonical_message"
	VerifySignatureMethod  Method = "verify_signature"
	GetSubmissionMethod    Method = "get_submission"
	GetSubmissionsMethod   Method = "get_submissions"
	AccountStatusMethod    Method = "account_status"
)

func (m Method) String() string {
	return string(m)
}

// Event is the method of a server-initiated notification.
type Event string

const (
	SubmissionUpdateEvent Event = "submission_update"
)

func (e Event) String() string {
	return string(e)
}

type GetConfigResponse struct {
	// Submitter is the SS58 address that signs ledger submissions.
	Submitter        string   `json:"submitter"`
	FractionalDigits int      `json:"fractional_digits"`
	Methods          []string `json:"methods"`
}

type EncodeParamsRequest struct {
	Schema string         `json:"schema" validate:"required"`
	Params map[string]any `json:"params" validate:"required"`
}

type EncodeParamsResponse struct {
	Schema  string            `json:"schema"`
	Values  map[string]string `json:"values"`
	Encoded string            `json:"encoded"`
}

type CanonicalMessageRequest struct {
	Params map[string]any `json:"params" validate:"required"`
}

type CanonicalMessageResponse struct {
	Text string `json:"text"`
	Hex  string `json:"hex"`
}

// VerifySignatureRequest checks a signature outside of any command. Encoding
// is utf8 (default) or hex.
type VerifySignatureRequest struct {
	PublicKey string `json:"publicKey" validate:"required"`
	Message   string `json:"message"`
	Signature string `json:"signature" validate:"required"`
	Encoding  string `json:"encoding" validate:"omitempty,oneof=utf8 hex"`
}

type VerifySignatureResponse struct {
	IsValid bool `json:"isValid"`
}

type GetSubmissionRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

type GetSubmissionsRequest struct {
	Sender string `json:"sender" validate:"required"`
	Status string `json:"status" validate:"omitempty,oneof=pending accepted rejected"`
	Offset uint32 `json:"offset"`
	Limit  uint32 `json:"limit" validate:"omitempty,max=100"`
}

type AccountStatusRequest struct {
	Address string `json:"address" validate:"required"`
}

type AccountStatusResponse struct {
	Address string `json:"address"`
	Locked  bool   `json:"locked"`
}

// Submission describes a command handed to the ledger.
type Submission struct {
	ID        string            `json:"submission_id"`
	Method    string            `json:"method"`
	Call      string            `json:"call"`
	Schema    string            `json:"schema"`
	Sender    string            `json:"sender"`
	Params    string            `json:"params,omitempty"`
	Decoded   map[string]string `json:"decoded,omitempty"`
	Status    string            `json:"status"`
	TxHash    string            `json:"tx_hash,omitempty"`
	Event     string            `json:"event,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CommandResult is returned by ledger commands. Status is "pending" when
// the ledger did not answer within the gateway's wait.
type CommandResult struct {
	SubmissionID string          `json:"submission_id"`
	Status       string          `json:"status"`
	TxHash       string          `json:"tx_hash,omitempty"`
	Event        string          `json:"event,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

type GetSubmissionsResponse struct {
	Submissions []Submission `json:"submissions"`
}
