package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/erc7824/ledgergate/pkg/errcode"
)

// Payload is the signed core of every request, response and notification.
// It travels as a 4-element array: [requestId, method, params, timestamp].
type Payload struct {
	// RequestID correlates a response with its request. Notifications use 0.
	RequestID uint64 `json:"request_id"`
	Method    string `json:"method"`
	Params    Params `json:"params"`
	// Timestamp is in Unix milliseconds.
	Timestamp uint64 `json:"ts"`
}

// NewPayload creates a payload stamped with the current time. Nil params
// become an empty map so the encoded form is always an object.
func NewPayload(id uint64, method string, params Params) Payload {
	if params == nil {
		params = Params{}
	}

	return Payload{
		RequestID: id,
		Method:    method,
		Params:    params,
		Timestamp: uint64(time.Now().UnixMilli()),
	}
}

// Hash returns the Keccak256 hash of the array encoding. This is the value
// the node signs.
func (p Payload) Hash() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return crypto.Keccak256(data), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var rawArr []json.RawMessage
	if err := json.Unmarshal(data, &rawArr); err != nil {
		return fmt.Errorf("error reading payload as array: %w", err)
	}
	if len(rawArr) != 4 {
		return errors.New("invalid payload: expected 4 elements in array")
	}

	if err := json.Unmarshal(rawArr[0], &p.RequestID); err != nil {
		return fmt.Errorf("invalid request_id: %w", err)
	}
	if err := json.Unmarshal(rawArr[1], &p.Method); err != nil {
		return fmt.Errorf("invalid method: %w", err)
	}
	if err := json.Unmarshal(rawArr[2], &p.Params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := json.Unmarshal(rawArr[3], &p.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}

	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		p.RequestID,
		p.Method,
		p.Params,
		p.Timestamp,
	})
}

// Params holds method parameters with deferred decoding.
type Params map[string]json.RawMessage

// NewParams converts a struct or map into Params through its JSON form.
func NewParams(v any) (Params, error) {
	if v == nil {
		return Params{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error marshalling params: %w", err)
	}
	var params Params
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("error unmarshalling params: %w", err)
	}
	return params, nil
}

// Translate decodes the params into v.
func (p Params) Translate(v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("error marshalling params: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error unmarshalling params: %w", err)
	}
	return nil
}

// Result decodes the "result" entry into v. A missing entry leaves v as is.
func (p Params) Result(v any) error {
	raw, ok := p[resultParamKey]
	if !ok || v == nil {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("error unmarshalling result: %w", err)
	}
	return nil
}

// Error returns the "error" entry as a *errcode.Error, recovering the code
// from the "<Code>: <detail>" form. It returns nil when no error is present.
func (p Params) Error() error {
	errMsgRaw, ok := p[errorParamKey]
	if !ok {
		return nil
	}
	var errMsg string
	if err := json.Unmarshal(errMsgRaw, &errMsg); err != nil {
		return nil
	}
	return errcode.Parse(errMsg)
}
