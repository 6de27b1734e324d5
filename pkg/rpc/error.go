package rpc

import (
	"encoding/json"
	"errors"

	"github.com/erc7824/ledgergate/pkg/errcode"
)

const (
	resultParamKey = "result"
	errorParamKey  = "error"
)

var (
	ErrAlreadyConnected  = errors.New("already connected")
	ErrNotConnected      = errors.New("not connected to server")
	ErrConnectionTimeout = errors.New("websocket connection timeout")
	ErrReadingMessage    = errors.New("error reading message")

	ErrNilRequest        = errors.New("nil request")
	ErrMarshalingRequest = errors.New("error marshaling request")
	ErrSendingRequest    = errors.New("error sending request")
	ErrNoResponse        = errors.New("no response received")
	ErrSendingPing       = errors.New("error sending ping")

	ErrDialingWebsocket = errors.New("error dialing websocket server")
)

// Errorf returns a client-facing MalformedRequest error. Use errcode.Errorf
// for any other code.
//
//	if req.Limit > 100 {
//		return rpc.Errorf("limit %d is above 100", req.Limit)
//	}
func Errorf(format string, args ...any) error {
	return errcode.Errorf(errcode.MalformedRequest, format, args...)
}

// NewErrorParams wraps a message under the "error" key.
func NewErrorParams(errMsg string) Params {
	raw, _ := json.Marshal(errMsg)
	return Params{errorParamKey: raw}
}

// NewResultParams wraps result under the "result" key.
func NewResultParams(result any) (Params, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return Params{resultParamKey: raw}, nil
}
