package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/sign"
)

// Handler processes a request. Middleware calls c.Next() to run the rest of
// the chain, handlers set the response with Succeed or Fail.
type Handler func(c *Context)

// SendResponseFunc pushes a notification to a single connection.
type SendResponseFunc func(method string, params Params)

// Context carries one request through its handler chain.
type Context struct {
	Context context.Context
	// UserID is the account bound to the connection, empty until a handler
	// sets it. Changing it rebinds the connection after the response is sent.
	UserID   string
	Signer   sign.Signer
	Request  Request
	Response Response
	// Storage lives as long as the connection.
	Storage *SafeStorage

	handlers []Handler
}

func (c *Context) Next() {
	if len(c.handlers) == 0 {
		return
	}

	handler := c.handlers[0]
	c.handlers = c.handlers[1:]
	handler(c)
}

// Succeed sets a response with params {"result": result}. A result that
// cannot be encoded turns the response into an Internal error.
func (c *Context) Succeed(method string, result any) {
	params, err := NewResultParams(result)
	if err != nil {
		c.Fail(fmt.Errorf("encode result: %w", err), "")
		return
	}

	c.Response.Res = NewPayload(
		c.Request.Req.RequestID,
		method,
		params,
	)
}

// Fail sets an error response. Coded errors are reported as
// "<Code>: <detail>". Anything else is reported as Internal with
// fallbackMessage, so driver and transport details stay on the server.
func (c *Context) Fail(err error, fallbackMessage string) {
	var coded *errcode.Error
	var message string
	switch {
	case errors.As(err, &coded):
		message = errcode.Message(err)
	case fallbackMessage != "":
		message = string(errcode.Internal) + ": " + fallbackMessage
	default:
		message = errcode.Message(err)
	}

	c.Response = NewErrorResponse(
		c.Request.Req.RequestID,
		message,
	)
}

// GetRawResponse signs and encodes the response. A chain that set no response
// yields an Internal error.
func (c *Context) GetRawResponse() ([]byte, error) {
	if c.Response.Res.Method == "" {
		c.Fail(nil, "no response from handler")
	}

	return prepareRawResponse(c.Signer, c.Response.Res)
}

func prepareRawResponse(signer sign.Signer, payload Payload) ([]byte, error) {
	payloadHash, err := payload.Hash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash response payload: %w", err)
	}

	signature, err := signer.Sign(payloadHash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign response data: %w", err)
	}

	responseMessage := &Response{
		Res: payload,
		Sig: []sign.Signature{signature},
	}
	resMessageBytes, err := json.Marshal(responseMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response message: %w", err)
	}

	return resMessageBytes, nil
}

// SafeStorage is a mutex-guarded map shared by the requests of one
// connection.
type SafeStorage struct {
	mu      sync.RWMutex
	storage map[string]any
}

func NewSafeStorage() *SafeStorage {
	return &SafeStorage{
		storage: make(map[string]any),
	}
}

func (s *SafeStorage) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storage[key] = value
}

func (s *SafeStorage) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.storage[key]
	return value, exists
}
