package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/sign"
)

// Client is a typed ledgergate client on top of a Dialer.
type Client struct {
	dialer        Dialer
	eventHandlers map[Event]any
	mu            sync.RWMutex
}

func NewClient(dialer Dialer) *Client {
	return &Client{
		dialer:        dialer,
		eventHandlers: make(map[Event]any),
	}
}

// Start dials url and dispatches notifications to the registered handlers
// until the connection closes.
func (c *Client) Start(ctx context.Context, url string, handleClosure func(err error)) error {
	parentCtx, cancel := context.WithCancel(ctx)
	childHandleClosure := func(err error) {
		cancel()
		if handleClosure != nil {
			handleClosure(err)
		}
	}

	if err := c.dialer.Dial(parentCtx, url, childHandleClosure); err != nil {
		cancel()
		return err
	}

	go c.listenEvents(parentCtx)

	return nil
}

// SubmissionUpdateEventHandler receives submission_update notifications.
type SubmissionUpdateEventHandler func(ctx context.Context, notif Submission, resSig []sign.Signature)

func (c *Client) HandleSubmissionUpdateEvent(handler SubmissionUpdateEventHandler) {
	c.setEventHandler(SubmissionUpdateEvent, handler)
}

func (c *Client) listenEvents(ctx context.Context) {
	logger := log.FromContext(ctx)
	eventCh := c.dialer.EventCh()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if event == nil {
				continue
			}

			switch event.Res.Method {
			case SubmissionUpdateEvent.String():
				c.handleSubmissionUpdateEvent(ctx, event)
			default:
				logger.Warn("unknown event received", "method", event.Res.Method)
			}
		}
	}
}

func (c *Client) handleSubmissionUpdateEvent(ctx context.Context, event *Response) {
	logger := log.FromContext(ctx)
	handler, ok := c.getEventHandler(SubmissionUpdateEvent).(SubmissionUpdateEventHandler)
	if !ok {
		logger.Warn("no handler for event", "method", event.Res.Method)
		return
	}

	var notif Submission
	if err := event.Res.Params.Translate(&notif); err != nil {
		logger.Error("failed to translate event", "error", err, "method", event.Res.Method)
		return
	}

	handler(ctx, notif, event.Sig)
}

func (c *Client) Ping(ctx context.Context) ([]sign.Signature, error) {
	res, err := c.call(ctx, PingMethod.String(), nil)
	if err != nil {
		return nil, err
	}

	if res.Res.Method != PongMethod.String() {
		return res.Sig, fmt.Errorf("unexpected response method: %s", res.Res.Method)
	}
	return res.Sig, nil
}

func (c *Client) GetConfig(ctx context.Context) (GetConfigResponse, []sign.Signature, error) {
	var resParams GetConfigResponse
	sig, err := c.Call(ctx, GetConfigMethod.String(), nil, &resParams)
	return resParams, sig, err
}

func (c *Client) EncodeParams(ctx context.Context, reqParams EncodeParamsRequest) (EncodeParamsResponse, []sign.Signature, error) {
	var resParams EncodeParamsResponse
	sig, err := c.Call(ctx, EncodeParamsMethod.String(), &reqParams, &resParams)
	return resParams, sig, err
}

func (c *Client) CanonicalMessage(ctx context.Context, reqParams CanonicalMessageRequest) (CanonicalMessageResponse, []sign.Signature, error) {
	var resParams CanonicalMessageResponse
	sig, err := c.Call(ctx, CanonicalMessageMethod.String(), &reqParams, &resParams)
	return resParams, sig, err
}

func (c *Client) VerifySignature(ctx context.Context, reqParams VerifySignatureRequest) (VerifySignatureResponse, []sign.Signature, error) {
	var resParams VerifySignatureResponse
	sig, err := c.Call(ctx, VerifySignatureMethod.String(), &reqParams, &resParams)
	return resParams, sig, err
}

func (c *Client) GetSubmission(ctx context.Context, reqParams GetSubmissionRequest) (Submission, []sign.Signature, error) {
	var resParams Submission
	sig, err := c.Call(ctx, GetSubmissionMethod.String(), &reqParams, &resParams)
	return resParams, sig, err
}

func (c *Client) GetSubmissions(ctx context.Context, reqParams GetSubmissionsRequest) (GetSubmissionsResponse, []sign.Signature, error) {
	var resParams GetSubmissionsResponse
	sig, err := c.Call(ctx, GetSubmissionsMethod.String(), &reqParams, &resParams)
	return resParams, sig, err
}

func (c *Client) AccountStatus(ctx context.Context, reqParams AccountStatusRequest) (AccountStatusResponse, []sign.Signature, error) {
	var resParams AccountStatusResponse
	sig, err := c.Call(ctx, AccountStatusMethod.String(), &reqParams, &resParams)
	return resParams, sig, err
}

// SubmitCommand sends a signed command. fields holds every request field,
// party keys and signatures included.
func (c *Client) SubmitCommand(ctx context.Context, method string, fields map[string]any) (CommandResult, []sign.Signature, error) {
	var resParams CommandResult
	sig, err := c.Call(ctx, method, fields, &resParams)
	return resParams, sig, err
}

// Call sends any method and decodes the "result" entry into result. Error
// responses come back as *errcode.Error.
func (c *Client) Call(ctx context.Context, method string, reqParams any, result any) ([]sign.Signature, error) {
	res, err := c.call(ctx, method, reqParams)
	if err != nil {
		return nil, err
	}

	if err := res.Res.Params.Result(result); err != nil {
		return res.Sig, err
	}
	return res.Sig, nil
}

func (c *Client) call(ctx context.Context, method string, reqParams any) (*Response, error) {
	payload, err := c.PreparePayload(method, reqParams)
	if err != nil {
		return nil, err
	}

	req := NewRequest(payload)
	res, err := c.dialer.Call(ctx, &req)
	if err != nil {
		return nil, err
	}

	if err := res.Error(); err != nil {
		return nil, err
	}
	return res, nil
}

// PreparePayload builds a request payload with a random request id.
func (c *Client) PreparePayload(method string, reqParams any) (Payload, error) {
	params, err := NewParams(reqParams)
	if err != nil {
		return Payload{}, err
	}

	id := uint64(uuid.New().ID())
	if id == 0 {
		id = 1
	}
	return NewPayload(id, method, params), nil
}

func (c *Client) setEventHandler(event Event, handler any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventHandlers[event] = handler
}

func (c *Client) getEventHandler(event Event) any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.eventHandlers[event]
}
