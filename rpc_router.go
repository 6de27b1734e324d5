package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/erc7824/ledgergate/pkg/codec"
	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/fixedpoint"
	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

const GetRPCHistoryMethod = "get_rpc_history"

var ErrDuplicateRequest = errcode.New(errcode.DuplicateRequest, "request already processed")

var redactedParam = json.RawMessage(`"[redacted]"`)

type RPCRouter struct {
	Node         *rpc.WebsocketNode
	Config       *Config
	Signer       sign.Signer
	Gateway      *Gateway
	Submitter    *Submitter
	DB           *gorm.DB
	Metrics      *Metrics
	RPCStore     *RPCStore
	MessageCache *MessageCache

	methods []string
	lg      log.Logger
}

func NewRPCRouter(
	node *rpc.WebsocketNode,
	conf *Config,
	signer sign.Signer,
	gateway *Gateway,
	submitter *Submitter,
	db *gorm.DB,
	metrics *Metrics,
	rpcStore *RPCStore,
	logger log.Logger,
) *RPCRouter {
	r := &RPCRouter{
		Node:         node,
		Config:       conf,
		Signer:       signer,
		Gateway:      gateway,
		Submitter:    submitter,
		DB:           db,
		Metrics:      metrics,
		RPCStore:     rpcStore,
		MessageCache: NewMessageCache(conf.MsgExpiry),
		methods:      []string{rpc.PingMethod.String()},
		lg:           logger.WithName("rpc-router"),
	}

	r.Node.Use(r.LoggerMiddleware)
	r.Node.Use(r.MetricsMiddleware)
	r.Node.Use(r.HistoryMiddleware)

	r.handle(r.Node, rpc.GetConfigMethod.String(), r.HandleGetConfig)
	r.handle(r.Node, rpc.GetSchemasMethod.String(), r.HandleGetSchemas)
	r.handle(r.Node, rpc.GetCommandsMethod.String(), r.HandleGetCommands)
	r.handle(r.Node, rpc.EncodeParamsMethod.String(), r.HandleEncodeParams)
	r.handle(r.Node, rpc.CanonicalMessageMethod.String(), r.HandleCanonicalMessage)
	r.handle(r.Node, rpc.VerifySignatureMethod.String(), r.HandleVerifySignature)
	r.handle(r.Node, rpc.GetSubmissionMethod.String(), r.HandleGetSubmission)
	r.handle(r.Node, rpc.GetSubmissionsMethod.String(), r.HandleGetSubmissions)
	r.handle(r.Node, rpc.AccountStatusMethod.String(), r.HandleAccountStatus)
	r.handle(r.Node, GetRPCHistoryMethod, r.HandleGetRPCHistory)

	for _, cmd := range gateway.Commands.All() {
		if cmd.Local() {
			handler, ok := r.localHandlers()[cmd.Method]
			if !ok {
				r.lg.Warn("no local handler for command, skipping", "method", cmd.Method)
				continue
			}
			r.handle(r.Node, cmd.Method, r.authorized(handler))
			continue
		}
		r.handle(r.Node, cmd.Method, r.authorized(r.HandleLedgerCommand))
	}
	slices.Sort(r.methods)

	return r
}

type handlerRegistrar interface {
	Handle(method string, handler rpc.Handler)
}

func (r *RPCRouter) handle(group handlerRegistrar, method string, handler rpc.Handler) {
	group.Handle(method, handler)
	r.methods = append(r.methods, method)
}

// Methods lists every method the router serves.
func (r *RPCRouter) Methods() []string {
	return slices.Clone(r.methods)
}

func (r *RPCRouter) LoggerMiddleware(c *rpc.Context) {
	logger := r.lg.
		WithKV("requestID", c.Request.Req.RequestID).
		WithKV("method", c.Request.Req.Method)
	c.Context = log.SetContextLogger(c.Context, logger)
	logger = log.FromContext(c.Context)

	c.Next()

	if c.Response.Res.Method == "" {
		logger.Warn("RPC response is empty", "userID", c.UserID)
		return
	}

	if err := c.Response.Error(); err != nil {
		logger.Warn("failed to handle RPC request",
			"userID", c.UserID,
			"error", err,
		)
	}
}

func (r *RPCRouter) MetricsMiddleware(c *rpc.Context) {
	r.Metrics.MessageReceived.Inc()

	reqMethod := c.Request.Req.Method
	c.Next()

	status := "success"
	if c.Response.Res.Method == rpc.ErrorMethod.String() {
		status = "failure"
	}

	r.Metrics.RPCRequests.WithLabelValues(reqMethod, status).Inc()
}

// HistoryMiddleware stores the request together with the signed response.
func (r *RPCRouter) HistoryMiddleware(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	req := c.Request.Req
	reqSig := c.Request.Sig
	c.Next()

	res := c.Response.Res
	var resSig []sign.Signature
	if hash, err := res.Hash(); err != nil {
		logger.Error("failed to hash response", "error", err)
	} else if sig, err := r.Signer.Sign(hash); err != nil {
		logger.Error("failed to sign response", "error", err)
	} else {
		resSig = []sign.Signature{sig}
	}

	if err := r.RPCStore.StoreMessage(c.UserID, r.withoutSecrets(req), reqSig, res, resSig); err != nil {
		logger.Error("failed to store RPC message", "error", err)
	}
}

// withoutSecrets returns req with the secret fields of its command replaced.
func (r *RPCRouter) withoutSecrets(req rpc.Payload) rpc.Payload {
	cmd, ok := r.Gateway.Commands.Lookup(req.Method)
	if !ok || len(cmd.Secret) == 0 {
		return req
	}

	params := maps.Clone(req.Params)
	for name := range params {
		if cmd.IsSecret(name) {
			params[name] = redactedParam
		}
	}
	req.Params = params
	return req
}

var validate = validator.New()

// parseParams decodes params into a request struct and validates it. Numbers
// inside map fields are kept as json.Number.
func parseParams(params rpc.Params, unmarshalTo any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to parse parameters: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(paramsJSON))
	dec.UseNumber()
	if err := dec.Decode(unmarshalTo); err != nil {
		return rpc.Errorf("invalid parameters: %v", err)
	}

	if err := validate.Struct(unmarshalTo); err != nil {
		return rpc.Errorf("invalid parameters: %v", err)
	}
	return nil
}

// decodeFields returns the raw request params the way the authorization
// protocol expects them.
func decodeFields(params rpc.Params) (map[string]any, error) {
	fields := make(map[string]any, len(params))
	for name, raw := range params {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, rpc.Errorf("field %q: %v", name, err)
		}
		fields[name] = v
	}
	return fields, nil
}

// formatValues renders normalized values for clients. Decimal fields are
// shown as decimal amounts, text fields as strings and other bytes as hex.
func formatValues(schema *codec.Schema, values codec.Values) map[string]string {
	out := make(map[string]string, len(values))
	for _, f := range schema.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		switch v := v.(type) {
		case *big.Int:
			if f.Normalize == codec.RuleDecimal {
				digits := f.Digits
				if digits == 0 {
					digits = fixedpoint.DefaultDigits
				}
				out[f.Name] = fixedpoint.FromFixedPoint(v, digits)
			} else {
				out[f.Name] = v.String()
			}
		case []byte:
			if f.Normalize == codec.RuleText {
				out[f.Name] = string(v)
			} else {
				out[f.Name] = hexutil.Encode(v)
			}
		case sign.AccountID:
			out[f.Name] = v.String()
		default:
			out[f.Name] = fmt.Sprint(v)
		}
	}
	return out
}
