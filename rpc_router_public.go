package main

import (
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/erc7824/ledgergate/pkg/authz"
	"github.com/erc7824/ledgergate/pkg/canon"
	"github.com/erc7824/ledgergate/pkg/codec"
	"github.com/erc7824/ledgergate/pkg/fixedpoint"
	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

type GetSchemasResponse struct {
	Schemas []codec.Schema `json:"schemas"`
}

type GetCommandsResponse struct {
	Commands []authz.Command `json:"commands"`
}

type GetRPCHistoryParams struct {
	ListOptions
}

type RPCEntry struct {
	ID        uint     `json:"id"`
	Sender    string   `json:"sender"`
	ReqID     uint64   `json:"req_id"`
	Method    string   `json:"method"`
	Params    string   `json:"params"`
	Timestamp uint64   `json:"timestamp"`
	ReqSig    []string `json:"req_sig"`
	Result    string   `json:"response"`
	ResSig    []string `json:"res_sig"`
}

type GetRPCHistoryResponse struct {
	RPCEntries []RPCEntry `json:"rpc_entries"`
}

// HandleGetConfig returns the gateway configuration
func (r *RPCRouter) HandleGetConfig(c *rpc.Context) {
	submitter := r.Config.SubmitterAccount
	if id, err := sign.ParseAccountID(submitter); err == nil {
		submitter = id.String()
	}

	c.Succeed(c.Request.Req.Method, rpc.GetConfigResponse{
		Submitter:        submitter,
		FractionalDigits: fixedpoint.DefaultDigits,
		Methods:          r.Methods(),
	})
}

// HandleGetSchemas returns every registered schema
func (r *RPCRouter) HandleGetSchemas(c *rpc.Context) {
	names := r.Gateway.Schemas.Names()
	resp := GetSchemasResponse{Schemas: make([]codec.Schema, 0, len(names))}
	for _, name := range names {
		schema, err := r.Gateway.Schemas.Lookup(name)
		if err != nil {
			c.Fail(err, "failed to read schema registry")
			return
		}
		resp.Schemas = append(resp.Schemas, *schema)
	}

	c.Succeed(c.Request.Req.Method, resp)
}

func (r *RPCRouter) HandleGetCommands(c *rpc.Context) {
	c.Succeed(c.Request.Req.Method, GetCommandsResponse{Commands: r.Gateway.Commands.All()})
}

// HandleEncodeParams normalizes and encodes params the way a command with
// the same schema would, so clients can sign the exact bytes.
func (r *RPCRouter) HandleEncodeParams(c *rpc.Context) {
	var params rpc.EncodeParamsRequest
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	schema, err := r.Gateway.Schemas.Lookup(params.Schema)
	if err != nil {
		c.Fail(err, "")
		return
	}
	values, err := r.Gateway.Schemas.Normalize(params.Schema, params.Params)
	if err != nil {
		c.Fail(err, "failed to normalize parameters")
		return
	}
	encoded, err := r.Gateway.Schemas.Encode(params.Schema, values)
	if err != nil {
		c.Fail(err, "failed to encode parameters")
		return
	}

	c.Succeed(c.Request.Req.Method, rpc.EncodeParamsResponse{
		Schema:  schema.Name,
		Values:  formatValues(schema, values),
		Encoded: hexutil.Encode(encoded),
	})
}

func (r *RPCRouter) HandleCanonicalMessage(c *rpc.Context) {
	var params rpc.CanonicalMessageRequest
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	msg, err := canon.Canonicalize(params.Params)
	if err != nil {
		c.Fail(err, "failed to build canonical message")
		return
	}

	c.Succeed(c.Request.Req.Method, rpc.CanonicalMessageResponse{
		Text: string(msg),
		Hex:  hexutil.Encode(msg),
	})
}

// HandleVerifySignature checks a single signature. A signature that does not
// match is a successful response with isValid false.
func (r *RPCRouter) HandleVerifySignature(c *rpc.Context) {
	var params rpc.VerifySignatureRequest
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	pub, err := sign.DecodePublicKey(params.PublicKey)
	if err != nil {
		c.Fail(err, "")
		return
	}
	sig, err := sign.DecodeSignature(params.Signature)
	if err != nil {
		c.Fail(err, "")
		return
	}

	msg := []byte(params.Message)
	if params.Encoding == "hex" {
		if msg, err = hexutil.Decode(params.Message); err != nil {
			c.Fail(rpc.Errorf("message is not 0x hex: %v", err), "")
			return
		}
	}

	valid, err := pub.Verify(msg, sig)
	if err != nil {
		c.Fail(err, "")
		return
	}

	c.Succeed(c.Request.Req.Method, rpc.VerifySignatureResponse{IsValid: valid})
}

func (r *RPCRouter) HandleGetSubmission(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	var params rpc.GetSubmissionRequest
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	sub, err := GetSubmission(r.DB.WithContext(c.Context), params.ID)
	if err != nil {
		if !errors.Is(err, ErrSubmissionNotFound) {
			logger.Error("failed to get submission", "error", err)
		}
		c.Fail(err, "failed to get submission")
		return
	}

	c.Succeed(c.Request.Req.Method, sub.Response(r.decodeSubmission(sub, logger)))
}

func (r *RPCRouter) decodeSubmission(sub *Submission, logger log.Logger) map[string]string {
	if sub.Schema == "" {
		return nil
	}
	schema, err := r.Gateway.Schemas.Lookup(sub.Schema)
	if err != nil {
		logger.Warn("submission schema is no longer registered", "schema", sub.Schema)
		return nil
	}
	data, err := hexutil.Decode(sub.Params)
	if err != nil {
		logger.Warn("stored params are not hex", "submission", sub.ID, "error", err)
		return nil
	}
	values, err := r.Gateway.Schemas.Decode(sub.Schema, data)
	if err != nil {
		logger.Warn("failed to decode stored params", "submission", sub.ID, "error", err)
		return nil
	}
	return formatValues(schema, values)
}

func (r *RPCRouter) HandleGetSubmissions(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	var params rpc.GetSubmissionsRequest
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	sender, err := sign.ParseAccountID(params.Sender)
	if err != nil {
		c.Fail(err, "")
		return
	}

	subs, err := ListSubmissions(r.DB.WithContext(c.Context), sender.String(), SubmissionStatus(params.Status), &ListOptions{
		Offset: params.Offset,
		Limit:  params.Limit,
	})
	if err != nil {
		logger.Error("failed to list submissions", "error", err)
		c.Fail(err, "failed to list submissions")
		return
	}

	resp := rpc.GetSubmissionsResponse{Submissions: make([]rpc.Submission, 0, len(subs))}
	for _, sub := range subs {
		resp.Submissions = append(resp.Submissions, sub.Response(nil))
	}
	c.Succeed(c.Request.Req.Method, resp)
}

func (r *RPCRouter) HandleAccountStatus(c *rpc.Context) {
	var params rpc.AccountStatusRequest
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	r.accountStatus(c, params.Address)
}

func (r *RPCRouter) accountStatus(c *rpc.Context, address string) {
	id, err := sign.ParseAccountID(address)
	if err != nil {
		c.Fail(err, "")
		return
	}
	locked, err := r.Gateway.Keystore.IsLocked(address)
	if err != nil {
		c.Fail(err, "failed to read account status")
		return
	}

	c.Succeed(c.Request.Req.Method, rpc.AccountStatusResponse{Address: id.String(), Locked: locked})
}

// HandleGetRPCHistory returns the history of the account the connection is
// bound to.
func (r *RPCRouter) HandleGetRPCHistory(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	if c.UserID == "" {
		c.Fail(rpc.Errorf("connection is not bound to an account"), "")
		return
	}

	var params GetRPCHistoryParams
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	records, err := r.RPCStore.GetRPCHistory(c.UserID, &params.ListOptions)
	if err != nil {
		logger.Error("failed to retrieve RPC history", "error", err)
		c.Fail(err, "failed to retrieve RPC history")
		return
	}

	resp := GetRPCHistoryResponse{RPCEntries: make([]RPCEntry, 0, len(records))}
	for _, record := range records {
		resp.RPCEntries = append(resp.RPCEntries, RPCEntry{
			ID:        record.ID,
			Sender:    record.Sender,
			ReqID:     record.ReqID,
			Method:    record.Method,
			Params:    string(record.Params),
			Timestamp: record.Timestamp,
			ReqSig:    record.ReqSig,
			Result:    string(record.Response),
			ResSig:    record.ResSig,
		})
	}

	c.Succeed(c.Request.Req.Method, resp)
}
