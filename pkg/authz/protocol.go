// Package authz decides whether a signed request may become a ledger
// command.
//
// Each request runs through a short pipeline:
//
//	Received -> NormalizingFields -> Encoding -> VerifyingSignatures -> Authorized | Rejected
//
// The command table says which schema normalizes the params, whether the
// parties sign the schema encoding or the canonical concatenation, and how
// many parties must sign. Every failure carries an errcode.Code; signature
// failures carry the code of the party that failed.
//
// Authorize is synchronous and holds no mutable state, so one Protocol
// serves any number of concurrent requests. Submission is a separate step.
package authz

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erc7824/ledgergate/pkg/canon"
	"github.com/erc7824/ledgergate/pkg/codec"
	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/sign"
)

var (
	ErrUnknownMethod = errcode.New(errcode.MalformedRequest, "unknown method")
	ErrNotAllowed    = errcode.New(errcode.AllowListRejected, "not on the allow-list")
)

// PartySignature is a verified signature together with its signer.
type PartySignature struct {
	Role      Role           `json:"role"`
	PublicKey hexutil.Bytes  `json:"public_key"`
	Account   sign.AccountID `json:"account"`
	Signature sign.Signature `json:"signature"`
}

// AuthorizedCommand is the result of a successful authorization. It is plain
// data and is safe to hand to another goroutine.
type AuthorizedCommand struct {
	Command *Command
	// Sender is the account of the first party.
	Sender sign.AccountID
	// Values are the normalized params; nil for commands without a schema.
	Values codec.Values
	// Params is the schema encoding of Values.
	Params []byte
	// Message is what the first party signed.
	Message    []byte
	Signatures []PartySignature
	// Fields are the raw request params.
	Fields map[string]any
}

// Protocol authorizes requests against a command table.
type Protocol struct {
	schemas     *codec.Registry
	commands    *CommandTable
	allow       *AllowList
	authorities map[sign.AccountID]struct{}
	tracer      trace.Tracer
}

// NewProtocol wires the registries together. A nil allow-list rejects every
// privileged command.
func NewProtocol(schemas *codec.Registry, commands *CommandTable, allow *AllowList, authorities []sign.AccountID) *Protocol {
	auth := make(map[sign.AccountID]struct{}, len(authorities))
	for _, id := range authorities {
		auth[id] = struct{}{}
	}
	return &Protocol{
		schemas:     schemas,
		commands:    commands,
		allow:       allow,
		authorities: auth,
		tracer:      otel.Tracer("github.com/erc7824/ledgergate/pkg/authz"),
	}
}

func (p *Protocol) Schemas() *codec.Registry { return p.schemas }

func (p *Protocol) Commands() *CommandTable { return p.commands }

type party struct {
	Party
	key sign.PublicKey
	raw string
}

// Authorize runs the pipeline for method with the raw request params, as
// decoded by encoding/json with UseNumber.
func (p *Protocol) Authorize(ctx context.Context, method string, fields map[string]any) (*AuthorizedCommand, error) {
	ctx, span := p.tracer.Start(ctx, "authz.Authorize", trace.WithAttributes(attribute.String("method", method)))
	defer span.End()
	logger := log.FromContext(ctx).WithKV("method", method)

	cmd, err := p.authorize(logger, method, fields)
	if err != nil {
		span.SetStatus(codes.Error, string(errcode.CodeOf(err)))
		logger.Info("request rejected", "code", errcode.CodeOf(err), "reason", err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("sender", cmd.Sender.String()))
	logger.Debug("request authorized", "sender", cmd.Sender)
	return cmd, nil
}

func (p *Protocol) authorize(logger log.Logger, method string, fields map[string]any) (*AuthorizedCommand, error) {
	command, ok := p.commands.Lookup(method)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownMethod, method)
	}
	logger.Debug("received", "tier", command.Tier, "message", command.Message)

	parties := make([]party, len(command.Parties))
	for i, pt := range command.Parties {
		raw, err := stringField(fields, pt.KeyField)
		if err != nil {
			return nil, err
		}
		key, err := sign.DecodePublicKey(raw)
		if err != nil {
			return nil, errcode.Errorf(errcode.MalformedRequest, "%s key: %w", pt.Role, err)
		}
		parties[i] = party{Party: pt, key: key, raw: raw}
	}

	if command.Privileged && !p.allow.Allows(parties[0].raw) {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, parties[0].key.AccountID())
	}

	out := &AuthorizedCommand{
		Command: command,
		Sender:  parties[0].key.AccountID(),
		Fields:  fields,
	}

	if command.Schema != "" {
		logger.Debug("normalizing fields", "schema", command.Schema)
		values, err := p.schemas.Normalize(command.Schema, fields)
		if err != nil {
			return nil, errcode.Nest(errcode.MalformedRequest, err)
		}
		out.Values = values

		logger.Debug("encoding", "schema", command.Schema)
		if out.Params, err = p.schemas.Encode(command.Schema, values); err != nil {
			return nil, err
		}
	}

	switch command.Message {
	case MessageStruct:
		out.Message = out.Params
	case MessageCanonical:
		unsigned := maps.Clone(fields)
		maps.DeleteFunc(unsigned, func(k string, _ any) bool { return command.isSigField(k) })
		msg, err := canon.Canonicalize(unsigned)
		if err != nil {
			return nil, errcode.Errorf(errcode.MalformedRequest, "canonical message: %w", err)
		}
		out.Message = msg
	}

	logger.Debug("verifying signatures", "parties", len(parties))
	sigs, err := p.verify(command, parties, out.Message, fields)
	if err != nil {
		return nil, err
	}
	out.Signatures = sigs
	return out, nil
}

// verify checks every party. For dual commands all signatures are checked
// before the first failure in party order is reported.
func (p *Protocol) verify(command *Command, parties []party, msg []byte, fields map[string]any) ([]PartySignature, error) {
	sigs := make([]PartySignature, len(parties))
	for i, pt := range parties {
		raw, err := stringField(fields, pt.SigField)
		if err != nil {
			return nil, err
		}
		sig, err := sign.DecodeSignature(raw)
		if err != nil {
			return nil, errcode.Errorf(pt.Role.code(), "%s signature: %w", pt.Role, err)
		}
		sigs[i] = PartySignature{
			Role:      pt.Role,
			PublicKey: pt.key.Bytes(),
			Account:   pt.key.AccountID(),
			Signature: sig,
		}
	}

	switch command.Tier {
	case TierChained:
		if err := p.verifyParty(parties[0], msg, sigs[0].Signature); err != nil {
			return nil, err
		}
		if err := p.verifyParty(parties[1], ChainedMessage(msg, sigs[0].Signature), sigs[1].Signature); err != nil {
			return nil, err
		}

	default:
		var first error
		for i, pt := range parties {
			if err := p.verifyParty(pt, msg, sigs[i].Signature); err != nil && first == nil {
				first = err
			}
		}
		if first != nil {
			return nil, first
		}
	}
	return sigs, nil
}

func (p *Protocol) verifyParty(pt party, msg []byte, sig sign.Signature) error {
	if pt.Trusted {
		if _, ok := p.authorities[pt.key.AccountID()]; !ok {
			return errcode.Errorf(pt.Role.code(), "%s key %s is not a trusted authority", pt.Role, pt.key.AccountID())
		}
	}

	valid, err := pt.key.Verify(msg, sig)
	if err != nil {
		return errcode.Errorf(pt.Role.code(), "%s signature: %w", pt.Role, err)
	}
	if !valid {
		return errcode.Errorf(pt.Role.code(), "%s signature does not verify", pt.Role)
	}
	return nil
}

// ChainedMessage returns what the second party of a chained command signs.
func ChainedMessage(msg []byte, first sign.Signature) []byte {
	return append(slices.Clone(msg), first...)
}

func stringField(fields map[string]any, name string) (string, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return "", errcode.Errorf(errcode.MalformedRequest, "missing field %q", name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errcode.Errorf(errcode.MalformedRequest, "field %q must be a non-empty string", name)
	}
	return s, nil
}
