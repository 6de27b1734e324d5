package rpc

import (
	"errors"
	"fmt"

	"github.com/erc7824/ledgergate/pkg/sign"
)

// ErrInvalidResponseSignature is returned by Response.Verify when no
// signature matches the key.
var ErrInvalidResponseSignature = errors.New("response is not signed by the expected key")

// Request is a client message. Signatures are optional: commands carry their
// party signatures inside the params.
type Request struct {
	Req Payload          `json:"req"`
	Sig []sign.Signature `json:"sig,omitempty"`
}

func NewRequest(payload Payload, sig ...sign.Signature) Request {
	return Request{
		Req: payload,
		Sig: sig,
	}
}

// Response is a server message, also used for notifications.
type Response struct {
	Res Payload          `json:"res"`
	Sig []sign.Signature `json:"sig"`
}

func NewResponse(payload Payload, sig ...sign.Signature) Response {
	return Response{
		Res: payload,
		Sig: sig,
	}
}

// NewErrorResponse builds an unsigned response with method "error".
func NewErrorResponse(requestID uint64, errMsg string, sig ...sign.Signature) Response {
	errParams := NewErrorParams(errMsg)
	errPayload := NewPayload(requestID, ErrorMethod.String(), errParams)
	return NewResponse(errPayload, sig...)
}

// Error returns the carried error for error responses, nil otherwise.
func (r Response) Error() error {
	if r.Res.Method != ErrorMethod.String() {
		return nil
	}

	return r.Res.Params.Error()
}

// Verify checks that one of the response signatures was made by pub over the
// payload hash.
func (r Response) Verify(pub sign.PublicKey) error {
	payloadHash, err := r.Res.Hash()
	if err != nil {
		return err
	}

	for _, s := range r.Sig {
		ok, err := pub.Verify(payloadHash, s)
		if err != nil {
			continue
		}
		if ok {
			return nil
		}
	}
	return ErrInvalidResponseSignature
}

// Signers recovers the accounts behind secp256k1 response signatures.
func (r Response) Signers() ([]sign.AccountID, error) {
	payloadHash, err := r.Res.Hash()
	if err != nil {
		return nil, err
	}

	ids := make([]sign.AccountID, 0, len(r.Sig))
	for i, s := range r.Sig {
		pub, err := sign.RecoverPublicKey(payloadHash, s)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		ids = append(ids, pub.AccountID())
	}
	return ids, nil
}
