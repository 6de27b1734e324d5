package rpc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

func TestResponseVerifyAndSigners(t *testing.T) {
	t.Parallel()

	signer, err := sign.NewSecp256k1Signer("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	payload := rpc.NewPayload(3, "get_config", nil)
	hash, err := payload.Hash()
	require.NoError(t, err)
	sig, err := signer.Sign(hash)
	require.NoError(t, err)

	res := rpc.NewResponse(payload, sig)
	require.NoError(t, res.Verify(signer.PublicKey()))

	signers, err := res.Signers()
	require.NoError(t, err)
	assert.Equal(t, []sign.AccountID{signer.PublicKey().AccountID()}, signers)

	other, err := sign.GenerateEd25519Signer()
	require.NoError(t, err)
	assert.ErrorIs(t, res.Verify(other.PublicKey()), rpc.ErrInvalidResponseSignature)

	res.Res.RequestID = 4
	assert.ErrorIs(t, res.Verify(signer.PublicKey()), rpc.ErrInvalidResponseSignature)
}

func TestNewErrorResponse(t *testing.T) {
	t.Parallel()

	res := rpc.NewErrorResponse(9, "DuplicateRequest: request already processed")
	assert.Equal(t, rpc.ErrorMethod.String(), res.Res.Method)
	assert.Equal(t, uint64(9), res.Res.RequestID)
	assert.Equal(t, errcode.DuplicateRequest, errcode.CodeOf(res.Error()))

	ok := rpc.NewResponse(rpc.NewPayload(9, "ping", nil))
	assert.NoError(t, ok.Error())
}
