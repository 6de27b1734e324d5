package sign_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/sign"
)

const testSecpKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testEdSeed = hexutil.MustDecode("0x9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60")

func signers(t *testing.T) map[string]sign.Signer {
	t.Helper()
	secp, err := sign.NewSecp256k1Signer(testSecpKey)
	require.NoError(t, err)
	ed, err := sign.NewEd25519Signer(testEdSeed)
	require.NoError(t, err)
	return map[string]sign.Signer{"secp256k1": secp, "ed25519": ed}
}

func TestVerify(t *testing.T) {
	message := []byte("5Grw1000000000000000")

	for name, signer := range signers(t) {
		t.Run(name, func(t *testing.T) {
			sig, err := signer.Sign(message)
			require.NoError(t, err)
			pub := signer.PublicKey().Bytes()

			ok, err := sign.Verify(pub, message, sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = sign.Verify(pub, []byte("5Grw1000000000000001"), sig)
			require.NoError(t, err)
			assert.False(t, ok, "other message")

			flipped := append(sign.Signature(nil), sig...)
			flipped[10] ^= 0x01
			ok, err = sign.Verify(pub, message, flipped)
			require.NoError(t, err, "a wrong signature is not a format error")
			assert.False(t, ok)
		})
	}
}

func TestVerifyKeyFormat(t *testing.T) {
	s := signers(t)
	edPub := s["ed25519"].PublicKey().Bytes()
	secpPub := s["secp256k1"].PublicKey().Bytes()

	tcs := []struct {
		name string
		pub  []byte
		sig  sign.Signature
	}{
		{"unknown key length", make([]byte, 20), make(sign.Signature, 64)},
		{"secp256k1 key with bad prefix", append([]byte{0x05}, make([]byte, 32)...), make(sign.Signature, 65)},
		{"ed25519 short signature", edPub, make(sign.Signature, 63)},
		{"secp256k1 short signature", secpPub, make(sign.Signature, 64)},
		{"secp256k1 bad recovery id", secpPub, append(make(sign.Signature, 64), 5)},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sign.Verify(tc.pub, []byte("msg"), tc.sig)
			require.Error(t, err)
			assert.True(t, errors.Is(err, sign.ErrKeyFormat))
			assert.Equal(t, errcode.KeyFormatError, errcode.CodeOf(err))
		})
	}
}

func TestSecp256k1RecoveryID(t *testing.T) {
	signer := signers(t)["secp256k1"]
	message := []byte("chained")
	sig, err := signer.Sign(message)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.LessOrEqual(t, sig[64], byte(1))

	legacy := append(sign.Signature(nil), sig...)
	legacy[64] += 27
	ok, err := signer.PublicKey().Verify(message, legacy)
	require.NoError(t, err)
	assert.True(t, ok)

	recovered, err := sign.RecoverPublicKey(message, legacy)
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey().AccountID(), recovered.AccountID())
}

func TestDecodePublicKey(t *testing.T) {
	s := signers(t)

	t.Run("hex secp256k1", func(t *testing.T) {
		pub := s["secp256k1"].PublicKey()
		key, err := sign.DecodePublicKey(hexutil.Encode(pub.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, sign.SchemeSecp256k1, key.Scheme())
		assert.Equal(t, pub.AccountID(), key.AccountID())
	})

	t.Run("ss58 ed25519", func(t *testing.T) {
		pub := s["ed25519"].PublicKey()
		key, err := sign.DecodePublicKey(pub.AccountID().String())
		require.NoError(t, err)
		assert.Equal(t, sign.SchemeEd25519, key.Scheme())
		assert.Equal(t, pub.Bytes(), key.Bytes())
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := sign.DecodePublicKey("not-a-key")
		assert.True(t, errors.Is(err, sign.ErrKeyFormat))
		_, err = sign.DecodePublicKey("0xzz")
		assert.True(t, errors.Is(err, sign.ErrKeyFormat))
	})
}

func TestAccountID(t *testing.T) {
	s := signers(t)
	ed := s["ed25519"].PublicKey()
	secp := s["secp256k1"].PublicKey()

	assert.Equal(t, ed.Bytes(), ed.AccountID().Bytes(), "ed25519 account id is the key")
	assert.NotEqual(t, secp.Bytes()[1:], secp.AccountID().Bytes())

	for _, in := range []string{
		secp.AccountID().String(),
		secp.AccountID().Hex(),
		hexutil.Encode(secp.Bytes()),
	} {
		id, err := sign.ParseAccountID(in)
		require.NoError(t, err, in)
		assert.Equal(t, secp.AccountID(), id)
	}

	_, err := sign.ParseAccountID("0x1234")
	assert.True(t, errors.Is(err, sign.ErrKeyFormat))

	data, err := json.Marshal(map[string]sign.AccountID{"who": ed.AccountID()})
	require.NoError(t, err)
	var back map[string]sign.AccountID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ed.AccountID(), back["who"])
}

func TestSignatureJSON(t *testing.T) {
	data, err := json.Marshal(sign.Signature{0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, `"0x010203"`, string(data))

	var sig sign.Signature
	require.NoError(t, json.Unmarshal(data, &sig))
	assert.Equal(t, sign.Signature{0x01, 0x02, 0x03}, sig)

	for _, bad := range []string{`{invalid}`, `"0xinvalidhex"`, `123`} {
		assert.Error(t, json.Unmarshal([]byte(bad), &sig), bad)
	}
}

func TestMessageFromString(t *testing.T) {
	assert.Equal(t, []byte("P1"), sign.MessageFromString("P1"))
	assert.Equal(t, []byte{0xde, 0xad}, sign.MessageFromString("0xdead"))
	assert.Equal(t, []byte("0xnothex"), sign.MessageFromString("0xnothex"))
}
