// Package sign verifies and produces the signatures accepted by ledgergate.
//
// Two schemes are supported and are told apart by public key length:
//
//   - ed25519: 32-byte keys, 64-byte signatures over the raw message.
//   - secp256k1: 33-byte compressed or 65-byte uncompressed keys, 65-byte
//     R‖S‖V signatures over blake2b-256(message). V may be 0/1 or 27/28.
//
// Every key maps to a 32-byte AccountID: the key itself for ed25519 and
// blake2b-256 of the compressed key for secp256k1. AccountIDs print as SS58
// addresses.
//
// Verification never fails for a signature that is well formed but wrong;
// it reports false. ErrKeyFormat is returned only when a key or signature
// cannot be decoded at all.
//
//	ok, err := sign.Verify(pubKey, message, signature)
//	if err != nil {
//	    // malformed input, blame the caller
//	}
package sign
