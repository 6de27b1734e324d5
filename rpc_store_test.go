package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

func TestRPCStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRPCStore(db)
	signer := newTestSecp256k1(t)

	params, err := rpc.NewParams(map[string]any{"schema": "Transfer"})
	require.NoError(t, err)
	reqSig := mustSign(t, signer, []byte("req"))
	resSig := mustSign(t, signer, []byte("res"))

	for i := uint64(1); i <= 3; i++ {
		req := rpc.Payload{RequestID: i, Method: "encode_params", Params: params, Timestamp: 1000 + i}
		res := rpc.Payload{RequestID: i, Method: "encode_params", Params: rpc.Params{"result": json.RawMessage(`{}`)}, Timestamp: 2000 + i}
		require.NoError(t, store.StoreMessage("alice", req, []sign.Signature{reqSig}, res, []sign.Signature{resSig}))
	}
	require.NoError(t, store.StoreMessage("", rpc.Payload{RequestID: 9, Method: "ping"}, nil, rpc.Payload{RequestID: 9, Method: "pong"}, nil))

	t.Run("newest first", func(t *testing.T) {
		records, err := store.GetRPCHistory("alice", nil)
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, uint64(3), records[0].ReqID)
		assert.Equal(t, uint64(1003), records[0].Timestamp)
		assert.Equal(t, []string{reqSig.String()}, []string(records[0].ReqSig))
		assert.Equal(t, []string{resSig.String()}, []string(records[0].ResSig))
		assert.JSONEq(t, `{"schema":"Transfer"}`, string(records[0].Params))

		var res rpc.Payload
		require.NoError(t, json.Unmarshal(records[0].Response, &res))
		assert.Equal(t, uint64(2003), res.Timestamp)
	})

	t.Run("paging", func(t *testing.T) {
		records, err := store.GetRPCHistory("alice", &ListOptions{Offset: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, uint64(2), records[0].ReqID)
	})

	t.Run("unbound connections", func(t *testing.T) {
		records, err := store.GetRPCHistory("", nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Empty(t, records[0].ReqSig)
	})
}
