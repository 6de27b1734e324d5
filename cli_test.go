package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/codec"
	"github.com/erc7824/ledgergate/pkg/keystore"
	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

func TestRenderSchemas(t *testing.T) {
	schemas, err := codec.DefaultRegistry()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderSchemas(&buf, schemas))

	out := buf.String()
	for _, name := range schemas.Names() {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "proposalId")
	assert.Contains(t, out, "14 fractional digits")
}

func TestSubmissionExporter(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < exportPageSize+5; i++ {
		createTestSubmission(t, db, "alice", base.Add(time.Duration(i)*time.Second))
	}
	createTestSubmission(t, db, "bob", base)

	exporter := NewSubmissionExporter(db)

	t.Run("pages through every submission", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, exporter.ExportToCSV(&buf, "alice"))

		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, exportPageSize+5+1)
		assert.Equal(t, []string{"ID", "Method", "Call", "Schema", "Status", "TxHash", "Event", "Error", "Params", "CreatedAt", "UpdatedAt"}, rows[0])
		assert.Equal(t, "pending", rows[1][4])
		assert.Equal(t, "0x0102", rows[1][8])
	})

	t.Run("to file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		path, err := exporter.ExportToFile("bob", dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "submissions_bob.csv"), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(string(data), "\n"))
	})
}

func TestWriteAccountFile(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "keys")
	path, err := writeAccountFile(dir, key, testPassphrase, gethkeystore.LightScryptN, gethkeystore.LightScryptP)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	store := keystore.New()
	ids, err := store.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, filepath.Join(dir, ids[0].String()+".json"), path)

	address := ids[0].String()
	require.NoError(t, store.Unlock(address, testPassphrase))

	msg := []byte("ledgergate")
	sig, err := store.Sign(address, msg)
	require.NoError(t, err)
	pub, err := sign.RecoverPublicKey(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, sign.NewSecp256k1SignerFromKey(key).PublicKey().AccountID(), pub.AccountID())
}

func TestReadNewPassphraseFromEnv(t *testing.T) {
	t.Setenv(accountPassphraseEnv, "s3cret")
	pass, err := readNewPassphrase()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pass)

	t.Setenv(accountPassphraseEnv, "  ")
	_, err = readNewPassphrase()
	require.Error(t, err)
}

func TestCallOnce(t *testing.T) {
	f := setupTestRPCRouter(t)
	server := httptest.NewServer(f.router.Node)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := rpc.DefaultWebsocketDialerConfig
	cfg.PingInterval = 0
	client := rpc.NewClient(rpc.NewWebsocketDialer(cfg))
	require.NoError(t, client.Start(ctx, "ws://"+server.Listener.Addr().String(), nil))

	var out bytes.Buffer
	require.NoError(t, callOnce(ctx, client, "canonical_message", `{"params":{"b":"2","a":1}}`, &out))

	text := out.String()
	assert.Contains(t, text, `"text": "12"`)
	assert.Contains(t, text, "signature 0x")

	require.Error(t, callOnce(ctx, client, "canonical_message", `[1,2]`, &out))
	require.Error(t, callOnce(ctx, client, "encode_params", `{"schema":"Nope","params":{}}`, &out))

	var decoded json.RawMessage
	_, err := client.Call(ctx, "get_config", nil, &decoded)
	require.NoError(t, err)
}
