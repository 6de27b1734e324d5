package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/ledger"
	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

func TestNewGateway(t *testing.T) {
	dir := t.TempDir()
	operator := newTestEd25519(t)
	auth := newTestSecp256k1(t)

	allowPath := filepath.Join(dir, "allowlist.yaml")
	require.NoError(t, os.WriteFile(allowPath, []byte(operator.PublicKey().AccountID().String()+": true\n"), 0o600))

	keyDir := filepath.Join(dir, "keys")
	require.NoError(t, os.Mkdir(keyDir, 0o700))
	file, data := newTestAccount(t)
	require.NoError(t, os.WriteFile(filepath.Join(keyDir, file.Address+".json"), data, 0o600))

	conf := validTestConfig()
	conf.AllowListPath = allowPath
	conf.KeystoreDir = keyDir
	conf.AuthorityKeys = []string{pubHex(auth)}

	gw, err := NewGateway(context.Background(), &conf, log.NewNoopLogger())
	require.NoError(t, err)
	defer gw.Close()

	assert.IsType(t, ledger.Unavailable{}, gw.Ledger)
	assert.Contains(t, gw.Commands.Methods(), "submit_exchange_proposal")

	locked, err := gw.Keystore.IsLocked(file.Address)
	require.NoError(t, err)
	assert.True(t, locked)

	t.Run("bad schema path", func(t *testing.T) {
		conf := validTestConfig()
		conf.SchemasPath = filepath.Join(dir, "missing.yaml")
		_, err := NewGateway(context.Background(), &conf, log.NewNoopLogger())
		require.Error(t, err)
	})
}

func TestGatewayOverWebsocket(t *testing.T) {
	f := setupTestRPCRouter(t)
	f.router.Config.SubmissionWait = 50 * time.Millisecond
	f.ledger.release = make(chan struct{})

	// Notifications go through the websocket node instead of the recorder.
	f.router.Submitter.notifier = f.router.Node

	server := httptest.NewServer(f.router.Node)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := rpc.DefaultWebsocketDialerConfig
	cfg.PingInterval = 0
	client := rpc.NewClient(rpc.NewWebsocketDialer(cfg))

	updates := make(chan rpc.Submission, 1)
	client.HandleSubmissionUpdateEvent(func(_ context.Context, notif rpc.Submission, sigs []sign.Signature) {
		updates <- notif
	})
	require.NoError(t, client.Start(ctx, "ws://"+server.Listener.Addr().String(), nil))

	conf, _, err := client.GetConfig(ctx)
	require.NoError(t, err)
	assert.Contains(t, conf.Methods, "submit_exchange_proposal")

	fields, _ := f.proposalFields(t, "proposal-ws")
	res, sigs, err := client.SubmitCommand(ctx, "submit_exchange_proposal", fields)
	require.NoError(t, err)
	assert.Equal(t, "pending", res.Status)
	require.NotEmpty(t, sigs)

	// The connection is bound to the sender once the command response is
	// written. A second round trip makes sure that happened.
	_, err = client.Ping(ctx)
	require.NoError(t, err)

	close(f.ledger.release)

	select {
	case update := <-updates:
		assert.Equal(t, "accepted", update.Status)
		assert.Equal(t, f.app.PublicKey().AccountID().String(), update.Sender)
	case <-ctx.Done():
		t.Fatal("no submission update received")
	}

	sub, _, err := client.GetSubmission(ctx, rpc.GetSubmissionRequest{ID: res.SubmissionID})
	require.NoError(t, err)
	assert.Equal(t, res.SubmissionID, sub.ID)
}
