package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/authz"
	"github.com/erc7824/ledgergate/pkg/ledger"
	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

func TestHandleLedgerCommand(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := setupTestRPCRouter(t)
		fields, encoded := f.proposalFields(t, "proposal-1")

		c := newTestContext(t, "submit_exchange_proposal", fields)
		f.router.authorized(f.router.HandleLedgerCommand)(c)

		var res rpc.CommandResult
		requireResult(t, c, &res)
		assert.Equal(t, "accepted", res.Status)
		assert.Equal(t, testTxHash.Hex(), res.TxHash)
		assert.Equal(t, "finance.ProposalCreated", res.Event)
		assert.JSONEq(t, `{"ok":true}`, string(res.Data))
		require.NoError(t, uuid.Validate(res.SubmissionID))

		sender := f.app.PublicKey().AccountID().String()
		assert.Equal(t, sender, c.UserID)

		cmds := f.ledger.commands()
		require.Len(t, cmds, 1)
		assert.Equal(t, "finance.submitProposal", cmds[0].Call)
		assert.Equal(t, encoded, cmds[0].Params)
		require.Len(t, cmds[0].Signatures, 2)
		assert.Equal(t, "app", cmds[0].Signatures[0].Role)
		assert.Equal(t, "auth", cmds[0].Signatures[1].Role)

		submitter, err := sign.ParseAccountID(f.submitter.Address)
		require.NoError(t, err)
		assert.Equal(t, submitter, cmds[0].Submitter)
		pub, err := sign.RecoverPublicKey(encoded, cmds[0].SubmitterSignature)
		require.NoError(t, err)
		assert.Equal(t, submitter, pub.AccountID())

		stored, err := GetSubmission(f.db, res.SubmissionID)
		require.NoError(t, err)
		assert.Equal(t, SubmissionAccepted, stored.Status)
		assert.Equal(t, sender, stored.Sender)
		assert.Equal(t, "ExchangeProposal", stored.Schema)

		select {
		case n := <-f.notifier.ch:
			assert.Equal(t, sender, n.userID)
			assert.Equal(t, rpc.SubmissionUpdateEvent.String(), n.method)
			var update rpc.Submission
			require.NoError(t, n.params.Translate(&update))
			assert.Equal(t, res.SubmissionID, update.ID)
			assert.Equal(t, "accepted", update.Status)
		case <-time.After(time.Second):
			t.Fatal("no submission update")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		f := setupTestRPCRouter(t)
		f.ledger.result = func(ledger.Command) (ledger.Outcome, error) {
			return ledger.Outcome{}, &ledger.RejectedError{
				TxHash: testTxHash,
				Event:  "system.ExtrinsicFailed",
				Data:   json.RawMessage(`{"module":"finance","error":"DuplicateProposal"}`),
			}
		}
		fields, _ := f.proposalFields(t, "proposal-2")

		c := newTestContext(t, "submit_exchange_proposal", fields)
		f.router.authorized(f.router.HandleLedgerCommand)(c)
		requireErrorPrefix(t, c, "LedgerRejected")

		subs, err := ListSubmissions(f.db, f.app.PublicKey().AccountID().String(), SubmissionRejected, nil)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "system.ExtrinsicFailed", subs[0].Event)
		assert.Equal(t, testTxHash.Hex(), subs[0].TxHash)
		assert.Contains(t, subs[0].Error, "LedgerRejected: ")
	})

	t.Run("pending then settled", func(t *testing.T) {
		f := setupTestRPCRouter(t)
		f.router.Config.SubmissionWait = 20 * time.Millisecond
		f.ledger.release = make(chan struct{})
		fields, _ := f.proposalFields(t, "proposal-3")

		c := newTestContext(t, "submit_exchange_proposal", fields)
		f.router.authorized(f.router.HandleLedgerCommand)(c)

		var res rpc.CommandResult
		requireResult(t, c, &res)
		assert.Equal(t, "pending", res.Status)
		assert.Empty(t, res.TxHash)

		stored, err := GetSubmission(f.db, res.SubmissionID)
		require.NoError(t, err)
		assert.Equal(t, SubmissionPending, stored.Status)

		close(f.ledger.release)
		select {
		case n := <-f.notifier.ch:
			var update rpc.Submission
			require.NoError(t, n.params.Translate(&update))
			assert.Equal(t, "accepted", update.Status)
		case <-time.After(time.Second):
			t.Fatal("no submission update")
		}

		f.router.Submitter.Wait()
		stored, err = GetSubmission(f.db, res.SubmissionID)
		require.NoError(t, err)
		assert.Equal(t, SubmissionAccepted, stored.Status)
		assert.Equal(t, testTxHash.Hex(), stored.TxHash)
	})

	t.Run("locked submitter", func(t *testing.T) {
		f := setupTestRPCRouter(t)
		require.NoError(t, f.router.Gateway.Keystore.Lock(f.submitter.Address))
		fields, _ := f.proposalFields(t, "proposal-4")

		c := newTestContext(t, "submit_exchange_proposal", fields)
		f.router.authorized(f.router.HandleLedgerCommand)(c)
		requireErrorPrefix(t, c, "KeyLocked")

		assert.Empty(t, f.ledger.commands())
		subs, err := ListSubmissions(f.db, f.app.PublicKey().AccountID().String(), "", nil)
		require.NoError(t, err)
		assert.Empty(t, subs)
	})
}

func TestAuthorizedRejections(t *testing.T) {
	f := setupTestRPCRouter(t)
	const method = "submit_exchange_proposal"

	tcs := []struct {
		name   string
		mutate func(fields map[string]any)
		code   string
	}{
		{
			name:   "auth signature over other bytes",
			mutate: func(fields map[string]any) { fields["authSign"] = mustSign(t, f.auth, []byte("other")).String() },
			code:   "AuthSignatureInvalid",
		},
		{
			name:   "app signature over other bytes",
			mutate: func(fields map[string]any) { fields["appSign"] = mustSign(t, f.app, []byte("other")).String() },
			code:   "AppSignatureInvalid",
		},
		{
			name:   "untrusted authority",
			mutate: func(fields map[string]any) { fields["authKey"] = pubHex(newTestSecp256k1(t)) },
			code:   "AuthSignatureInvalid",
		},
		{
			name:   "bad public key",
			mutate: func(fields map[string]any) { fields["appKey"] = "0x1234" },
			code:   "MalformedRequest",
		},
		{
			name:   "amount is not a decimal",
			mutate: func(fields map[string]any) { fields["amount"] = "ten" },
			code:   "MalformedRequest",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			fields, _ := f.proposalFields(t, uuid.NewString())
			tc.mutate(fields)

			before := testutil.ToFloat64(f.router.Metrics.AuthorizationRejections.WithLabelValues(method, tc.code))
			c := newTestContext(t, method, fields)
			f.router.authorized(f.router.HandleLedgerCommand)(c)
			requireErrorPrefix(t, c, tc.code)

			after := testutil.ToFloat64(f.router.Metrics.AuthorizationRejections.WithLabelValues(method, tc.code))
			assert.Equal(t, before+1, after)
			assert.Empty(t, c.UserID)
		})
	}

	assert.Empty(t, f.ledger.commands())
}

func TestLocalAccountCommands(t *testing.T) {
	f := setupTestRPCRouter(t)
	handlers := f.router.localHandlers()

	run := func(t *testing.T, method string, signer sign.Signer, fields map[string]any) *rpc.Context {
		t.Helper()
		c := newTestContext(t, method, f.operatorFields(t, signer, fields))
		f.router.authorized(handlers[method])(c)
		return c
	}

	file, data := newTestAccount(t)

	t.Run("load", func(t *testing.T) {
		c := run(t, "load_account", f.operator, map[string]any{"account": string(data)})

		var res rpc.AccountStatusResponse
		requireResult(t, c, &res)
		id, err := sign.ParseAccountID(file.Address)
		require.NoError(t, err)
		assert.Equal(t, id.String(), res.Address)
		assert.True(t, res.Locked)
	})

	t.Run("unlock with wrong passphrase", func(t *testing.T) {
		c := run(t, "unlock_account", f.operator, map[string]any{"address": file.Address, "passphrase": "wrong"})
		require.Error(t, c.Response.Error())
	})

	t.Run("unlock", func(t *testing.T) {
		c := run(t, "unlock_account", f.operator, map[string]any{"address": file.Address, "passphrase": testPassphrase})

		var res rpc.AccountStatusResponse
		requireResult(t, c, &res)
		assert.False(t, res.Locked)
		assert.Equal(t, float64(2), testutil.ToFloat64(f.router.Metrics.UnlockedAccounts))
	})

	t.Run("lock", func(t *testing.T) {
		c := run(t, "lock_account", f.operator, map[string]any{"address": file.Address})

		var res rpc.AccountStatusResponse
		requireResult(t, c, &res)
		assert.True(t, res.Locked)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.router.Metrics.UnlockedAccounts))
	})

	t.Run("operator not on allow-list", func(t *testing.T) {
		c := run(t, "lock_account", newTestEd25519(t), map[string]any{"address": f.submitter.Address})
		requireErrorPrefix(t, c, "AllowListRejected")

		locked, err := f.router.Gateway.Keystore.IsLocked(f.submitter.Address)
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("unknown account", func(t *testing.T) {
		c := run(t, "lock_account", f.operator, map[string]any{"address": newTestEd25519(t).PublicKey().AccountID().String()})
		requireErrorPrefix(t, c, "KeyNotFound")
	})
}

func TestLocalCommandsNeverReachLedger(t *testing.T) {
	f := setupTestRPCRouter(t)

	cmd, ok := f.router.Gateway.Commands.Lookup("lock_account")
	require.True(t, ok)
	require.True(t, cmd.Local())

	_, _, err := f.router.Submitter.Submit(t.Context(), &authz.AuthorizedCommand{Command: cmd})
	require.Error(t, err)
	assert.Empty(t, f.ledger.commands())
}
