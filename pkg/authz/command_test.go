package authz_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/authz"
	"github.com/erc7824/ledgergate/pkg/codec"
)

func TestDefaultCommands(t *testing.T) {
	schemas, err := codec.DefaultRegistry()
	require.NoError(t, err)
	commands, err := authz.DefaultCommands(schemas)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"transfer", "create_app", "update_commission", "submit_exchange_proposal",
		"confirm_payment", "audit_model_income", "load_account", "unlock_account", "lock_account",
	}, commands.Methods())

	audit, ok := commands.Lookup("audit_model_income")
	require.True(t, ok)
	assert.Equal(t, authz.TierChained, audit.Tier)
	assert.False(t, audit.Local())
	assert.True(t, audit.Parties[1].Trusted)

	unlock, ok := commands.Lookup("unlock_account")
	require.True(t, ok)
	assert.True(t, unlock.Local())
	assert.True(t, unlock.Privileged)
	assert.True(t, unlock.IsSecret("passphrase"))
	assert.False(t, unlock.IsSecret("address"))

	load, ok := commands.Lookup("load_account")
	require.True(t, ok)
	assert.True(t, load.IsSecret("account"))
	assert.Len(t, commands.All(), 9)
}

func TestLoadCommandsValidation(t *testing.T) {
	schemas, err := codec.DefaultRegistry()
	require.NoError(t, err)

	tcs := []struct {
		name string
		doc  string
	}{
		{"unknown schema", `{commands: [{method: m, schema: Nope, message: struct, tier: single, parties: [{role: sender, key_field: k, sig_field: s}]}]}`},
		{"struct without schema", `{commands: [{method: m, message: struct, tier: single, parties: [{role: sender, key_field: k, sig_field: s}]}]}`},
		{"unknown tier", `{commands: [{method: m, message: canonical, tier: triple, parties: [{role: sender, key_field: k, sig_field: s}]}]}`},
		{"dual with one party", `{commands: [{method: m, message: canonical, tier: dual, parties: [{role: sender, key_field: k, sig_field: s}]}]}`},
		{"unknown role", `{commands: [{method: m, message: canonical, tier: single, parties: [{role: admin, key_field: k, sig_field: s}]}]}`},
		{"shared field", `{commands: [{method: m, message: canonical, tier: dual, parties: [{role: app, key_field: k, sig_field: s}, {role: auth, key_field: k, sig_field: t}]}]}`},
		{"call without event", `{commands: [{method: m, message: canonical, tier: single, call: x.y, parties: [{role: sender, key_field: k, sig_field: s}]}]}`},
		{"secret signature field", `{commands: [{method: m, message: canonical, tier: single, secret: [s], parties: [{role: sender, key_field: k, sig_field: s}]}]}`},
		{"duplicate method", `{commands: [{method: m, message: canonical, tier: single, parties: [{role: sender, key_field: k, sig_field: s}]}, {method: m, message: canonical, tier: single, parties: [{role: sender, key_field: k, sig_field: s}]}]}`},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := authz.LoadCommands([]byte(tc.doc), schemas)
			assert.True(t, errors.Is(err, authz.ErrInvalidCommand), "%v", err)
		})
	}
}
