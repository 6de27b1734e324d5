package authz_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/authz"
)

func TestAllowListTruthiness(t *testing.T) {
	secp := newSecp256k1(t)
	ed := newEd25519(t)
	members := map[string]string{
		"true":   "true",
		"one":    "1",
		"string": `"yes"`,
		"zero-s": `"0"`,
		"list":   "[]",
	}
	nonMembers := map[string]string{
		"false": "false",
		"zero":  "0",
		"fzero": "0.0",
		"empty": `""`,
		"null":  "null",
	}

	doc := "{"
	for k, v := range members {
		doc += `"` + k + `": ` + v + ","
	}
	for k, v := range nonMembers {
		doc += `"` + k + `": ` + v + ","
	}
	doc += `"` + secp.PublicKey().AccountID().String() + `": true,`
	doc += `"` + hexutil.Encode(ed.PublicKey().Bytes()) + `": 1}`

	path := filepath.Join(t.TempDir(), "allowlist.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	list, err := authz.LoadAllowListFile(path)
	require.NoError(t, err)

	for k := range members {
		assert.True(t, list.Allows(k), k)
	}
	for k := range nonMembers {
		assert.False(t, list.Allows(k), k)
	}
	assert.Equal(t, len(members)+2, list.Len())

	t.Run("any form of a listed key", func(t *testing.T) {
		assert.True(t, list.Allows(hexutil.Encode(secp.PublicKey().Bytes())))
		assert.True(t, list.Allows(secp.PublicKey().AccountID().Hex()))
		assert.True(t, list.Allows(ed.PublicKey().AccountID().String()))
		assert.False(t, list.Allows(newEd25519(t).PublicKey().AccountID().String()))
	})

	t.Run("yaml", func(t *testing.T) {
		list, err := authz.LoadAllowList([]byte("operator: true\nretired: false\n"))
		require.NoError(t, err)
		assert.True(t, list.Allows("operator"))
		assert.False(t, list.Allows("retired"))
	})

	var nilList *authz.AllowList
	assert.False(t, nilList.Allows("true"))
}
