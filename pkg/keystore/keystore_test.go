package keystore_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/errcode"
	lgkeystore "github.com/erc7824/ledgergate/pkg/keystore"
	"github.com/erc7824/ledgergate/pkg/sign"
)

const passphrase = "correct horse"

func newAccountFile(t *testing.T) (lgkeystore.AccountFile, []byte) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	file, err := lgkeystore.NewAccountFile(key, passphrase, keystore.LightScryptN, keystore.LightScryptP, map[string]any{"name": "submitter"})
	require.NoError(t, err)
	data, err := json.Marshal(file)
	require.NoError(t, err)
	return file, data
}

func TestStoreLifecycle(t *testing.T) {
	file, data := newAccountFile(t)
	store := lgkeystore.New()

	id, err := store.Load(data)
	require.NoError(t, err)
	assert.Equal(t, file.Address, id.String())

	locked, err := store.IsLocked(file.Address)
	require.NoError(t, err)
	assert.True(t, locked)

	msg := []byte("encoded params")
	_, err = store.Sign(file.Address, msg)
	require.Error(t, err)
	assert.Equal(t, errcode.KeyLocked, errcode.CodeOf(err))

	err = store.Unlock(file.Address, "wrong")
	assert.True(t, errors.Is(err, lgkeystore.ErrKeyLocked))

	require.NoError(t, store.Unlock(file.Address, passphrase))
	require.NoError(t, store.Unlock(id.Hex(), passphrase), "unlocking twice is a no-op")
	assert.Equal(t, 1, store.Unlocked())

	sig, err := store.Sign(id.Hex(), msg)
	require.NoError(t, err)
	recovered, err := sign.RecoverPublicKey(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, id, recovered.AccountID())

	require.NoError(t, store.Lock(file.Address))
	_, err = store.Sign(file.Address, msg)
	assert.True(t, errors.Is(err, lgkeystore.ErrKeyLocked))
	assert.Equal(t, 0, store.Unlocked())

	accounts := store.Accounts()
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].Locked)
	assert.Equal(t, "submitter", accounts[0].Meta["name"])
}

func TestUnknownAccount(t *testing.T) {
	store := lgkeystore.New()
	var id sign.AccountID
	id[0] = 1

	_, err := store.Sign(id.String(), []byte("m"))
	assert.Equal(t, errcode.KeyNotFound, errcode.CodeOf(err))
	assert.Equal(t, errcode.KeyNotFound, errcode.CodeOf(store.Unlock(id.String(), passphrase)))
	assert.Equal(t, errcode.KeyNotFound, errcode.CodeOf(store.Lock(id.String())))
	_, err = store.IsLocked(id.String())
	assert.Equal(t, errcode.KeyNotFound, errcode.CodeOf(err))

	_, err = store.Sign("garbage", []byte("m"))
	assert.Equal(t, errcode.KeyFormatError, errcode.CodeOf(err))
}

func TestLoadRejectsBadFiles(t *testing.T) {
	file, _ := newAccountFile(t)

	tcs := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"bad address", `{"address":"nope","encoded":` + string(file.Encoded) + `}`},
		{"missing encoded", `{"address":"` + file.Address + `"}`},
		{"encoded without crypto", `{"address":"` + file.Address + `","encoded":{"version":3}}`},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lgkeystore.New().Load([]byte(tc.data))
			assert.True(t, errors.Is(err, lgkeystore.ErrBadAccount), "%v", err)
		})
	}
}

func TestUnlockChecksAddress(t *testing.T) {
	file, _ := newAccountFile(t)
	other, _ := newAccountFile(t)
	file.Address = other.Address

	data, err := json.Marshal(file)
	require.NoError(t, err)

	store := lgkeystore.New()
	_, err = store.Load(data)
	require.NoError(t, err)

	err = store.Unlock(other.Address, passphrase)
	assert.True(t, errors.Is(err, lgkeystore.ErrBadAccount))
	locked, err := store.IsLocked(other.Address)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	var want []string
	for i := 0; i < 2; i++ {
		file, data := newAccountFile(t)
		want = append(want, file.Address)
		require.NoError(t, os.WriteFile(filepath.Join(dir, file.Address+".json"), data, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o600))

	store := lgkeystore.New()
	ids, err := store.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	var got []string
	for _, id := range ids {
		got = append(got, id.String())
	}
	assert.ElementsMatch(t, want, got)
}

func TestConcurrentSign(t *testing.T) {
	file, data := newAccountFile(t)
	store := lgkeystore.New()
	_, err := store.Load(data)
	require.NoError(t, err)
	require.NoError(t, store.Unlock(file.Address, passphrase))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Sign(file.Address, []byte("m"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
