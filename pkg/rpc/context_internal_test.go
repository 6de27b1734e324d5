package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/sign"
)

func TestContext_Next(t *testing.T) {
	t.Parallel()

	t.Run("stops without next", func(t *testing.T) {
		steps := map[string]bool{}
		ctx := &Context{
			handlers: []Handler{
				func(c *Context) { steps["first"] = true },
				func(c *Context) { steps["second"] = true },
			},
		}
		ctx.Next()

		assert.True(t, steps["first"])
		assert.False(t, steps["second"])
		assert.Len(t, ctx.handlers, 1)
	})

	t.Run("runs the chain", func(t *testing.T) {
		steps := map[string]bool{}
		ctx := &Context{
			handlers: []Handler{
				func(c *Context) {
					steps["first"] = true
					c.Next()
				},
				func(c *Context) { steps["second"] = true },
			},
		}
		ctx.Next()

		assert.True(t, steps["first"])
		assert.True(t, steps["second"])
		assert.Empty(t, ctx.handlers)
	})
}

func TestContext_Succeed(t *testing.T) {
	t.Parallel()

	ctx := &Context{Request: NewRequest(NewPayload(42, "get_config", nil))}
	ctx.Succeed("get_config", map[string]int{"fractional_digits": 14})

	assert.Equal(t, uint64(42), ctx.Response.Res.RequestID)
	assert.Equal(t, "get_config", ctx.Response.Res.Method)
	assert.JSONEq(t, `{"fractional_digits":14}`, string(ctx.Response.Res.Params[resultParamKey]))
	assert.NotContains(t, ctx.Response.Res.Params, errorParamKey)

	ctx.Succeed("bad", func() {})
	assert.Equal(t, ErrorMethod.String(), ctx.Response.Res.Method)
	assert.Equal(t, errcode.Internal, errcode.CodeOf(ctx.Response.Error()))
}

func TestContext_Fail(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name     string
		err      error
		fallback string
		want     string
	}{
		{
			name: "coded error",
			err:  errcode.Errorf(errcode.UserSignatureInvalid, "user signature does not verify"),
			want: "UserSignatureInvalid: user signature does not verify",
		},
		{
			name: "wrapped coded error",
			err:  fmt.Errorf("confirm_payment: %w", errcode.New(errcode.KeyLocked, "key is locked")),
			want: "KeyLocked: confirm_payment: key is locked",
		},
		{
			name:     "plain error with fallback",
			err:      errors.New("sql: database is closed"),
			fallback: "failed to store submission",
			want:     "Internal: failed to store submission",
		},
		{
			name: "plain error without fallback",
			err:  errors.New("sql: database is closed"),
			want: "Internal: internal error",
		},
		{
			name:     "nil error",
			fallback: "no response",
			want:     "Internal: no response",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			ctx := &Context{Request: NewRequest(NewPayload(5, "x", nil))}
			ctx.Fail(tc.err, tc.fallback)

			assert.Equal(t, uint64(5), ctx.Response.Res.RequestID)
			assert.Equal(t, ErrorMethod.String(), ctx.Response.Res.Method)

			var msg string
			require.NoError(t, json.Unmarshal(ctx.Response.Res.Params[errorParamKey], &msg))
			assert.Equal(t, tc.want, msg)
			assert.NotContains(t, ctx.Response.Res.Params, resultParamKey)
		})
	}
}

func TestContext_GetRawResponse(t *testing.T) {
	t.Parallel()

	signer, err := sign.GenerateEd25519Signer()
	require.NoError(t, err)

	ctx := &Context{
		Signer:  signer,
		Request: NewRequest(NewPayload(8, "noop", nil)),
	}
	raw, err := ctx.GetRawResponse()
	require.NoError(t, err)

	var res Response
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, ErrorMethod.String(), res.Res.Method)
	assert.Equal(t, "Internal: no response from handler", errcode.Message(res.Error()))
	require.Len(t, res.Sig, 1)
	assert.NoError(t, res.Verify(signer.PublicKey()))
}

func TestSafeStorage(t *testing.T) {
	t.Parallel()

	storage := NewSafeStorage()
	_, ok := storage.Get("missing")
	assert.False(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			storage.Set(fmt.Sprintf("k%d", i), i)
		}(i)
	}
	wg.Wait()

	v, ok := storage.Get("k7")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}
