package log_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"

	"github.com/erc7824/ledgergate/pkg/log"
)

type recorder struct {
	events []string
	errors []string
}

func (r *recorder) TraceID() string { return "trace" }
func (r *recorder) SpanID() string  { return "span" }
func (r *recorder) RecordEvent(name string, _ ...any) {
	r.events = append(r.events, name)
}
func (r *recorder) RecordError(name string, _ ...any) {
	r.errors = append(r.errors, name)
}

func TestZapLogger(t *testing.T) {
	var buf bytes.Buffer
	lg := log.NewZapLogger(log.Config{Format: "logfmt", Level: log.LevelInfo, Output: "stdout"}, zapcore.AddSync(&buf))

	lg = lg.WithName("authz").WithKV("method", "transfer")
	lg.Debug("hidden")
	lg.Info("command authorized", "sender", "5Grw")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "command authorized")
	assert.Contains(t, out, "method=transfer")
	assert.Contains(t, out, "sender=5Grw")
	assert.Equal(t, "authz", lg.Name())
	assert.Equal(t, []any{"method", "transfer"}, lg.GetAllKV())
}

func TestWithKVDoesNotShareState(t *testing.T) {
	base := log.NewZapLogger(log.Config{Output: "stdout"}).WithKV("a", 1)
	left := base.WithKV("b", 2)
	right := base.WithKV("c", 3)

	assert.Equal(t, []any{"a", 1, "b", 2}, left.GetAllKV())
	assert.Equal(t, []any{"a", 1, "c", 3}, right.GetAllKV())
}

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	_, isNoop := log.FromContext(ctx).(log.NoopLogger)
	assert.True(t, isNoop)

	lg := log.NewZapLogger(log.Config{Output: "stdout"})
	ctx = log.SetContextLogger(ctx, lg)
	_, isZap := log.FromContext(ctx).(*log.ZapLogger)
	assert.True(t, isZap)

	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: [16]byte{1},
		SpanID:  [8]byte{1},
	}))
	ctx = log.SetContextLogger(ctx, lg)
	_, isSpan := log.FromContext(ctx).(log.SpanLogger)
	assert.True(t, isSpan)

	_, isNoop = log.FromContext(log.SetContextLogger(context.Background(), nil)).(log.NoopLogger)
	assert.True(t, isNoop)
}

func TestSpanLogger(t *testing.T) {
	rec := &recorder{}
	lg := log.NewSpanLogger(log.NewNoopLogger(), rec)

	lg.Info("normalized")
	lg.Warn("slow")
	lg.Error("rejected", "code", "AuthSignatureInvalid")

	require.Len(t, rec.events, 2)
	assert.Equal(t, []string{"normalized", "slow"}, rec.events)
	assert.Equal(t, []string{"rejected"}, rec.errors)
}
