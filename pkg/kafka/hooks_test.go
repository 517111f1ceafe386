package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceHookCopiesHeader(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "events", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))

	ctx, _, _, err = TraceHook().BeforeHandle(context.Background(), "events", kafka.Message{}, nil)
	require.NoError(t, err)
	assert.Empty(t, TraceID(ctx))
}

func TestHookFuncsRecoversPanics(t *testing.T) {
	h := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { panic("after") },
	}
	_, _, data, err := h.BeforeHandle(context.Background(), "events", kafka.Message{}, []byte("x"))
	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, []byte("x"), data)

	assert.NotPanics(t, func() { h.AfterHandle(context.Background(), "events", kafka.Message{}, nil, nil) })
	assert.NotPanics(t, func() { HookFuncs{}.OnError(context.Background(), "events", kafka.Message{}, nil, err) })
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffWithJitter(0, 0, attempt)
		assert.Greater(t, int64(d), int64(0))
		assert.LessOrEqual(t, int64(d), int64(50_000_000))
	}
}
