package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoop_AckOnSuccessOnly(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	fail := true
	var seen []string
	l := &Loop{
		Bus: b, Log: zap.NewNop(), Group: "g", Consumer: "c1",
		Streams: []string{"live_events"},
		Handler: HandlerFunc(func(_ context.Context, m Message) error {
			seen = append(seen, m.ID)
			if fail {
				return errors.New("db down")
			}
			return nil
		}),
		ReclaimMinIdle: time.Millisecond,
		ReclaimEvery:   time.Millisecond,
	}
	require.NoError(t, l.EnsureGroups(ctx))
	id, err := b.Publish(ctx, "live_events", map[string]interface{}{"x": "1"})
	require.NoError(t, err)

	n, err := l.RunOnce(ctx)
	require.ErrorIs(t, err, ErrBatchFailed)
	assert.Equal(t, 1, n)

	// falhou: continua pendente e é reentregue pelo reclaim
	fail = false
	time.Sleep(20 * time.Millisecond)
	_, err = l.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id, id}, seen)

	// confirmada: nada mais a reentregar
	time.Sleep(20 * time.Millisecond)
	n, err = l.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoop_DiscardGoesToDLQ(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	l := &Loop{
		Bus: b, Log: zap.NewNop(), Group: "g", Consumer: "c1",
		Streams: []string{"live_odds"},
		Handler: HandlerFunc(func(context.Context, Message) error {
			return Discard(errors.New("bad payload"))
		}),
	}
	require.NoError(t, l.EnsureGroups(ctx))
	_, err := b.Publish(ctx, "live_odds", map[string]interface{}{"values": "{"})
	require.NoError(t, err)

	_, err = l.RunOnce(ctx)
	require.NoError(t, err)

	dlq, err := b.Client.XRange(ctx, "live_odds_dlq", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, "{", dlq[0].Values["values"])
	assert.Contains(t, dlq[0].Values["_error"], "bad payload")

	pending, err := b.Client.XPending(ctx, "live_odds", "g").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestLoop_DeferredLeavesPending(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	l := &Loop{
		Bus: b, Log: zap.NewNop(), Group: "g", Consumer: "c1",
		Streams: []string{"live_odds"},
		Handler: HandlerFunc(func(context.Context, Message) error { return ErrDeferred }),
	}
	require.NoError(t, l.EnsureGroups(ctx))
	_, err := b.Publish(ctx, "live_odds", map[string]interface{}{"a": "b"})
	require.NoError(t, err)

	_, err = l.RunOnce(ctx)
	require.NoError(t, err)

	pending, err := b.Client.XPending(ctx, "live_odds", "g").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := false
	l := &Loop{
		Bus: b, Log: zap.NewNop(), Group: "g", Consumer: "c1",
		Streams: []string{"live_events"},
		Block:   10 * time.Millisecond,
		Handler: HandlerFunc(func(context.Context, Message) error { return nil }),
		OnStop:  func(context.Context) { stopped = true },
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.True(t, stopped)
}

func TestLoop_RunBacksOffWhileHandlerFails(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	l := &Loop{
		Bus: b, Log: zap.NewNop(), Group: "g", Consumer: "c1",
		Streams: []string{"live_events"},
		Count:   10,
		Block:   time.Millisecond,
		Backoff: time.Hour,
		Handler: HandlerFunc(func(context.Context, Message) error {
			calls.Add(1)
			return errors.New("db down")
		}),
	}
	require.NoError(t, l.EnsureGroups(ctx))
	for i := 0; i < 100; i++ {
		_, err := b.Publish(ctx, "live_events", map[string]interface{}{"i": i})
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// um lote falhou inteiro e o laço parou em backoff em vez de varrer o backlog
	assert.EqualValues(t, 10, calls.Load())
}

func TestLoop_ReclaimDrainsBacklogAfterOutage(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	down := true
	handled := map[string]bool{}
	l := &Loop{
		Bus: b, Log: zap.NewNop(), Group: "g", Consumer: "c1",
		Streams: []string{"live_events"},
		Count:   10,
		Handler: HandlerFunc(func(_ context.Context, m Message) error {
			if down {
				return errors.New("db down")
			}
			handled[m.ID] = true
			return nil
		}),
		ReclaimMinIdle: 20 * time.Millisecond,
		ReclaimEvery:   time.Hour,
	}
	require.NoError(t, l.EnsureGroups(ctx))
	for i := 0; i < 100; i++ {
		_, err := b.Publish(ctx, "live_events", map[string]interface{}{"i": i})
		require.NoError(t, err)
	}

	// primeiro passo faz o reclaim (vazio) e marca o horário; o resto só lê
	for i := 0; i < 10; i++ {
		_, err := l.RunOnce(ctx)
		require.ErrorIs(t, err, ErrBatchFailed)
	}
	pending, err := b.Client.XPending(ctx, "live_events", "g").Result()
	require.NoError(t, err)
	require.Equal(t, int64(100), pending.Count)

	// banco volta: um único reclaim devolve o backlog inteiro
	down = false
	time.Sleep(30 * time.Millisecond)
	l.lastReclaim = time.Time{}
	n, err := l.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Len(t, handled, 100)

	pending, err = b.Client.XPending(ctx, "live_events", "g").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}
