package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

type recPublisher struct {
	mu   sync.Mutex
	sent []events.Envelope
	fail error
}

func (r *recPublisher) Publish(_ context.Context, _ string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	var env events.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	r.sent = append(r.sent, env)
	return nil
}

func setup(t *testing.T) (*bus.RedisStreams, *redis.Client, *recPublisher, *bus.Loop) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := bus.NewRedisStreams(rdb, 0)
	pub := &recPublisher{}
	f := &Forwarder{Log: zap.NewNop(), Pub: pub, Channel: topics.ChannelBroadcast}
	loop := f.Loop(b, "api-1", 5, 0, 0)
	require.NoError(t, loop.EnsureGroups(context.Background()))
	return b, rdb, pub, loop
}

func TestForwarder_RoutesByStream(t *testing.T) {
	b, rdb, pub, loop := setup(t)
	ctx := context.Background()

	_, err := b.Publish(ctx, topics.LivePredictions, events.PredictionUpdate{
		FixtureID: "fx-1",
		Probs:     events.Probs{"1X2": {"HOME": 0.5, "DRAW": 0.3, "AWAY": 0.2}},
		Timestamp: time.UnixMilli(1700000000000),
	}.ToFields())
	require.NoError(t, err)
	_, err = b.Publish(ctx, topics.LiveSignals, events.LiveSignal{
		FixtureID: "fx-1",
		Signal:    events.Signal{Market: "1X2", Selection: "HOME", Probability: 0.5, Odds: 2.5, EV: 0.25},
		Execution: events.Execution{Status: "PLACED", BetID: "bet-1"},
	}.ToFields())
	require.NoError(t, err)

	n, err := loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.sent, 2)
	byEvent := map[string]events.Envelope{}
	for _, e := range pub.sent {
		byEvent[e.Event] = e
	}
	assert.Equal(t, "fixture:fx-1", byEvent[events.EventPredictionUpdate].Topic)
	assert.Equal(t, topics.GlobalTopic, byEvent[events.EventSignalNew].Topic)

	var sig events.LiveSignal
	require.NoError(t, json.Unmarshal(byEvent[events.EventSignalNew].Payload, &sig))
	assert.Equal(t, "bet-1", sig.Execution.BetID)
	// sem timestamp no payload, vale o instante do id da entrada
	assert.False(t, sig.Timestamp.IsZero())

	for _, s := range []string{topics.LivePredictions, topics.LiveSignals} {
		p, err := rdb.XPending(ctx, s, topics.GroupBroadcast).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), p.Count, s)
	}
}

func TestForwarder_PublishFailureKeepsPending(t *testing.T) {
	b, rdb, pub, loop := setup(t)
	ctx := context.Background()
	pub.fail = errors.New("redis pubsub down")

	_, err := b.Publish(ctx, topics.LivePredictions, events.PredictionUpdate{FixtureID: "fx-2", Probs: events.Probs{}}.ToFields())
	require.NoError(t, err)
	_, err = loop.RunOnce(ctx)
	require.ErrorIs(t, err, bus.ErrBatchFailed)

	p, err := rdb.XPending(ctx, topics.LivePredictions, topics.GroupBroadcast).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Count)
}

func TestIDTime(t *testing.T) {
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), idTime("1700000000123-0"))
	assert.True(t, idTime("garbage").IsZero())
}
