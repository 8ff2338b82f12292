package persistor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/internal/oddscache"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

type memStore struct {
	mu     sync.Mutex
	events map[string]events.LiveEvent
	odds   map[string]events.LiveOdds
	fail   error
	known  map[string]bool // partidas existentes; nil aceita qualquer uma
}

func newMemStore() *memStore {
	return &memStore{events: map[string]events.LiveEvent{}, odds: map[string]events.LiveOdds{}}
}

func (m *memStore) InsertEvent(_ context.Context, id string, e events.LiveEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.events[id] = e
	return nil
}

func (m *memStore) InsertOddsBatch(_ context.Context, rows []OddsRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	// FK de in_play_odds: uma linha inválida derruba a transação inteira
	for _, r := range rows {
		if m.known != nil && !m.known[r.Odds.FixtureID] {
			return fmt.Errorf("insert odds %s: %w", r.StreamID, &pq.Error{Code: "23503", Message: "violates foreign key constraint"})
		}
	}
	for _, r := range rows {
		m.odds[r.StreamID] = r.Odds
	}
	return nil
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

type fixture struct {
	rdb   *redis.Client
	bus   *bus.RedisStreams
	store *memStore
	cache *oddscache.RedisCache
	p     *Persistor
	loop  *bus.Loop
}

func setup(t *testing.T, batch int, flushEvery time.Duration) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		rdb:   rdb,
		bus:   bus.NewRedisStreams(rdb, 0),
		store: newMemStore(),
		cache: oddscache.NewRedisCache(rdb, time.Minute),
	}
	f.p = New(zap.NewNop(), f.bus, topics.GroupPersistor, f.store, f.cache, batch, flushEvery)
	f.loop = f.p.Loop("persistor-1", 10, 0, 0)
	require.NoError(t, f.loop.EnsureGroups(context.Background()))
	return f
}

func (f *fixture) pending(t *testing.T, stream string) int64 {
	t.Helper()
	res, err := f.rdb.XPending(context.Background(), stream, topics.GroupPersistor).Result()
	require.NoError(t, err)
	return res.Count
}

func oddsMsg() events.LiveOdds {
	return events.LiveOdds{
		FixtureID: "fx-1",
		Bookmaker: "MockBookie",
		Market:    "Match Winner",
		Values: []events.OddsValue{
			{Selection: "Home", Odds: 2.0, Depth: []events.DepthLevel{{Price: 2.0, Volume: 150}}},
			{Selection: "Draw", Odds: 3.5},
			{Selection: "Away", Odds: 4.0},
		},
		Timestamp: time.UnixMilli(1700000000000),
	}
}

func TestPersistor_OddsWrittenThenAcked(t *testing.T) {
	f := setup(t, 1, time.Hour)
	ctx := context.Background()

	id, err := f.bus.Publish(ctx, topics.LiveOdds, oddsMsg().ToFields())
	require.NoError(t, err)

	n, err := f.loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Contains(t, f.store.odds, id)
	assert.Equal(t, "fx-1", f.store.odds[id].FixtureID)
	assert.Len(t, f.store.odds[id].Values[0].Depth, 1)
	assert.Equal(t, int64(0), f.pending(t, topics.LiveOdds))

	// nenhuma reentrega na leitura seguinte
	n, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	odd, ok, err := f.cache.Current(ctx, "fx-1", domain.Market1X2, domain.SelAway)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 4.0, odd, 1e-9)
}

func TestPersistor_BuffersUntilBatchOrInterval(t *testing.T) {
	f := setup(t, 3, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.bus.Publish(ctx, topics.LiveOdds, oddsMsg().ToFields())
		require.NoError(t, err)
	}
	_, err := f.loop.RunOnce(ctx)
	require.NoError(t, err)

	// abaixo do lote e do intervalo: nada gravado, nada confirmado
	assert.Empty(t, f.store.odds)
	assert.Equal(t, 2, f.p.Pending())
	assert.Equal(t, int64(2), f.pending(t, topics.LiveOdds))

	time.Sleep(60 * time.Millisecond)
	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, f.store.odds, 2)
	assert.Equal(t, int64(0), f.pending(t, topics.LiveOdds))
}

func TestPersistor_FailedFlushNeverAcks(t *testing.T) {
	f := setup(t, 1, 10*time.Millisecond)
	ctx := context.Background()
	f.store.setFail(errors.New("db down"))

	_, err := f.bus.Publish(ctx, topics.LiveOdds, oddsMsg().ToFields())
	require.NoError(t, err)
	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.pending(t, topics.LiveOdds))
	assert.Equal(t, 1, f.p.Pending())

	// banco volta: o lote retido é gravado e só então confirmado
	f.store.setFail(nil)
	time.Sleep(20 * time.Millisecond)
	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, f.store.odds, 1)
	assert.Equal(t, int64(0), f.pending(t, topics.LiveOdds))
}

func TestPersistor_StopFlushes(t *testing.T) {
	f := setup(t, 100, time.Hour)
	ctx := context.Background()

	_, err := f.bus.Publish(ctx, topics.LiveOdds, oddsMsg().ToFields())
	require.NoError(t, err)
	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)
	require.Empty(t, f.store.odds)

	f.loop.OnStop(ctx)
	assert.Len(t, f.store.odds, 1)
	assert.Equal(t, int64(0), f.pending(t, topics.LiveOdds))
}

func TestPersistor_EventsAckedAfterInsert(t *testing.T) {
	f := setup(t, 10, time.Hour)
	ctx := context.Background()

	ev := events.LiveEvent{FixtureID: "fx-1", Type: "Goal", Timestamp: time.UnixMilli(1700000000000), Data: []byte(`{"elapsed":10}`)}
	f.store.setFail(errors.New("db down"))
	id, err := f.bus.Publish(ctx, topics.LiveEvents, ev.ToFields())
	require.NoError(t, err)

	_, err = f.loop.RunOnce(ctx)
	require.ErrorIs(t, err, bus.ErrBatchFailed)
	assert.Empty(t, f.store.events)
	assert.Equal(t, int64(1), f.pending(t, topics.LiveEvents))

	// reentrega pelo reclaim após a recuperação
	f.store.setFail(nil)
	f.loop.ReclaimMinIdle = time.Millisecond
	time.Sleep(10 * time.Millisecond)
	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)
	require.Contains(t, f.store.events, id)
	assert.JSONEq(t, `{"elapsed":10}`, string(f.store.events[id].Data))
	assert.Equal(t, int64(0), f.pending(t, topics.LiveEvents))
}

func TestPersistor_MalformedGoesToDLQ(t *testing.T) {
	f := setup(t, 10, time.Hour)
	ctx := context.Background()

	_, err := f.bus.Publish(ctx, topics.LiveOdds, map[string]interface{}{"fixtureId": "fx-1"})
	require.NoError(t, err)
	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(0), f.pending(t, topics.LiveOdds))
	n, err := f.rdb.XLen(ctx, topics.DLQ(topics.LiveOdds)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPersistor_InvalidRowDoesNotBlockBatch(t *testing.T) {
	f := setup(t, 2, time.Hour)
	f.store.known = map[string]bool{"fx-1": true}
	ctx := context.Background()

	bad := oddsMsg()
	bad.FixtureID = "unknown"
	badID, err := f.bus.Publish(ctx, topics.LiveOdds, bad.ToFields())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.bus.Publish(ctx, topics.LiveOdds, oddsMsg().ToFields())
		require.NoError(t, err)
	}

	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)

	assert.Len(t, f.store.odds, 5)
	assert.NotContains(t, f.store.odds, badID)
	assert.Zero(t, f.p.Pending())
	assert.Equal(t, int64(0), f.pending(t, topics.LiveOdds))

	dlq, err := f.rdb.XRange(ctx, topics.DLQ(topics.LiveOdds), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, "unknown", dlq[0].Values["fixtureId"])
	assert.Equal(t, badID, dlq[0].Values["_source_id"])
}

func TestPersistor_OutageDuringRowRetryKeepsRest(t *testing.T) {
	f := setup(t, 3, 10*time.Millisecond)
	f.store.known = map[string]bool{"fx-1": true}
	ctx := context.Background()

	good := oddsMsg()
	bad := oddsMsg()
	bad.FixtureID = "unknown"
	for _, o := range []events.LiveOdds{good, bad, good} {
		_, err := f.bus.Publish(ctx, topics.LiveOdds, o.ToFields())
		require.NoError(t, err)
	}
	f.store.setFail(errors.New("db down"))
	_, err := f.loop.RunOnce(ctx)
	require.NoError(t, err)

	// queda de banco não descarta nada
	assert.Equal(t, 3, f.p.Pending())
	n, err := f.rdb.XLen(ctx, topics.DLQ(topics.LiveOdds)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	f.store.setFail(nil)
	time.Sleep(20 * time.Millisecond)
	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, f.store.odds, 2)
	assert.Zero(t, f.p.Pending())
	assert.Equal(t, int64(0), f.pending(t, topics.LiveOdds))
}

func TestPersistor_EventForUnknownFixtureDiscarded(t *testing.T) {
	f := setup(t, 10, time.Hour)
	ctx := context.Background()
	f.store.setFail(&pq.Error{Code: "23503"})

	ev := events.LiveEvent{FixtureID: "unknown", Type: "Goal", Timestamp: time.UnixMilli(1700000000000)}
	_, err := f.bus.Publish(ctx, topics.LiveEvents, ev.ToFields())
	require.NoError(t, err)
	_, err = f.loop.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(0), f.pending(t, topics.LiveEvents))
	n, err := f.rdb.XLen(ctx, topics.DLQ(topics.LiveEvents)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
