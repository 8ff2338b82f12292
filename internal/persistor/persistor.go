package persistor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/db"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

const maxBuffer = 1000

// OddsCache recebe as últimas cotações após cada flush
type OddsCache interface {
	SetCurrent(ctx context.Context, fixtureID string, market domain.MarketType, prices map[domain.Selection]float64) error
}

// Persistor consome live_events e live_odds e grava no banco.
// Eventos são gravados um a um; odds são acumuladas e gravadas em lote.
// Nenhuma mensagem é confirmada antes da gravação correspondente.
type Persistor struct {
	Log   *zap.Logger
	Bus   bus.Bus
	Group string
	Store Store
	Cache OddsCache

	BatchSize     int
	FlushInterval time.Duration

	OnPersist func(kind string, n int) // métricas
	OnError   func(stage string)       // métricas por fase

	mu      sync.Mutex
	buf     []OddsRow
	ids     map[string]struct{}
	oldest  time.Time
	retryAt time.Time
}

func New(log *zap.Logger, b bus.Bus, group string, store Store, cache OddsCache, batchSize int, flushEvery time.Duration) *Persistor {
	return &Persistor{
		Log:           log,
		Bus:           b,
		Group:         group,
		Store:         store,
		Cache:         cache,
		BatchSize:     batchSize,
		FlushInterval: flushEvery,
		ids:           make(map[string]struct{}),
	}
}

// Loop monta o consumidor dos dois streams com flush periódico e no encerramento
func (p *Persistor) Loop(consumer string, count int64, block, reclaimMinIdle time.Duration) *bus.Loop {
	return &bus.Loop{
		Bus:            p.Bus,
		Log:            p.Log,
		Group:          p.Group,
		Consumer:       consumer,
		Streams:        []string{topics.LiveEvents, topics.LiveOdds},
		Count:          count,
		Block:          block,
		Handler:        p,
		ReclaimMinIdle: reclaimMinIdle,
		AfterBatch:     func(ctx context.Context) { _ = p.MaybeFlush(ctx) },
		OnStop:         func(ctx context.Context) { _ = p.Flush(ctx) },
	}
}

func (p *Persistor) Handle(ctx context.Context, m bus.Message) error {
	switch m.Stream {
	case topics.LiveEvents:
		e, err := events.ParseLiveEvent(m.Fields)
		if err != nil {
			return bus.Discard(err)
		}
		if err := p.Store.InsertEvent(ctx, m.ID, e); err != nil {
			if db.IsDataError(err) {
				return bus.Discard(fmt.Errorf("insert event: %w", err))
			}
			p.onError("db_event")
			return fmt.Errorf("insert event: %w", err)
		}
		p.onPersist("event", 1)
		return nil

	case topics.LiveOdds:
		o, err := events.ParseLiveOdds(m.Fields)
		if err != nil {
			return bus.Discard(err)
		}
		if p.add(OddsRow{StreamID: m.ID, Odds: o}) >= p.batchSize() {
			_ = p.Flush(ctx)
		}
		return bus.ErrDeferred
	}
	return bus.Discard(fmt.Errorf("unexpected stream %q", m.Stream))
}

// add acumula a mensagem (ignorando reentregas já em buffer) e devolve o tamanho do buffer
func (p *Persistor) add(row OddsRow) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.ids[row.StreamID]; dup {
		return len(p.buf)
	}
	if len(p.buf) >= maxBuffer {
		// a mais antiga sai da memória mas continua pendente no stream
		delete(p.ids, p.buf[0].StreamID)
		p.buf = p.buf[1:]
	}
	if len(p.buf) == 0 {
		p.oldest = time.Now()
	}
	p.buf = append(p.buf, row)
	p.ids[row.StreamID] = struct{}{}
	return len(p.buf)
}

// Pending devolve quantas odds aguardam gravação
func (p *Persistor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// MaybeFlush grava o buffer quando a mensagem mais antiga passou de FlushInterval
func (p *Persistor) MaybeFlush(ctx context.Context) error {
	p.mu.Lock()
	due := len(p.buf) > 0 && time.Since(p.oldest) >= p.FlushInterval
	p.mu.Unlock()
	if !due {
		return nil
	}
	return p.Flush(ctx)
}

// Flush grava o lote numa transação e só então confirma as mensagens.
// Se o lote é recusado por uma linha inválida, as linhas são regravadas uma a
// uma: as recusadas vão para o DLQ e as demais seguem. Em falha de banco o
// restante fica no buffer para nova tentativa após FlushInterval.
func (p *Persistor) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 || time.Now().Before(p.retryAt) {
		return nil
	}

	batch := p.buf
	written, handled := batch, len(batch)
	err := p.Store.InsertOddsBatch(ctx, batch)
	if err != nil {
		written, handled = nil, 0
		if db.IsDataError(err) {
			p.Log.Warn("odds batch rejected, writing rows one by one", zap.Int("batch", len(batch)), zap.Error(err))
			written, handled, err = p.insertEach(ctx, batch)
		}
	}

	if len(written) > 0 {
		p.ackWritten(ctx, written)
		p.updateCache(ctx, written)
	}
	p.keep(batch[handled:])

	if err != nil {
		p.retryAt = time.Now().Add(p.FlushInterval)
		p.Log.Error("odds flush failed", zap.Int("buffered", len(p.buf)), zap.Error(err))
		p.onError("db_odds")
		return err
	}
	p.retryAt = time.Time{}
	p.Log.Debug("odds batch flushed", zap.Int("batch", len(written)))
	return nil
}

// insertEach grava linha a linha. Devolve as gravadas e quantas linhas do
// início do lote foram resolvidas (gravadas ou descartadas); para na primeira
// falha que não seja da própria linha.
func (p *Persistor) insertEach(ctx context.Context, batch []OddsRow) ([]OddsRow, int, error) {
	var written []OddsRow
	for i, row := range batch {
		err := p.Store.InsertOddsBatch(ctx, []OddsRow{row})
		switch {
		case err == nil:
			written = append(written, row)
		case db.IsDataError(err):
			p.discard(ctx, row, err)
		default:
			return written, i, err
		}
	}
	return written, len(batch), nil
}

// discard manda a linha recusada para o DLQ e a confirma
func (p *Persistor) discard(ctx context.Context, row OddsRow, cause error) {
	p.Log.Warn("discarding odds message", zap.String("msg_id", row.StreamID), zap.String("fixture_id", row.Odds.FixtureID), zap.Error(cause))
	p.onError("discard")
	m := bus.Message{ID: row.StreamID, Stream: topics.LiveOdds, Fields: row.Odds.ToFields()}
	if err := bus.DeadLetter(ctx, p.Bus, p.Group, m, bus.Discard(cause)); err != nil {
		p.Log.Error("dlq publish failed", zap.String("msg_id", row.StreamID), zap.Error(err))
	}
	if err := p.Bus.Ack(ctx, topics.LiveOdds, p.Group, row.StreamID); err != nil {
		p.Log.Warn("odds ack failed", zap.String("msg_id", row.StreamID), zap.Error(err))
		p.onError("ack")
	}
}

func (p *Persistor) ackWritten(ctx context.Context, rows []OddsRow) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.StreamID)
	}
	if err := p.Bus.Ack(ctx, topics.LiveOdds, p.Group, ids...); err != nil {
		// gravado mas não confirmado: reentrega é idempotente (stream_id)
		p.Log.Warn("odds ack failed", zap.Int("batch", len(rows)), zap.Error(err))
		p.onError("ack")
	}
	p.onPersist("odds", len(rows))
}

// keep troca o buffer pelas linhas ainda não resolvidas
func (p *Persistor) keep(rest []OddsRow) {
	if len(rest) == 0 {
		p.buf = nil
		p.ids = make(map[string]struct{})
		return
	}
	p.buf = append([]OddsRow(nil), rest...)
	p.ids = make(map[string]struct{}, len(rest))
	for _, row := range rest {
		p.ids[row.StreamID] = struct{}{}
	}
}

// updateCache publica a última cotação de cada seleção reconhecida
func (p *Persistor) updateCache(ctx context.Context, batch []OddsRow) {
	if p.Cache == nil {
		return
	}
	type mkey struct {
		fixture string
		market  domain.MarketType
	}
	latest := make(map[mkey]map[domain.Selection]float64)
	for _, row := range batch {
		for _, v := range row.Odds.Values {
			mt, sel, ok := domain.Normalize(row.Odds.Market, v.Selection)
			if !ok {
				continue
			}
			k := mkey{row.Odds.FixtureID, mt}
			if latest[k] == nil {
				latest[k] = make(map[domain.Selection]float64)
			}
			latest[k][sel] = v.Odds
		}
	}
	for k, prices := range latest {
		if err := p.Cache.SetCurrent(ctx, k.fixture, k.market, prices); err != nil {
			p.Log.Warn("odds cache set failed", zap.String("fixture_id", k.fixture), zap.Error(err))
			p.onError("cache")
		}
	}
}

func (p *Persistor) batchSize() int {
	if p.BatchSize <= 0 {
		return 100
	}
	return p.BatchSize
}

func (p *Persistor) onPersist(kind string, n int) {
	if p.OnPersist != nil {
		p.OnPersist(kind, n)
	}
}

func (p *Persistor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
