package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/internal/provider"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

// LiveFixture é um jogo em andamento (id interno e horário de início)
type LiveFixture struct {
	ID      string
	Kickoff time.Time
}

// Fixtures lista os jogos em andamento
type Fixtures interface {
	Live(ctx context.Context) ([]LiveFixture, error)
}

type Mapper interface {
	ExternalID(ctx context.Context, provider string, entity domain.EntityType, internalID string) (string, error)
	Lookup(ctx context.Context, provider, externalID string, entity domain.EntityType) (string, error)
}

// Collector consulta o provedor para cada jogo ao vivo e publica eventos e odds.
// Falha do provedor num jogo é registrada e tentada no próximo ciclo.
type Collector struct {
	Provider provider.Provider
	Mapper   Mapper
	Fixtures Fixtures
	Bus      bus.Bus
	Log      *zap.Logger
	Interval time.Duration

	OnPublished func(stream string) // métricas
	OnError     func(stage string)  // métricas

	mu   sync.Mutex
	seen map[string]map[string]struct{} // fixtureID -> chaves de eventos já publicados
	now  func() time.Time
}

func New(p provider.Provider, mapper Mapper, fixtures Fixtures, b bus.Bus, log *zap.Logger, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		Provider: p, Mapper: mapper, Fixtures: fixtures, Bus: b, Log: log, Interval: interval,
		seen: make(map[string]map[string]struct{}),
		now:  time.Now,
	}
}

// Connect valida o bus antes de entrar no laço
func (c *Collector) Connect(ctx context.Context) error {
	if err := c.Bus.CreateGroup(ctx, topics.LiveEvents, topics.GroupPersistor); err != nil {
		return fmt.Errorf("bus not ready: %w", err)
	}
	return c.Bus.CreateGroup(ctx, topics.LiveOdds, topics.GroupPersistor)
}

func (c *Collector) Run(ctx context.Context) error {
	t := time.NewTicker(c.Interval)
	defer t.Stop()
	for {
		if err := c.PollOnce(ctx); err != nil && ctx.Err() == nil {
			c.Log.Error("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// PollOnce faz uma passada por todos os jogos ao vivo
func (c *Collector) PollOnce(ctx context.Context) error {
	live, err := c.Fixtures.Live(ctx)
	if err != nil {
		return fmt.Errorf("list live fixtures: %w", err)
	}
	c.forget(live)

	for _, f := range live {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ext, err := c.Mapper.ExternalID(ctx, c.Provider.Name(), domain.EntityFixture, f.ID)
		if err != nil {
			c.Log.Debug("fixture not mapped for provider", zap.String("fixture_id", f.ID), zap.Error(err))
			continue
		}
		c.pollEvents(ctx, f, ext)
		c.pollOdds(ctx, f.ID, ext)
	}
	return nil
}

// eventKey identifica o evento dentro da partida; o mesmo lance gera a mesma
// chave em qualquer instância do coletor
func eventKey(e provider.Event) string {
	return e.Type + "|" + strconv.Itoa(e.Elapsed) + "+" + strconv.Itoa(e.Extra) + "|" + e.Detail + "|" + e.TeamID + "|" + e.Player
}

// eventTime deriva o instante do minuto de jogo informado pelo provedor
func eventTime(kickoff time.Time, e provider.Event) time.Time {
	return kickoff.Add(time.Duration(e.Elapsed+e.Extra) * time.Minute).UTC()
}

type eventData struct {
	Detail         string `json:"detail,omitempty"`
	TeamID         string `json:"teamId,omitempty"`
	TeamExternalID string `json:"teamExternalId,omitempty"`
	Player         string `json:"player,omitempty"`
	Elapsed        int    `json:"elapsed"`
	Extra          int    `json:"extra,omitempty"`
	Comments       string `json:"comments,omitempty"`
}

func (c *Collector) pollEvents(ctx context.Context, f LiveFixture, ext string) {
	id := f.ID
	evs, err := c.Provider.GetEvents(ctx, ext)
	if err != nil {
		c.fail("events", id, err)
		return
	}
	for _, e := range evs {
		k := eventKey(e)
		if c.isSeen(id, k) {
			continue
		}
		d := eventData{
			Detail: e.Detail, TeamExternalID: e.TeamID, Player: e.Player,
			Elapsed: e.Elapsed, Extra: e.Extra, Comments: e.Comments,
		}
		if e.TeamID != "" {
			if team, err := c.Mapper.Lookup(ctx, c.Provider.Name(), e.TeamID, domain.EntityTeam); err == nil {
				d.TeamID = team
			}
		}
		raw, _ := json.Marshal(d)
		ts := c.now()
		if !f.Kickoff.IsZero() {
			ts = eventTime(f.Kickoff, e)
		}
		msg := events.LiveEvent{FixtureID: id, Type: e.Type, Key: k, Timestamp: ts, Data: raw}
		if _, err := c.Bus.Publish(ctx, topics.LiveEvents, msg.ToFields()); err != nil {
			c.fail("publish_event", id, err)
			return
		}
		c.markSeen(id, k)
		if c.OnPublished != nil {
			c.OnPublished(topics.LiveEvents)
		}
	}
}

func (c *Collector) pollOdds(ctx context.Context, id, ext string) {
	odds, err := c.Provider.GetOdds(ctx, ext)
	if err != nil {
		c.fail("odds", id, err)
		return
	}
	for _, o := range odds {
		ts := o.UpdatedAt
		if ts.IsZero() {
			ts = c.now()
		}
		for market, vals := range normalize(o) {
			msg := events.LiveOdds{FixtureID: id, Bookmaker: o.Bookmaker, Market: market, Values: vals, Timestamp: ts}
			if _, err := c.Bus.Publish(ctx, topics.LiveOdds, msg.ToFields()); err != nil {
				c.fail("publish_odds", id, err)
				return
			}
			if c.OnPublished != nil {
				c.OnPublished(topics.LiveOdds)
			}
		}
	}
}

// normalize separa as seleções reconhecidas (nomes do enum interno) das demais,
// que seguem com os nomes do provedor
func normalize(o provider.Odds) map[string][]events.OddsValue {
	out := map[string][]events.OddsValue{}
	for _, v := range o.Values {
		market, sel := o.Market, v.Selection
		if mt, s, ok := domain.Normalize(o.Market, v.Selection); ok {
			market, sel = string(mt), string(s)
		}
		ev := events.OddsValue{Selection: sel, Odds: v.Odds}
		for _, d := range v.Depth {
			ev.Depth = append(ev.Depth, events.DepthLevel{Price: d.Price, Volume: d.Volume})
		}
		out[market] = append(out[market], ev)
	}
	return out
}

func (c *Collector) fail(stage, id string, err error) {
	c.Log.Warn("collector call failed", zap.String("stage", stage), zap.String("fixture_id", id), zap.Error(err))
	if c.OnError != nil {
		c.OnError(stage)
	}
}

func (c *Collector) isSeen(id, k string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id][k]
	return ok
}

func (c *Collector) markSeen(id, k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[id] == nil {
		c.seen[id] = make(map[string]struct{})
	}
	c.seen[id][k] = struct{}{}
}

// forget descarta o histórico de jogos que saíram do ar
func (c *Collector) forget(live []LiveFixture) {
	keep := make(map[string]struct{}, len(live))
	for _, f := range live {
		keep[f.ID] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.seen {
		if _, ok := keep[id]; !ok {
			delete(c.seen, id)
		}
	}
}

// PostgresFixtures lê os jogos LIVE com mapeamento para o provedor
type PostgresFixtures struct {
	DB       *sql.DB
	Provider string
}

func (p *PostgresFixtures) Live(ctx context.Context) ([]LiveFixture, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT f.id, f.kickoff FROM fixtures f
		JOIN provider_mappings m
		  ON m.internal_id = f.id AND m.entity_type = 'FIXTURE' AND m.provider_name = $1
		WHERE f.status = 'LIVE'
		ORDER BY f.kickoff`, p.Provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LiveFixture
	for rows.Next() {
		var f LiveFixture
		if err := rows.Scan(&f.ID, &f.Kickoff); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
