package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/internal/provider"
	"github.com/radieske/sports-prediction-pipeline/internal/reconcile"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

type Resolver interface {
	Resolve(ctx context.Context, provider, externalID string, entity domain.EntityType, create reconcile.CreateFunc) (string, error)
	Lookup(ctx context.Context, provider, externalID string, entity domain.EntityType) (string, error)
}

// Publisher avisa o settlement-worker (Redis Pub/Sub)
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Stats conta o resultado de uma sincronização
type Stats struct {
	Leagues  int
	Teams    int
	Fixtures int
	Skipped  int
	Tasks    int
	Closed   int
}

func (s *Stats) add(o Stats) {
	s.Leagues += o.Leagues
	s.Teams += o.Teams
	s.Fixtures += o.Fixtures
	s.Skipped += o.Skipped
	s.Tasks += o.Tasks
	s.Closed += o.Closed
}

// Service sincroniza ligas, times e jogos do provedor, sempre pai antes do filho
type Service struct {
	Provider          provider.Provider
	Resolver          Resolver
	Repo              Repo
	Bus               bus.Bus
	Pub               Publisher
	SettlementChannel string
	LeagueIDs         []string // ids externos; vazio = todas
	Log               *zap.Logger
}

func (s *Service) name() string { return s.Provider.Name() }

func (s *Service) tracked(extID string) bool {
	if len(s.LeagueIDs) == 0 {
		return true
	}
	for _, id := range s.LeagueIDs {
		if id == extID {
			return true
		}
	}
	return false
}

// SyncLeagues devolve os ids externos das ligas resolvidas
func (s *Service) SyncLeagues(ctx context.Context) ([]string, Stats, error) {
	var st Stats
	leagues, err := s.Provider.GetLeagues(ctx)
	if err != nil {
		return nil, st, err
	}
	var synced []string
	for _, l := range leagues {
		if !s.tracked(l.ExternalID) {
			continue
		}
		l := l
		_, err := s.Resolver.Resolve(ctx, s.name(), l.ExternalID, domain.EntityLeague,
			func(ctx context.Context, q reconcile.Querier) (string, error) { return s.Repo.InsertLeague(ctx, q, l) })
		if err != nil {
			st.Skipped++
			s.Log.Warn("league skipped", zap.String("external_id", l.ExternalID), zap.Error(err))
			continue
		}
		st.Leagues++
		synced = append(synced, l.ExternalID)
	}
	return synced, st, nil
}

func (s *Service) SyncTeams(ctx context.Context, leagueID string, season int) (Stats, error) {
	var st Stats
	if _, err := s.Resolver.Lookup(ctx, s.name(), leagueID, domain.EntityLeague); err != nil {
		return st, err
	}
	teams, err := s.Provider.GetTeams(ctx, leagueID, season)
	if err != nil {
		return st, err
	}
	for _, t := range teams {
		t := t
		_, err := s.Resolver.Resolve(ctx, s.name(), t.ExternalID, domain.EntityTeam,
			func(ctx context.Context, q reconcile.Querier) (string, error) { return s.Repo.InsertTeam(ctx, q, t) })
		if err != nil {
			st.Skipped++
			s.Log.Warn("team skipped", zap.String("external_id", t.ExternalID), zap.Error(err))
			continue
		}
		st.Teams++
	}
	return st, nil
}

func (s *Service) SyncFixtures(ctx context.Context, leagueID string, season int) (Stats, error) {
	var st Stats
	fixtures, err := s.Provider.GetFixtures(ctx, leagueID, season)
	if err != nil {
		return st, err
	}
	for _, f := range fixtures {
		res, err := s.syncFixture(ctx, f)
		st.add(res)
		if err != nil {
			st.Skipped++
			s.Log.Warn("fixture skipped", zap.String("external_id", f.ExternalID), zap.Error(err))
			continue
		}
		st.Fixtures++
	}
	return st, nil
}

func (s *Service) syncFixture(ctx context.Context, f provider.Fixture) (Stats, error) {
	var st Stats
	status := f.Status
	if status == "" {
		var ok bool
		if status, ok = domain.ParseProviderStatus(f.StatusShort); !ok {
			return st, fmt.Errorf("unknown status %q", f.StatusShort)
		}
	}

	row := FixtureRow{Kickoff: f.Kickoff, Status: status, Score: f.Score()}
	var err error
	if row.LeagueID, err = s.Resolver.Lookup(ctx, s.name(), f.LeagueID, domain.EntityLeague); err != nil {
		return st, err
	}
	if row.HomeTeamID, err = s.Resolver.Lookup(ctx, s.name(), f.HomeTeamID, domain.EntityTeam); err != nil {
		return st, err
	}
	if row.AwayTeamID, err = s.Resolver.Lookup(ctx, s.name(), f.AwayTeamID, domain.EntityTeam); err != nil {
		return st, err
	}

	id, err := s.Resolver.Resolve(ctx, s.name(), f.ExternalID, domain.EntityFixture,
		func(ctx context.Context, q reconcile.Querier) (string, error) { return s.Repo.InsertFixture(ctx, q, row) })
	if err != nil {
		return st, err
	}

	prev, err := s.Repo.UpdateFixture(ctx, id, status, row.Score)
	if err != nil {
		return st, fmt.Errorf("update fixture: %w", err)
	}

	if status.IsTerminal() && prev != status {
		if err := s.Pub.Publish(ctx, s.SettlementChannel, []byte(id)); err != nil {
			s.Log.Warn("settlement trigger failed", zap.String("fixture_id", id), zap.Error(err))
		}
		st.Closed++
		s.Log.Info("fixture closed", zap.String("fixture_id", id), zap.String("status", string(status)))
	}

	if status == domain.StatusScheduled {
		has, err := s.Repo.HasPredictions(ctx, id)
		if err != nil {
			return st, fmt.Errorf("check predictions: %w", err)
		}
		if !has {
			if _, err := s.Bus.Publish(ctx, topics.PredictionTasks, events.PredictionTask{FixtureID: id}.ToFields()); err != nil {
				return st, fmt.Errorf("enqueue prediction: %w", err)
			}
			st.Tasks++
		}
	}
	return st, nil
}

// SyncAll roda ligas, times e jogos em ordem. Falha de uma liga não impede as outras.
func (s *Service) SyncAll(ctx context.Context, season int) (Stats, error) {
	leagues, st, err := s.SyncLeagues(ctx)
	if err != nil {
		return st, fmt.Errorf("sync leagues: %w", err)
	}
	for _, l := range leagues {
		ts, err := s.SyncTeams(ctx, l, season)
		st.add(ts)
		if err != nil {
			s.Log.Warn("team sync failed", zap.String("league_id", l), zap.Error(err))
			continue
		}
		fs, err := s.SyncFixtures(ctx, l, season)
		st.add(fs)
		if err != nil {
			s.Log.Warn("fixture sync failed", zap.String("league_id", l), zap.Error(err))
		}
	}
	return st, nil
}

// Run sincroniza imediatamente e depois a cada interval. Provedor fora do ar
// é registrado e tentado de novo no próximo ciclo.
func (s *Service) Run(ctx context.Context, season int, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		st, err := s.SyncAll(ctx, season)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			s.Log.Error("sync failed", zap.Error(err))
		default:
			s.Log.Info("sync done",
				zap.Int("leagues", st.Leagues),
				zap.Int("teams", st.Teams),
				zap.Int("fixtures", st.Fixtures),
				zap.Int("skipped", st.Skipped),
				zap.Int("tasks", st.Tasks),
				zap.Int("closed", st.Closed),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
