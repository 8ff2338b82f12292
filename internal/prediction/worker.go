package prediction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/internal/execution"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

type Oracle interface {
	Predict(ctx context.Context, home, away string) (OracleResponse, error)
}

type Store interface {
	Fixture(ctx context.Context, id string) (FixtureInfo, error)
	HasPredictions(ctx context.Context, fixtureID string) (bool, error)
	SavePredictions(ctx context.Context, ps []domain.Prediction) error
}

// OddsSource devolve as odds atuais de um mercado (cache alimentado pelo persistor)
type OddsSource interface {
	Market(ctx context.Context, fixtureID string, market domain.MarketType) (map[domain.Selection]float64, error)
}

type Placer interface {
	Place(ctx context.Context, o execution.Order) (execution.Result, error)
}

// Sizing parametriza sinais e tamanho de aposta
type Sizing struct {
	MinEdge          float64
	KellyFraction    float64
	MaxStakeFraction float64
	PortfolioID      string // vazio = só publica sinais
}

// Worker gera previsões a partir de prediction_tasks, uma vez por partida
type Worker struct {
	Log    *zap.Logger
	Bus    bus.Bus
	Store  Store
	Oracle Oracle
	Odds   OddsSource
	Placer Placer
	Sizing Sizing

	OnPredicted func(fixtureID string, n int) // métricas
	OnSignal    func(status execution.Status) // métricas

	now func() time.Time
}

func NewWorker(log *zap.Logger, b bus.Bus, store Store, oracle Oracle, odds OddsSource, placer Placer, sizing Sizing) *Worker {
	return &Worker{Log: log, Bus: b, Store: store, Oracle: oracle, Odds: odds, Placer: placer, Sizing: sizing, now: time.Now}
}

func (w *Worker) Loop(consumer string, count int64, block, reclaimMinIdle time.Duration) *bus.Loop {
	return &bus.Loop{
		Bus:            w.Bus,
		Log:            w.Log,
		Group:          topics.GroupPredictionWorker,
		Consumer:       consumer,
		Streams:        []string{topics.PredictionTasks},
		Count:          count,
		Block:          block,
		Handler:        w,
		ReclaimMinIdle: reclaimMinIdle,
	}
}

func (w *Worker) Handle(ctx context.Context, m bus.Message) error {
	task, err := events.ParsePredictionTask(m.Fields)
	if err != nil {
		return bus.Discard(err)
	}
	log := w.Log.With(zap.String("fixture_id", task.FixtureID), zap.String("msg_id", m.ID))

	fx, err := w.Store.Fixture(ctx, task.FixtureID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("prediction task for unknown fixture")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	if fx.Status.IsTerminal() {
		log.Info("fixture closed, prediction skipped", zap.String("status", string(fx.Status)))
		return nil
	}

	exists, err := w.Store.HasPredictions(ctx, fx.ID)
	if err != nil {
		return fmt.Errorf("check predictions: %w", err)
	}
	if exists {
		log.Debug("predictions already exist, skipping")
		return nil
	}

	resp, err := w.Oracle.Predict(ctx, fx.HomeTeam, fx.AwayTeam)
	if err != nil {
		// oráculo fora: partida pulada, dados existentes intactos
		log.Warn("oracle call failed", zap.Error(err))
		return nil
	}

	preds := w.build(ctx, log, fx.ID, resp)
	if len(preds) == 0 {
		log.Warn("oracle returned no supported markets")
		return nil
	}
	if err := w.Store.SavePredictions(ctx, preds); err != nil {
		if errors.Is(err, ErrPredictionsExist) {
			// outra instância venceu: ela publica e executa
			log.Info("predictions stored concurrently, skipping")
			return nil
		}
		return fmt.Errorf("save predictions: %w", err)
	}
	if w.OnPredicted != nil {
		w.OnPredicted(fx.ID, len(preds))
	}
	log.Info("predictions stored", zap.Int("rows", len(preds)), zap.String("model_version", resp.ModelVersion()))

	if err := w.publishUpdate(ctx, fx.ID, preds, resp.ModelVersion()); err != nil {
		log.Error("publish prediction update", zap.Error(err))
	}
	w.signals(ctx, log, preds)
	return nil
}

// build gera uma linha por (mercado, seleção) reconhecidos, em ordem estável
func (w *Worker) build(ctx context.Context, log *zap.Logger, fixtureID string, resp OracleResponse) []domain.Prediction {
	version := resp.ModelVersion()
	prices := map[domain.MarketType]map[domain.Selection]float64{}
	var out []domain.Prediction

	for market, sels := range resp.markets() {
		for sel, p := range sels {
			mt, s, ok := domain.Normalize(market, sel)
			if !ok || p <= 0 || p > 1 {
				continue
			}
			if _, seen := prices[mt]; !seen {
				q, err := w.Odds.Market(ctx, fixtureID, mt)
				if err != nil {
					log.Warn("odds cache read failed", zap.String("market", string(mt)), zap.Error(err))
				}
				prices[mt] = q
			}
			pr := domain.Prediction{
				ID:           uuid.NewString(),
				FixtureID:    fixtureID,
				Market:       mt,
				Selection:    s,
				Probability:  p,
				FairOdds:     domain.FairOdds(p),
				ModelVersion: version,
			}
			if odd, ok := prices[mt][s]; ok && odd > 1 {
				ev := domain.EV(p, odd)
				pr.MarketOdds, pr.EV = &odd, &ev
			}
			out = append(out, pr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Market != out[j].Market {
			return out[i].Market < out[j].Market
		}
		return out[i].Selection < out[j].Selection
	})
	return out
}

func (w *Worker) publishUpdate(ctx context.Context, fixtureID string, preds []domain.Prediction, version string) error {
	probs := events.Probs{}
	for _, p := range preds {
		if probs[string(p.Market)] == nil {
			probs[string(p.Market)] = map[string]float64{}
		}
		probs[string(p.Market)][string(p.Selection)] = p.Probability
	}
	upd := events.PredictionUpdate{FixtureID: fixtureID, Probs: probs, ModelVersion: version, Timestamp: w.now()}
	_, err := w.Bus.Publish(ctx, topics.LivePredictions, upd.ToFields())
	return err
}

// signals publica as seleções com valor e executa quando há portfólio configurado
func (w *Worker) signals(ctx context.Context, log *zap.Logger, preds []domain.Prediction) {
	for _, p := range preds {
		if p.EV == nil || *p.EV < w.Sizing.MinEdge {
			continue
		}
		f := domain.KellyFraction(p.Probability, *p.MarketOdds, w.Sizing.KellyFraction, w.Sizing.MaxStakeFraction)
		if f <= 0 {
			continue
		}

		sig := events.LiveSignal{
			FixtureID: p.FixtureID,
			Signal: events.Signal{
				Market:        string(p.Market),
				Selection:     string(p.Selection),
				Probability:   p.Probability,
				Odds:          *p.MarketOdds,
				EV:            *p.EV,
				StakeFraction: f,
				ModelVersion:  p.ModelVersion,
			},
			Execution: w.execute(ctx, log, p, f),
			Timestamp: w.now(),
		}
		if w.OnSignal != nil {
			w.OnSignal(execution.Status(sig.Execution.Status))
		}
		if _, err := w.Bus.Publish(ctx, topics.LiveSignals, sig.ToFields()); err != nil {
			log.Error("publish signal", zap.String("market", string(p.Market)), zap.Error(err))
		}
	}
}

func (w *Worker) execute(ctx context.Context, log *zap.Logger, p domain.Prediction, f float64) events.Execution {
	if w.Placer == nil || w.Sizing.PortfolioID == "" {
		return events.Execution{Status: string(execution.StatusSkipped), Reason: "NO_PORTFOLIO"}
	}
	res, err := w.Placer.Place(ctx, execution.Order{
		PortfolioID:   w.Sizing.PortfolioID,
		FixtureID:     p.FixtureID,
		PredictionID:  p.ID,
		Market:        p.Market,
		Selection:     p.Selection,
		Odds:          decimal.NewFromFloat(*p.MarketOdds),
		StakeFraction: decimal.NewFromFloat(f),
	})
	if err != nil {
		log.Error("bet placement failed", zap.String("prediction_id", p.ID), zap.Error(err))
		return events.Execution{Status: string(execution.StatusSkipped), Reason: "EXECUTION_ERROR"}
	}
	ex := events.Execution{Status: string(res.Status), Reason: res.Reason, BetID: res.BetID}
	if res.Status == execution.StatusPlaced {
		ex.Stake = res.Stake.StringFixed(2)
	}
	return ex
}
