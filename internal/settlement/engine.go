package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
)

// Candidate é uma partida encerrada com algo a liquidar
type Candidate struct {
	FixtureID string
	Status    domain.FixtureStatus
	Score     *domain.Score
}

// BetSettlement é a transição de uma aposta PENDING para o status final
type BetSettlement struct {
	BetID  string
	Status domain.BetStatus
	Profit decimal.Decimal
	RunID  string
}

// Report resume uma execução do sweep
type Report struct {
	RunID              string
	StartedAt          time.Time
	FinishedAt         time.Time
	FixturesScanned    int
	PredictionsSettled int
	BetsSettled        int
	Failures           int
}

type Store interface {
	StartRun(ctx context.Context, runID string, at time.Time) error
	FinishRun(ctx context.Context, r Report) error
	Candidates(ctx context.Context) ([]Candidate, error)
	UnsettledPredictions(ctx context.Context, fixtureID string) ([]domain.Prediction, error)
	// MarkPrediction só altera previsões ainda não avaliadas
	MarkPrediction(ctx context.Context, predictionID string, correct bool) (bool, error)
	PendingBets(ctx context.Context, fixtureID string) ([]domain.Bet, error)
	// SettleBet muda o status e credita o lucro na banca na mesma transação.
	// applied=false quando a aposta já tinha sido liquidada.
	SettleBet(ctx context.Context, s BetSettlement) (portfolioID string, applied bool, err error)
}

// Notifier publica apostas liquidadas (melhor esforço)
type Notifier interface {
	BetSettled(ctx context.Context, e events.BetSettled) error
}

// Engine liquida previsões e apostas de partidas encerradas.
// Reexecutar é no-op: toda escrita é condicionada ao estado pendente.
type Engine struct {
	Store    Store
	Notifier Notifier
	Log      *zap.Logger

	now func() time.Time
}

func NewEngine(store Store, notifier Notifier, log *zap.Logger) *Engine {
	return &Engine{Store: store, Notifier: notifier, Log: log, now: time.Now}
}

// Sweep percorre as candidatas; falha de uma partida não interrompe as demais
func (e *Engine) Sweep(ctx context.Context) (Report, error) {
	r := Report{RunID: uuid.NewString(), StartedAt: e.now()}
	log := e.Log.With(zap.String("run_id", r.RunID))

	if err := e.Store.StartRun(ctx, r.RunID, r.StartedAt); err != nil {
		return r, fmt.Errorf("start run: %w", err)
	}

	cands, err := e.Store.Candidates(ctx)
	if err != nil {
		return r, fmt.Errorf("load candidates: %w", err)
	}

	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		r.FixturesScanned++
		preds, bets, err := e.settleFixture(ctx, log, r.RunID, c)
		r.PredictionsSettled += preds
		r.BetsSettled += bets
		if err != nil {
			r.Failures++
			log.Error("fixture settlement failed",
				zap.String("fixture_id", c.FixtureID),
				zap.String("status", string(c.Status)),
				zap.Error(err),
			)
		}
	}

	r.FinishedAt = e.now()
	if err := e.Store.FinishRun(ctx, r); err != nil {
		log.Warn("finish run", zap.Error(err))
	}
	log.Info("settlement sweep done",
		zap.Int("fixtures", r.FixturesScanned),
		zap.Int("predictions", r.PredictionsSettled),
		zap.Int("bets", r.BetsSettled),
		zap.Int("failures", r.Failures),
	)
	return r, nil
}

func (e *Engine) settleFixture(ctx context.Context, log *zap.Logger, runID string, c Candidate) (int, int, error) {
	if c.Status == domain.StatusFinished && c.Score == nil {
		return 0, 0, domain.ErrSettlementConflict
	}

	var nPreds, nBets int

	// previsões só são avaliadas com placar final; partidas void ficam sem avaliação
	if c.Status == domain.StatusFinished {
		preds, err := e.Store.UnsettledPredictions(ctx, c.FixtureID)
		if err != nil {
			return 0, 0, fmt.Errorf("load predictions: %w", err)
		}
		for _, p := range preds {
			correct, err := domain.IsCorrect(p.Market, p.Selection, *c.Score)
			if err != nil {
				log.Warn("prediction skipped", zap.String("prediction_id", p.ID), zap.Error(err))
				continue
			}
			ok, err := e.Store.MarkPrediction(ctx, p.ID, correct)
			if err != nil {
				return nPreds, 0, fmt.Errorf("mark prediction %s: %w", p.ID, err)
			}
			if ok {
				nPreds++
			}
		}
	}

	bets, err := e.Store.PendingBets(ctx, c.FixtureID)
	if err != nil {
		return nPreds, 0, fmt.Errorf("load bets: %w", err)
	}
	for _, b := range bets {
		status, profit, err := domain.Settle(b, c.Status, c.Score)
		if errors.Is(err, domain.ErrUnknownMarket) || errors.Is(err, domain.ErrUnknownOutcome) {
			log.Warn("bet skipped", zap.String("bet_id", b.ID), zap.Error(err))
			continue
		}
		if err != nil {
			return nPreds, nBets, err
		}
		if status == domain.BetPending {
			continue
		}

		pf, applied, err := e.Store.SettleBet(ctx, BetSettlement{BetID: b.ID, Status: status, Profit: profit, RunID: runID})
		if err != nil {
			return nPreds, nBets, fmt.Errorf("settle bet %s: %w", b.ID, err)
		}
		if !applied {
			continue
		}
		nBets++
		e.notify(ctx, log, events.BetSettled{
			BetID:       b.ID,
			PortfolioID: pf,
			FixtureID:   c.FixtureID,
			Status:      string(status),
			Profit:      profit.StringFixed(2),
			RunID:       runID,
			Ts:          e.now().UTC(),
		})
	}
	return nPreds, nBets, nil
}

func (e *Engine) notify(ctx context.Context, log *zap.Logger, ev events.BetSettled) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.BetSettled(ctx, ev); err != nil {
		log.Warn("bet_settled publish failed", zap.String("bet_id", ev.BetID), zap.Error(err))
	}
}
