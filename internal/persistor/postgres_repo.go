package persistor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
)

// OddsRow é uma entrada de live_odds com o id da mensagem de origem
type OddsRow struct {
	StreamID string
	Odds     events.LiveOdds
}

// Store persiste eventos e odds ao vivo
type Store interface {
	InsertEvent(ctx context.Context, streamID string, e events.LiveEvent) error
	InsertOddsBatch(ctx context.Context, rows []OddsRow) error
}

// PostgresRepo implementa Store em Postgres. O stream_id torna as gravações
// idempotentes: reentregas da mesma mensagem não duplicam linhas.
type PostgresRepo struct {
	DB *sql.DB
}

// NewPostgresRepo retorna uma instância de repositório Postgres
func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// InsertEvent grava um evento de partida em match_events. O mesmo lance
// republicado (outro stream_id, mesma event_key) não gera segunda linha.
func (r *PostgresRepo) InsertEvent(ctx context.Context, streamID string, e events.LiveEvent) error {
	data := []byte(e.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	const q = `
		INSERT INTO match_events (fixture_id, stream_id, event_key, type, data, occurred_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	_, err := r.DB.ExecContext(ctx, q, e.FixtureID, streamID, e.Key, e.Type, string(data), e.Timestamp)
	return err
}

// InsertOddsBatch grava o lote inteiro numa transação (uma linha por seleção)
func (r *PostgresRepo) InsertOddsBatch(ctx context.Context, rows []OddsRow) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO in_play_odds
		  (fixture_id, stream_id, bookmaker, market, selection, odds, depth, observed_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (stream_id, selection) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		o := row.Odds
		for _, v := range o.Values {
			var depth interface{}
			if len(v.Depth) > 0 {
				b, err := json.Marshal(v.Depth)
				if err != nil {
					return err
				}
				depth = string(b)
			}
			if _, err := stmt.ExecContext(ctx,
				o.FixtureID, row.StreamID, o.Bookmaker, o.Market, v.Selection,
				decimal.NewFromFloat(v.Odds).Round(3), depth, o.Timestamp,
			); err != nil {
				return fmt.Errorf("insert odds %s: %w", row.StreamID, err)
			}
		}
	}

	return tx.Commit()
}
