package settlement

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

func TestPostgresStore_SettleBetCreditsBankrollInSameTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE bets SET status=\$2`).
		WithArgs("b1", "WON", sqlmock.AnyArg(), "run-1").
		WillReturnRows(sqlmock.NewRows([]string{"portfolio_id"}).AddRow("pf-1"))
	mock.ExpectExec(`UPDATE portfolios SET bankroll = bankroll \+ \$2`).
		WithArgs("pf-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	pf, applied, err := NewPostgresStore(db).SettleBet(context.Background(),
		BetSettlement{BetID: "b1", Status: domain.BetWon, Profit: d("150"), RunID: "run-1"})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "pf-1", pf)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SettleBetAlreadySettled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE bets SET status=\$2`).
		WillReturnRows(sqlmock.NewRows([]string{"portfolio_id"}))
	mock.ExpectRollback()

	_, applied, err := NewPostgresStore(db).SettleBet(context.Background(),
		BetSettlement{BetID: "b1", Status: domain.BetWon, Profit: d("150"), RunID: "run-2"})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CandidatesScore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT f.id, f.status, f.home_score, f.away_score`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "home_score", "away_score"}).
			AddRow("fx-1", "FINISHED", 2, 1).
			AddRow("fx-2", "CANCELLED", nil, nil))

	cs, err := NewPostgresStore(db).Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, &domain.Score{Home: 2, Away: 1}, cs[0].Score)
	assert.Equal(t, domain.StatusCancelled, cs[1].Status)
	assert.Nil(t, cs[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}
