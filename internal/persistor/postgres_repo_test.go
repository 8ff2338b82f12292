package persistor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
)

func TestPostgresRepo_InsertOddsBatchSingleTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.UnixMilli(1700000000000).UTC()
	rows := []OddsRow{{StreamID: "1-0", Odds: events.LiveOdds{
		FixtureID: "fx-1", Bookmaker: "B", Market: "Match Winner", Timestamp: ts,
		Values: []events.OddsValue{{Selection: "Home", Odds: 2}, {Selection: "Away", Odds: 4}},
	}}}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO in_play_odds`)
	prep.ExpectExec().WithArgs("fx-1", "1-0", "B", "Match Winner", "Home", sqlmock.AnyArg(), nil, ts).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("fx-1", "1-0", "B", "Match Winner", "Away", sqlmock.AnyArg(), nil, ts).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresRepo(db).InsertOddsBatch(context.Background(), rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_InsertEventDedupsByKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.UnixMilli(1700000000000).UTC()
	ev := events.LiveEvent{FixtureID: "fx-1", Type: "Goal", Key: "Goal|10+0|Normal Goal|101|Mock Striker", Timestamp: ts}

	mock.ExpectExec(`(?s)INSERT INTO match_events.*ON CONFLICT DO NOTHING`).
		WithArgs("fx-1", "1-0", ev.Key, "Goal", "{}", ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// reentrega do mesmo lance por outro coletor: nenhuma linha nova
	mock.ExpectExec(`(?s)INSERT INTO match_events.*ON CONFLICT DO NOTHING`).
		WithArgs("fx-1", "2-0", ev.Key, "Goal", "{}", ts).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresRepo(db)
	require.NoError(t, repo.InsertEvent(context.Background(), "1-0", ev))
	require.NoError(t, repo.InsertEvent(context.Background(), "2-0", ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_InsertOddsBatchRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := []OddsRow{{StreamID: "1-0", Odds: events.LiveOdds{
		FixtureID: "fx-1", Values: []events.OddsValue{{Selection: "Home", Odds: 2}},
	}}}

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO in_play_odds`).ExpectExec().WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err = NewPostgresRepo(db).InsertOddsBatch(context.Background(), rows)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
