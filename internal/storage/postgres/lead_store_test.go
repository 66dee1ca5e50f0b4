package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadcapture/internal/lead"
	"github.com/JakeFAU/leadcapture/internal/store"
)

var _ store.LeadRepository = (*LeadStore)(nil)

func newMockStore(t *testing.T) (*LeadStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewLeadStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func janeRecord() lead.Record {
	return lead.Record{
		Submission: lead.Submission{
			Name:            "Jane",
			Email:           "j@x.io",
			ExperienceLevel: lead.ExperienceExpert,
			Interests:       []string{lead.InterestTravelSales},
			MotivationLevel: 5,
			Source:          lead.DefaultSource,
		},
		Score:      lead.Breakdown{Total: 93, GoGetter: 100, TravelInterest: 80, SalesAptitude: 100},
		Qualified:  true,
		KeywordIDs: []int64{15},
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestSaveLeadWritesAllRowsInOneTransaction(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	rec := janeRecord()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs("Jane", "j@x.io", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			lead.ExperienceExpert, 5, pgxmock.AnyArg(), rec.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec("INSERT INTO lead_interests").
		WithArgs(int64(42), int64(15)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO lead_scores").
		WithArgs(int64(42), 93, 100, 80, 100, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO counters").
		WithArgs(lead.CounterFormSubmissions).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO counters").
		WithArgs(lead.CounterQualifiedLeads).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, err := s.SaveLead(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLeadRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	rec := janeRecord()
	rec.Qualified = false
	rec.KeywordIDs = nil

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO leads").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO lead_scores").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.SaveLead(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert lead score")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddKeyword(t *testing.T) {
	t.Parallel()

	t.Run("inserted", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO keywords").
			WithArgs("Van Life", "van life", "lifestyle", lead.DefaultKeywordPriority).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(49)))

		id, err := s.AddKeyword(context.Background(), lead.Keyword{Keyword: " Van Life ", Category: "lifestyle"})
		require.NoError(t, err)
		assert.Equal(t, int64(49), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO keywords").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.AddKeyword(context.Background(), lead.Keyword{Keyword: "side hustle", Category: "income"})
		require.ErrorIs(t, err, lead.ErrDuplicateKeyword)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		_, err := s.AddKeyword(context.Background(), lead.Keyword{Keyword: "x"})
		require.ErrorIs(t, err, lead.ErrValidation)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMatchKeywordsUsesCatalogue(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT id, keyword, category, priority, created_at FROM keywords").
		WillReturnRows(pgxmock.NewRows([]string{"id", "keyword", "category", "priority", "created_at"}).
			AddRow(int64(3), "remote work", "work_style", 2, now).
			AddRow(int64(14), "digital nomad", "lifestyle", 3, now))

	ids, err := s.MatchKeywords(context.Background(), []string{"digital_nomad", "remote_work", "gardening"})
	require.NoError(t, err)
	assert.Equal(t, []int64{14, 3}, ids)
	require.NoError(t, mock.ExpectationsWereMet())

	ids, err = s.MatchKeywords(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCounters(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO counters").
		WithArgs(lead.CounterPageViews).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT name, value FROM counters").
		WillReturnRows(pgxmock.NewRows([]string{"name", "value"}).
			AddRow(lead.CounterPageViews, int64(12)).
			AddRow(lead.CounterFormSubmissions, int64(3)))

	require.NoError(t, s.IncrementCounter(context.Background(), lead.CounterPageViews))
	counters, err := s.Counters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		lead.CounterPageViews:       12,
		lead.CounterFormSubmissions: 3,
	}, counters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAndSeed(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS leads").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("INSERT INTO keywords").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO keywords").
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Seed(context.Background(), []lead.Keyword{
		{Keyword: "side hustle", Category: "income"},
		{Keyword: "Side Hustle", Category: "income"},
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLeadStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewLeadStore(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewLeadStoreWithPool(nil)
	require.Error(t, err)
}
