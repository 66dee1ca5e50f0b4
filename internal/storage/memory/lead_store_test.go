package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadcapture/internal/lead"
	"github.com/JakeFAU/leadcapture/internal/store"
)

var _ store.LeadRepository = (*LeadStore)(nil)
var _ store.BlobStore = (*BlobStore)(nil)

func TestSeedKeywords(t *testing.T) {
	t.Parallel()

	seed, err := SeedKeywords()
	require.NoError(t, err)
	require.Len(t, seed, 48)
	assert.Equal(t, "make money online", seed[0].Keyword)
	assert.Equal(t, "go getters", seed[47].Keyword)
	assert.Equal(t, 5, seed[47].Priority)

	repo, err := NewSeededLeadStore()
	require.NoError(t, err)
	kws, err := repo.ListKeywords(context.Background())
	require.NoError(t, err)
	require.Len(t, kws, 48)
	assert.Equal(t, int64(1), kws[0].ID)
	assert.Equal(t, int64(48), kws[47].ID)
}

func TestAddKeyword(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := NewSeededLeadStore()
	require.NoError(t, err)

	id, err := repo.AddKeyword(ctx, lead.Keyword{Keyword: "van life", Category: "lifestyle"})
	require.NoError(t, err)
	assert.Equal(t, int64(49), id)

	kws, err := repo.ListKeywords(ctx)
	require.NoError(t, err)
	assert.Equal(t, lead.DefaultKeywordPriority, kws[48].Priority)
	assert.False(t, kws[48].CreatedAt.IsZero())

	tests := []struct {
		name    string
		kw      lead.Keyword
		wantErr error
	}{
		{"exact duplicate", lead.Keyword{Keyword: "side hustle", Category: "income"}, lead.ErrDuplicateKeyword},
		{"case duplicate", lead.Keyword{Keyword: "SIDE Hustle", Category: "income"}, lead.ErrDuplicateKeyword},
		{"width duplicate", lead.Keyword{Keyword: "ｓｉｄｅ ｈｕｓｔｌｅ", Category: "income"}, lead.ErrDuplicateKeyword},
		{"missing category", lead.Keyword{Keyword: "new"}, lead.ErrValidation},
		{"missing keyword", lead.Keyword{Category: "income"}, lead.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := repo.AddKeyword(ctx, tt.kw)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMatchKeywords(t *testing.T) {
	t.Parallel()

	repo, err := NewSeededLeadStore()
	require.NoError(t, err)

	ids, err := repo.MatchKeywords(context.Background(), []string{"remote_work", "digital_nomad", "remote_work", "underwater_basket"})
	require.NoError(t, err)
	// remote work (3) and digital nomad (14).
	assert.Equal(t, []int64{3, 14}, ids)
}

func TestSaveLeadCounters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := NewLeadStore(nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.SaveLead(ctx, lead.Record{
				Submission: lead.Submission{Name: "n", Email: "e"},
				Qualified:  i%2 == 0,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.NoError(t, repo.IncrementCounter(ctx, lead.CounterPageViews))

	counters, err := repo.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		lead.CounterPageViews:       1,
		lead.CounterFormSubmissions: 10,
		lead.CounterQualifiedLeads:  5,
	}, counters)

	rec, ok := repo.Lead(10)
	require.True(t, ok)
	assert.False(t, rec.CreatedAt.IsZero())
	_, ok = repo.Lead(11)
	assert.False(t, ok)
	require.NoError(t, repo.Ping(ctx))
}
