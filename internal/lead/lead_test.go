package lead

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sub       Submission
		want      Breakdown
		qualified bool
	}{
		{
			name: "motivated expert travel seller",
			sub: Submission{
				MotivationLevel: 5,
				ExperienceLevel: ExperienceExpert,
				Interests:       []string{InterestTravelSales},
			},
			want:      Breakdown{Total: 93, GoGetter: 100, TravelInterest: 80, SalesAptitude: 100},
			qualified: true,
		},
		{
			name: "digital nomad with some experience",
			sub: Submission{
				MotivationLevel: 3,
				ExperienceLevel: ExperienceSomeExperience,
				Interests:       []string{InterestDigitalNomad, InterestSideIncome},
			},
			want: Breakdown{Total: 60, GoGetter: 60, TravelInterest: 60, SalesAptitude: 60},
		},
		{
			name: "travel wins over nomad",
			sub: Submission{
				MotivationLevel: 4,
				ExperienceLevel: ExperienceExperienced,
				Interests:       []string{InterestDigitalNomad, InterestTravelSales},
			},
			want:      Breakdown{Total: 80, GoGetter: 80, TravelInterest: 80, SalesAptitude: 80},
			qualified: true,
		},
		{
			name: "beginner without interests rounds down",
			sub:  Submission{MotivationLevel: 1, ExperienceLevel: ExperienceBeginner},
			want: Breakdown{Total: 33, GoGetter: 20, TravelInterest: 40, SalesAptitude: 40},
		},
		{
			name: "rounds up",
			sub:  Submission{MotivationLevel: 2, ExperienceLevel: ExperienceSomeExperience},
			want: Breakdown{Total: 47, GoGetter: 40, TravelInterest: 40, SalesAptitude: 60},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Score(tt.sub)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.qualified, Qualified(got.Total, DefaultQualifiedThreshold))
		})
	}
}

func TestSubmissionNormalizeAndValidate(t *testing.T) {
	t.Parallel()

	sub := Submission{Name: "  Jane ", Email: "jane@x.com "}.Normalize()
	require.NoError(t, sub.Validate())
	assert.Equal(t, "Jane", sub.Name)
	assert.Equal(t, "jane@x.com", sub.Email)
	assert.Equal(t, 3, sub.MotivationLevel)
	assert.Equal(t, ExperienceBeginner, sub.ExperienceLevel)
	assert.Equal(t, DefaultSource, sub.Source)

	err := Submission{Email: "a@b.c"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	err = Submission{Name: "a", Email: "a@b.c", MotivationLevel: 9}.Validate()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestKeywordPrepare(t *testing.T) {
	t.Parallel()

	kw, err := Keyword{Keyword: " side hustle ", Category: "income"}.Prepare()
	require.NoError(t, err)
	assert.Equal(t, "side hustle", kw.Keyword)
	assert.Equal(t, DefaultKeywordPriority, kw.Priority)

	_, err = Keyword{Keyword: "x"}.Prepare()
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Keyword{Keyword: "x", Category: "y", Priority: 7}.Prepare()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalizeKeyword(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NormalizeKeyword("Uber driver"), NormalizeKeyword("uber   DRIVER"))
	assert.Equal(t, NormalizeKeyword("ＡＩ virtual assistant"), NormalizeKeyword("ai virtual assistant"))
	assert.NotEqual(t, NormalizeKeyword("side hustle"), NormalizeKeyword("side income"))
}

func TestMatchesInterest(t *testing.T) {
	t.Parallel()

	assert.True(t, MatchesInterest("remote work", InterestRemoteWork))
	assert.True(t, MatchesInterest("Digital Nomad", InterestDigitalNomad))
	assert.True(t, MatchesInterest("side income 2025", InterestSideIncome))
	assert.False(t, MatchesInterest("travelpreneur", InterestTravelSales))
	assert.False(t, MatchesInterest("anything", ""))
}
