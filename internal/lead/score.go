package lead

import (
	"math"
	"slices"
)

// DefaultQualifiedThreshold is the score at which a lead counts as qualified.
const DefaultQualifiedThreshold = 70

// Breakdown holds the total score and the three sub-scores it blends.
type Breakdown struct {
	Total          int `json:"total"`
	GoGetter       int `json:"goGetter"`
	TravelInterest int `json:"travelInterest"`
	SalesAptitude  int `json:"salesAptitude"`
}

// Score computes round((motivation*20 + travel + sales) / 3).
func Score(sub Submission) Breakdown {
	goGetter := sub.MotivationLevel * 20
	travel := TravelInterestScore(sub.Interests)
	sales := SalesAptitudeScore(sub.ExperienceLevel)
	total := int(math.Round(float64(goGetter+travel+sales) / 3))
	return Breakdown{
		Total:          total,
		GoGetter:       goGetter,
		TravelInterest: travel,
		SalesAptitude:  sales,
	}
}

// TravelInterestScore rates travel affinity from the interest tags.
func TravelInterestScore(interests []string) int {
	switch {
	case slices.Contains(interests, InterestTravelSales):
		return 80
	case slices.Contains(interests, InterestDigitalNomad):
		return 60
	default:
		return 40
	}
}

// SalesAptitudeScore rates the declared experience level.
func SalesAptitudeScore(level string) int {
	switch level {
	case ExperienceExpert:
		return 100
	case ExperienceExperienced:
		return 80
	case ExperienceSomeExperience:
		return 60
	default:
		return 40
	}
}

// Qualified reports whether score meets threshold.
func Qualified(score, threshold int) bool {
	return score >= threshold
}
