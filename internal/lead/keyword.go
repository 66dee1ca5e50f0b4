package lead

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultKeywordPriority applies when a keyword is added without a priority.
const DefaultKeywordPriority = 3

// Keyword is a tagging term used to classify lead interests.
type Keyword struct {
	ID        int64     `json:"id" yaml:"id"`
	Keyword   string    `json:"keyword" yaml:"keyword"`
	Category  string    `json:"category" yaml:"category"`
	Priority  int       `json:"priority" yaml:"priority"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
}

// Prepare trims fields, applies the default priority and validates the keyword.
func (k Keyword) Prepare() (Keyword, error) {
	k.Keyword = strings.TrimSpace(k.Keyword)
	k.Category = strings.TrimSpace(k.Category)
	if k.Keyword == "" || k.Category == "" {
		return Keyword{}, fmt.Errorf("%w: keyword and category are required", ErrValidation)
	}
	if k.Priority == 0 {
		k.Priority = DefaultKeywordPriority
	}
	if k.Priority < 1 || k.Priority > 5 {
		return Keyword{}, fmt.Errorf("%w: priority must be between 1 and 5", ErrValidation)
	}
	return k, nil
}

// NormalizeKeyword folds case and Unicode form so equivalent spellings compare equal.
func NormalizeKeyword(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// InterestTerm turns an interest tag such as "remote_work" into searchable text.
func InterestTerm(tag string) string {
	return NormalizeKeyword(strings.ReplaceAll(tag, "_", " "))
}

// MatchesInterest reports whether a keyword equals or contains the interest term.
func MatchesInterest(keyword, interest string) bool {
	term := InterestTerm(interest)
	if term == "" {
		return false
	}
	kw := NormalizeKeyword(keyword)
	return kw == term || strings.Contains(kw, term)
}
