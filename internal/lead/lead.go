// Package lead defines the lead capture domain: submissions, scoring, counters and keywords.
package lead

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation marks client input that fails required-field checks.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateKeyword is returned when a keyword with the same text already exists.
	ErrDuplicateKeyword = errors.New("keyword already exists")
)

// Experience levels accepted on the form.
const (
	ExperienceBeginner       = "beginner"
	ExperienceSomeExperience = "some_experience"
	ExperienceExperienced    = "experienced"
	ExperienceExpert         = "expert"
)

// Interest tags offered on the form.
const (
	InterestTravelSales      = "travel_sales"
	InterestTeamBuilding     = "team_building"
	InterestRemoteWork       = "remote_work"
	InterestSideIncome       = "side_income"
	InterestFinancialFreedom = "financial_freedom"
	InterestDigitalNomad     = "digital_nomad"
)

// Counter names tracked by the lead service.
const (
	CounterPageViews       = "page_views"
	CounterFormSubmissions = "form_submissions"
	CounterQualifiedLeads  = "qualified_leads"
)

// DefaultSource tags submissions that did not declare where they came from.
const DefaultSource = "pwa_form"

// Submission is the lead form payload as posted to the submission endpoint.
type Submission struct {
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	Phone             string   `json:"phone,omitempty"`
	Location          string   `json:"location,omitempty"`
	CurrentOccupation string   `json:"currentOccupation,omitempty"`
	ExperienceLevel   string   `json:"experienceLevel,omitempty"`
	Interests         []string `json:"interests,omitempty"`
	MotivationLevel   int      `json:"motivationLevel,omitempty"`
	Source            string   `json:"source,omitempty"`
}

// Normalize trims text fields and fills defaults for motivation and source.
func (s Submission) Normalize() Submission {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Location = strings.TrimSpace(s.Location)
	s.CurrentOccupation = strings.TrimSpace(s.CurrentOccupation)
	if s.MotivationLevel == 0 {
		s.MotivationLevel = 3
	}
	if s.ExperienceLevel == "" {
		s.ExperienceLevel = ExperienceBeginner
	}
	if s.Source == "" {
		s.Source = DefaultSource
	}
	return s
}

// Validate enforces the required fields.
func (s Submission) Validate() error {
	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Email) == "" {
		return fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	if s.MotivationLevel < 0 || s.MotivationLevel > 5 {
		return fmt.Errorf("%w: motivation level must be between 1 and 5", ErrValidation)
	}
	return nil
}

// Record is a scored lead ready for persistence.
type Record struct {
	Submission Submission
	Score      Breakdown
	Qualified  bool
	KeywordIDs []int64
	CreatedAt  time.Time
}
