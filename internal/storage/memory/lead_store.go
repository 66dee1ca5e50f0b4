package memory

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/leadcapture/internal/lead"
)

//go:embed keywords.yaml
var seedKeywords []byte

type seedFile struct {
	Keywords []lead.Keyword `yaml:"keywords"`
}

// SeedKeywords decodes the embedded keyword catalogue.
func SeedKeywords() ([]lead.Keyword, error) {
	var f seedFile
	if err := yaml.Unmarshal(seedKeywords, &f); err != nil {
		return nil, fmt.Errorf("decode keyword seed: %w", err)
	}
	return f.Keywords, nil
}

type storedLead struct {
	id  int64
	rec lead.Record
}

// LeadStore provides an in-memory lead repository for development/testing.
type LeadStore struct {
	mu         sync.RWMutex
	leads      []storedLead
	keywords   []lead.Keyword
	byNorm     map[string]int64
	counters   map[string]int64
	nextLeadID int64
	nextKwID   int64
	now        func() time.Time
}

// NewLeadStore constructs a LeadStore holding the given keywords and zeroed counters.
func NewLeadStore(seed []lead.Keyword) (*LeadStore, error) {
	s := &LeadStore{
		byNorm: make(map[string]int64),
		counters: map[string]int64{
			lead.CounterPageViews:       0,
			lead.CounterFormSubmissions: 0,
			lead.CounterQualifiedLeads:  0,
		},
		nextLeadID: 1,
		nextKwID:   1,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, kw := range seed {
		if _, err := s.AddKeyword(context.Background(), kw); err != nil {
			return nil, fmt.Errorf("seed keyword %q: %w", kw.Keyword, err)
		}
	}
	return s, nil
}

// NewSeededLeadStore constructs a LeadStore loaded with the embedded catalogue.
func NewSeededLeadStore() (*LeadStore, error) {
	seed, err := SeedKeywords()
	if err != nil {
		return nil, err
	}
	return NewLeadStore(seed)
}

// SaveLead stores the record and bumps counters.
func (s *LeadStore) SaveLead(_ context.Context, rec lead.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextLeadID
	s.nextLeadID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.KeywordIDs = slices.Clone(rec.KeywordIDs)
	rec.Submission.Interests = slices.Clone(rec.Submission.Interests)
	s.leads = append(s.leads, storedLead{id: id, rec: rec})
	s.counters[lead.CounterFormSubmissions]++
	if rec.Qualified {
		s.counters[lead.CounterQualifiedLeads]++
	}
	return id, nil
}

// Lead returns a stored record by id.
func (s *LeadStore) Lead(id int64) (lead.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.leads {
		if l.id == id {
			return l.rec, true
		}
	}
	return lead.Record{}, false
}

// IncrementCounter adds one to name.
func (s *LeadStore) IncrementCounter(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return nil
}

// Counters returns a copy of all counters.
func (s *LeadStore) Counters(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out, nil
}

// ListKeywords returns the catalogue in id order.
func (s *LeadStore) ListKeywords(_ context.Context) ([]lead.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.keywords), nil
}

// AddKeyword validates and appends kw.
func (s *LeadStore) AddKeyword(_ context.Context, kw lead.Keyword) (int64, error) {
	kw, err := kw.Prepare()
	if err != nil {
		return 0, err
	}
	key := lead.NormalizeKeyword(kw.Keyword)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byNorm[key]; exists {
		return 0, lead.ErrDuplicateKeyword
	}
	kw.ID = s.nextKwID
	s.nextKwID++
	if kw.CreatedAt.IsZero() {
		kw.CreatedAt = s.now()
	}
	s.keywords = append(s.keywords, kw)
	s.byNorm[key] = kw.ID
	return kw.ID, nil
}

// MatchKeywords returns the first matching keyword id per interest, without duplicates.
func (s *LeadStore) MatchKeywords(_ context.Context, interests []string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, interest := range interests {
		for _, kw := range s.keywords {
			if lead.MatchesInterest(kw.Keyword, interest) {
				if !slices.Contains(ids, kw.ID) {
					ids = append(ids, kw.ID)
				}
				break
			}
		}
	}
	return ids, nil
}

// Ping always succeeds.
func (s *LeadStore) Ping(context.Context) error {
	return nil
}
