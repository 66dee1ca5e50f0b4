package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/lead"
	"github.com/JakeFAU/leadcapture/internal/metrics"
)

// Messages returned by the lead and keyword endpoints.
const (
	msgLeadCaptured      = "Lead successfully captured"
	msgLeadRequired      = "Name and email are required"
	msgLeadFailed        = "Failed to process lead information"
	msgKeywordAdded      = "Keyword added successfully"
	msgKeywordRequired   = "Keyword and category are required"
	msgKeywordDuplicate  = "Keyword already exists"
	msgKeywordAddFailed  = "Failed to add keyword"
	msgKeywordListFailed = "Failed to fetch keywords"
	msgStatsFailed       = "Failed to fetch stats"
	msgInvalidJSON       = "invalid JSON"
	msgTooManyRequests   = "Too many requests"
)

type leadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	LeadID  int64  `json:"leadId"`
	Score   int    `json:"score"`
}

func (s *Server) createLead(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(ClientKey(r)) {
		metrics.ObserveRateLimited()
		WriteError(w, http.StatusTooManyRequests, msgTooManyRequests)
		return
	}

	var sub lead.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sub); err != nil {
		WriteError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if strings.TrimSpace(sub.Name) == "" || strings.TrimSpace(sub.Email) == "" {
		WriteError(w, http.StatusBadRequest, msgLeadRequired)
		return
	}
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	keywordIDs, err := s.repo.MatchKeywords(ctx, sub.Interests)
	if err != nil {
		s.logger.Error("match keywords failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, msgLeadFailed)
		return
	}
	score := lead.Score(sub)
	rec := lead.Record{
		Submission: sub,
		Score:      score,
		Qualified:  lead.Qualified(score.Total, s.threshold),
		KeywordIDs: keywordIDs,
		CreatedAt:  s.now().UTC(),
	}
	id, err := s.repo.SaveLead(ctx, rec)
	if err != nil {
		s.logger.Error("save lead failed", zap.Error(err), zap.String("request_id", RequestIDFromContext(r.Context())))
		WriteError(w, http.StatusInternalServerError, msgLeadFailed)
		return
	}
	metrics.ObserveLead(rec.Qualified)
	s.logger.Info("lead captured",
		zap.Int64("lead_id", id),
		zap.Int("score", score.Total),
		zap.Bool("qualified", rec.Qualified),
		zap.Int("keywords", len(keywordIDs)),
	)

	WriteJSON(w, http.StatusOK, leadResponse{
		Success: true,
		Message: msgLeadCaptured,
		LeadID:  id,
		Score:   score.Total,
	})
}

type keywordRequest struct {
	Keyword  string `json:"keyword"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

func (s *Server) listKeywords(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	keywords, err := s.repo.ListKeywords(ctx)
	if err != nil {
		s.logger.Error("list keywords failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, msgKeywordListFailed)
		return
	}
	if keywords == nil {
		keywords = []lead.Keyword{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"keywords": keywords})
}

func (s *Server) addKeyword(w http.ResponseWriter, r *http.Request) {
	var req keywordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if strings.TrimSpace(req.Keyword) == "" || strings.TrimSpace(req.Category) == "" {
		WriteError(w, http.StatusBadRequest, msgKeywordRequired)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	id, err := s.repo.AddKeyword(ctx, lead.Keyword{
		Keyword:   req.Keyword,
		Category:  req.Category,
		Priority:  req.Priority,
		CreatedAt: s.now().UTC(),
	})
	switch {
	case errors.Is(err, lead.ErrDuplicateKeyword):
		WriteError(w, http.StatusBadRequest, msgKeywordDuplicate)
		return
	case errors.Is(err, lead.ErrValidation):
		WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	case err != nil:
		s.logger.Error("add keyword failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, msgKeywordAddFailed)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   msgKeywordAdded,
		"keywordId": id,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	counters, err := s.repo.Counters(ctx)
	if err != nil {
		s.logger.Error("read counters failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, msgStatsFailed)
		return
	}
	if counters == nil {
		counters = make(map[string]int64, 3)
	}
	for _, name := range []string{lead.CounterPageViews, lead.CounterFormSubmissions, lead.CounterQualifiedLeads} {
		if _, ok := counters[name]; !ok {
			counters[name] = 0
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"counters": counters})
}

// validationMessage strips the sentinel prefix and capitalizes what remains.
func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), lead.ErrValidation.Error()+": ")
	if msg == "" {
		return lead.ErrValidation.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
