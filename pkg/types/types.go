package types

import (
	"sort"
	"strings"
)

// WorkflowMode selects how much of the pipeline the agent is asked to run.
type WorkflowMode string

const (
	// ModeFull - ticket id only; the agent fetches the ticket and performs
	// chat/ticket side effects itself
	ModeFull WorkflowMode = "full"
	// ModeHybrid - ticket id plus description; full workflow with a
	// description fallback
	ModeHybrid WorkflowMode = "hybrid"
	// ModeDescriptionOnly - free text only; the agent is explicitly told
	// not to attempt external side effects
	ModeDescriptionOnly WorkflowMode = "description-only"
)

// Result invariants.
const (
	// MaxRecommendations bounds the recommendation list of a result
	MaxRecommendations = 3
	// MaxSimilarTickets bounds the similar-ticket list of a result
	MaxSimilarTickets = 5
	// MaxResolutionLength bounds a similar ticket's resolution summary
	MaxResolutionLength = 500
	// DefaultSimilarityScore is assumed when the completion carries no
	// true score for a similar ticket
	DefaultSimilarityScore = 0.85
)

// Recommendation is one suggested subject-matter expert for a ticket.
// Unique by (Name, Email) within a result.
type Recommendation struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	SlackID    string   `json:"slack_id,omitempty"`
	Expertise  []string `json:"expertise"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// SimilarTicket references a previously resolved ticket with a related issue
type SimilarTicket struct {
	TicketID        string  `json:"ticket_id,omitempty"`
	Subject         string  `json:"subject"`
	Resolution      string  `json:"resolution"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`
}

// Result is the structured outcome of one matching-pipeline run
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	SimilarTickets  []SimilarTicket  `json:"similar_tickets"`
	ConversationURL string           `json:"conversation_url,omitempty"`
	SourceTicketURL string           `json:"source_ticket_url,omitempty"`
	WorkflowMode    string           `json:"workflow_mode,omitempty"`
	TicketID        string           `json:"ticket_id,omitempty"`
}

// EmptyResult returns a valid result with no matches. A degraded parse is
// not an error; the caller decides how to surface "no match found".
func EmptyResult() *Result {
	return &Result{
		Recommendations: []Recommendation{},
		SimilarTickets:  []SimilarTicket{},
	}
}

// Normalize enforces the result invariants in place: confidences clamped
// into [0,1], recommendations deduplicated by (name, email) and sorted by
// descending confidence with ties kept in appearance order, at most
// MaxRecommendations kept; similar tickets capped at MaxSimilarTickets
// with resolution summaries truncated.
func (r *Result) Normalize() {
	if r.Recommendations == nil {
		r.Recommendations = []Recommendation{}
	}
	if r.SimilarTickets == nil {
		r.SimilarTickets = []SimilarTicket{}
	}

	seen := make(map[string]bool, len(r.Recommendations))
	deduped := r.Recommendations[:0]
	for _, rec := range r.Recommendations {
		key := strings.ToLower(rec.Name) + "|" + strings.ToLower(rec.Email)
		if seen[key] {
			continue
		}
		seen[key] = true
		rec.Confidence = clamp01(rec.Confidence)
		deduped = append(deduped, rec)
	}
	r.Recommendations = deduped

	sort.SliceStable(r.Recommendations, func(i, j int) bool {
		return r.Recommendations[i].Confidence > r.Recommendations[j].Confidence
	})
	if len(r.Recommendations) > MaxRecommendations {
		r.Recommendations = r.Recommendations[:MaxRecommendations]
	}

	if len(r.SimilarTickets) > MaxSimilarTickets {
		r.SimilarTickets = r.SimilarTickets[:MaxSimilarTickets]
	}
	for i := range r.SimilarTickets {
		if len(r.SimilarTickets[i].Resolution) > MaxResolutionLength {
			r.SimilarTickets[i].Resolution = r.SimilarTickets[i].Resolution[:MaxResolutionLength]
		}
		if r.SimilarTickets[i].SimilarityScore != 0 {
			r.SimilarTickets[i].SimilarityScore = clamp01(r.SimilarTickets[i].SimilarityScore)
		}
	}
}

// IsEmpty reports whether the result carries no matches at all
func (r *Result) IsEmpty() bool {
	return len(r.Recommendations) == 0 && len(r.SimilarTickets) == 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
