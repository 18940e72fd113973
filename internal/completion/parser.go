package completion

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/smefinder/smefinder/pkg/logging"
	"github.com/smefinder/smefinder/pkg/types"
)

// Tier names reported to the observer hook.
const (
	TierStructured = "structured"
	TierHeuristic  = "heuristic"
	TierEmpty      = "empty"
)

// Strategy is one pure extraction attempt: text in, optional result out.
// Strategies are tried in order; the first success wins.
type Strategy struct {
	Name    string
	Extract func(raw string) (*types.Result, bool)
}

// Parser converts a raw agent completion into a structured result. Parse
// is a total function: malformed input degrades to an empty-but-valid
// result, never an error.
type Parser struct {
	strategies []Strategy
	logger     *logging.Logger
	onTier     func(tier string)
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithTierObserver registers a hook called with the name of the tier that
// produced the result (or "empty")
func WithTierObserver(fn func(tier string)) ParserOption {
	return func(p *Parser) {
		p.onTier = fn
	}
}

// NewParser creates a parser with the structured and heuristic tiers
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		strategies: []Strategy{
			{Name: TierStructured, Extract: extractStructured},
			{Name: TierHeuristic, Extract: extractHeuristic},
		},
		logger: logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse converts the fully reassembled completion into a result. The
// workflow-mode marker, when present, is copied into the result for
// observability but never changes extraction behavior.
func (p *Parser) Parse(raw string) *types.Result {
	for _, s := range p.strategies {
		result, ok := s.Extract(raw)
		if !ok {
			continue
		}

		result.Normalize()
		if result.WorkflowMode == "" {
			result.WorkflowMode = extractWorkflowMode(raw)
		}

		p.logger.Debug("Completion parsed",
			"tier", s.Name,
			"recommendations", len(result.Recommendations),
			"similar_tickets", len(result.SimilarTickets),
		)
		if p.onTier != nil {
			p.onTier(s.Name)
		}
		return result
	}

	if p.onTier != nil {
		p.onTier(TierEmpty)
	}
	result := types.EmptyResult()
	result.WorkflowMode = extractWorkflowMode(raw)
	return result
}

// wire shapes for the structured tier. Field names are the contract the
// agent is prompted to emit.
type wireRecommendation struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	SlackID    string   `json:"slack_id"`
	Expertise  []string `json:"expertise"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

type wireSimilarTicket struct {
	TicketID        string  `json:"ticket_id"`
	Subject         string  `json:"subject"`
	Resolution      string  `json:"resolution"`
	SimilarityScore float64 `json:"similarity_score"`
}

type wireResult struct {
	RecommendedFDEs      []wireRecommendation `json:"recommended_fdes"`
	SimilarTickets       []wireSimilarTicket  `json:"similar_tickets"`
	SlackConversationURL string               `json:"slack_conversation_url"`
	ZendeskURL           string               `json:"zendesk_url"`
	WorkflowMode         string               `json:"workflow_mode"`
}

// extractStructured locates the first JSON-object-looking substring
// (greedy, first '{' to last '}') and decodes it.
func extractStructured(raw string) (*types.Result, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	candidate := raw[start : end+1]
	if !gjson.Valid(candidate) {
		return nil, false
	}

	// Shape check before decoding: a recommendation array must be present.
	if !gjson.Get(candidate, "recommended_fdes").IsArray() {
		return nil, false
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(candidate), &wire); err != nil {
		return nil, false
	}

	result := types.EmptyResult()
	for _, fde := range wire.RecommendedFDEs {
		result.Recommendations = append(result.Recommendations, types.Recommendation{
			Name:       strings.TrimSpace(fde.Name),
			Email:      strings.TrimSpace(fde.Email),
			SlackID:    fde.SlackID,
			Expertise:  fde.Expertise,
			Confidence: fde.Confidence,
			Reasoning:  strings.TrimSpace(fde.Reasoning),
		})
	}
	for _, st := range wire.SimilarTickets {
		result.SimilarTickets = append(result.SimilarTickets, types.SimilarTicket{
			TicketID:        st.TicketID,
			Subject:         strings.TrimSpace(st.Subject),
			Resolution:      strings.TrimSpace(st.Resolution),
			SimilarityScore: st.SimilarityScore,
		})
	}
	result.ConversationURL = wire.SlackConversationURL
	result.SourceTicketURL = wire.ZendeskURL
	result.WorkflowMode = strings.TrimSpace(wire.WorkflowMode)

	return result, true
}

// Heuristic-tier patterns for the agent's markdown rendering:
//
//	**1. Ann (a@x.com) - Confidence: 0.9**
//	- **Expertise:** SQL, Tuning
//	- **Reasoning:** strong match
var (
	recommendationPattern = regexp.MustCompile(
		`\*\*(\d+)\.\s+([^(]+)\(([^)]+)\)\s*-\s*Confidence:\s*([\d.]+)\*\*\s*\n\s*-\s*\*\*Expertise:\*\*([^\n]*)\n\s*-\s*\*\*Reasoning:\*\*([^\n]*)`)

	similarTicketPattern = regexp.MustCompile(
		`(?m)^\s*(\d+)\.\s+\*\*([^*]+)\*\*\s+-\s+([^\n]+)`)

	workflowModePattern = regexp.MustCompile(
		`\*\*Workflow Mode\*\*:\s*([^\n]+)`)
)

const similarTicketsMarker = "**Similar Resolved Tickets:**"

// extractHeuristic scans for numbered markdown recommendation blocks and a
// similar-tickets section. It has no access to a true similarity score, so
// similar tickets default to DefaultSimilarityScore.
func extractHeuristic(raw string) (*types.Result, bool) {
	matches := recommendationPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil, false
	}

	result := types.EmptyResult()
	for _, m := range matches {
		confidence, err := strconv.ParseFloat(strings.TrimSpace(m[4]), 64)
		if err != nil {
			continue
		}
		result.Recommendations = append(result.Recommendations, types.Recommendation{
			Name:       strings.TrimSpace(m[2]),
			Email:      strings.TrimSpace(m[3]),
			Expertise:  splitExpertise(m[5]),
			Confidence: confidence,
			Reasoning:  strings.TrimSpace(m[6]),
		})
	}

	for _, m := range findSimilarTicketMatches(raw) {
		result.SimilarTickets = append(result.SimilarTickets, types.SimilarTicket{
			Subject:         strings.TrimSpace(m[2]),
			Resolution:      strings.TrimSpace(m[3]),
			SimilarityScore: types.DefaultSimilarityScore,
		})
	}

	return result, true
}

func findSimilarTicketMatches(raw string) [][]string {
	idx := strings.Index(raw, similarTicketsMarker)
	if idx < 0 {
		return nil
	}
	section := raw[idx+len(similarTicketsMarker):]
	if end := strings.Index(section, "**Workflow Mode"); end >= 0 {
		section = section[:end]
	}
	return similarTicketPattern.FindAllStringSubmatch(section, -1)
}

func splitExpertise(s string) []string {
	parts := strings.Split(s, ",")
	expertise := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			expertise = append(expertise, trimmed)
		}
	}
	return expertise
}

func extractWorkflowMode(raw string) string {
	if m := workflowModePattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
