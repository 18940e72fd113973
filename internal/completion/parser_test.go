package completion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smefinder/smefinder/pkg/types"
)

func TestParse_StructuredJSON(t *testing.T) {
	raw := `Here is my analysis.
{"recommended_fdes":[{"name":"Ann","email":"a@x.com","confidence":0.9,"expertise":["SQL"],"reasoning":"deep query tuning background"}],"similar_tickets":[{"ticket_id":"831","subject":"Slow dashboard","resolution":"Added covering index","similarity_score":0.92}],"slack_conversation_url":"https://slack.example.com/C1","zendesk_url":"https://acme.zendesk.com/tickets/42"}
Let me know if you need anything else.`

	var tier string
	p := NewParser(WithTierObserver(func(t string) { tier = t }))
	result := p.Parse(raw)

	assert.Equal(t, TierStructured, tier)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "Ann", result.Recommendations[0].Name)
	assert.Equal(t, "a@x.com", result.Recommendations[0].Email)
	assert.InDelta(t, 0.9, result.Recommendations[0].Confidence, 1e-9)
	assert.Equal(t, []string{"SQL"}, result.Recommendations[0].Expertise)
	require.Len(t, result.SimilarTickets, 1)
	assert.Equal(t, "831", result.SimilarTickets[0].TicketID)
	assert.InDelta(t, 0.92, result.SimilarTickets[0].SimilarityScore, 1e-9)
	assert.Equal(t, "https://slack.example.com/C1", result.ConversationURL)
	assert.Equal(t, "https://acme.zendesk.com/tickets/42", result.SourceTicketURL)
}

func TestParse_MarkdownFallback(t *testing.T) {
	raw := `Based on the ticket I recommend:

**1. Ann (a@x.com) - Confidence: 0.9**
- **Expertise:** SQL, Tuning
- **Reasoning:** strong match

**2. Bob (b@x.com) - Confidence: 0.7**
- **Expertise:** Postgres
- **Reasoning:** solid generalist

**Similar Resolved Tickets:**
1. **Slow dashboard** - Added a covering index
2. **Query timeout** - Increased statement timeout

**Workflow Mode**: description-only
`

	var tier string
	p := NewParser(WithTierObserver(func(t string) { tier = t }))
	result := p.Parse(raw)

	assert.Equal(t, TierHeuristic, tier)
	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, "Ann", result.Recommendations[0].Name)
	assert.Equal(t, []string{"SQL", "Tuning"}, result.Recommendations[0].Expertise)
	assert.Equal(t, "strong match", result.Recommendations[0].Reasoning)
	assert.Equal(t, "Bob", result.Recommendations[1].Name)

	require.Len(t, result.SimilarTickets, 2)
	assert.Equal(t, "Slow dashboard", result.SimilarTickets[0].Subject)
	assert.Equal(t, "Added a covering index", result.SimilarTickets[0].Resolution)
	assert.InDelta(t, types.DefaultSimilarityScore, result.SimilarTickets[0].SimilarityScore, 1e-9)

	assert.Equal(t, "description-only", result.WorkflowMode)
}

func TestParse_StructuredKeepsSimilarTicketsWithoutRecommendations(t *testing.T) {
	raw := `{"recommended_fdes":[],"similar_tickets":[{"ticket_id":"831","subject":"Slow dashboard","resolution":"Added covering index","similarity_score":0.92}],"zendesk_url":"https://acme.zendesk.com/tickets/42"}`

	var tier string
	p := NewParser(WithTierObserver(func(t string) { tier = t }))
	result := p.Parse(raw)

	assert.Equal(t, TierStructured, tier)
	assert.Empty(t, result.Recommendations)
	require.Len(t, result.SimilarTickets, 1)
	assert.Equal(t, "831", result.SimilarTickets[0].TicketID)
	assert.Equal(t, "https://acme.zendesk.com/tickets/42", result.SourceTicketURL)
}

func TestParse_GarbageYieldsEmptyResult(t *testing.T) {
	var tier string
	p := NewParser(WithTierObserver(func(t string) { tier = t }))
	result := p.Parse("I could not find anyone suitable for this request.")

	assert.Equal(t, TierEmpty, tier)
	assert.True(t, result.IsEmpty())
	assert.NotNil(t, result.Recommendations)
	assert.NotNil(t, result.SimilarTickets)
}

func TestParse_EmptyInput(t *testing.T) {
	result := NewParser().Parse("")
	assert.True(t, result.IsEmpty())
}

func TestParse_TruncatesToMaxRecommendations(t *testing.T) {
	raw := `{"recommended_fdes":[` +
		`{"name":"A","email":"a@x.com","confidence":0.5},` +
		`{"name":"B","email":"b@x.com","confidence":0.9},` +
		`{"name":"C","email":"c@x.com","confidence":0.7},` +
		`{"name":"D","email":"d@x.com","confidence":0.8},` +
		`{"name":"E","email":"e@x.com","confidence":0.6}]}`

	result := NewParser().Parse(raw)

	require.Len(t, result.Recommendations, types.MaxRecommendations)
	assert.Equal(t, "B", result.Recommendations[0].Name)
	assert.Equal(t, "D", result.Recommendations[1].Name)
	assert.Equal(t, "C", result.Recommendations[2].Name)
}

func TestParse_ClampsConfidence(t *testing.T) {
	raw := `{"recommended_fdes":[` +
		`{"name":"Hot","email":"h@x.com","confidence":1.7},` +
		`{"name":"Cold","email":"c@x.com","confidence":-0.2}]}`

	result := NewParser().Parse(raw)

	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, 1.0, result.Recommendations[0].Confidence)
	assert.Equal(t, 0.0, result.Recommendations[1].Confidence)
}

func TestParse_StableOrderOnTies(t *testing.T) {
	raw := `{"recommended_fdes":[` +
		`{"name":"First","email":"f@x.com","confidence":0.8},` +
		`{"name":"Second","email":"s@x.com","confidence":0.8},` +
		`{"name":"Third","email":"t@x.com","confidence":0.8}]}`

	result := NewParser().Parse(raw)

	require.Len(t, result.Recommendations, 3)
	assert.Equal(t, "First", result.Recommendations[0].Name)
	assert.Equal(t, "Second", result.Recommendations[1].Name)
	assert.Equal(t, "Third", result.Recommendations[2].Name)
}

func TestParse_MalformedJSONFallsThroughToMarkdown(t *testing.T) {
	raw := `{"recommended_fdes": [ broken

**1. Ann (a@x.com) - Confidence: 0.9**
- **Expertise:** SQL
- **Reasoning:** strong match
`

	var tier string
	p := NewParser(WithTierObserver(func(t string) { tier = t }))
	result := p.Parse(raw)

	assert.Equal(t, TierHeuristic, tier)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "Ann", result.Recommendations[0].Name)
}

func TestParse_SimilarTicketsTruncatedAndResolutionsCapped(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'r'
	}
	raw := fmt.Sprintf(`{"recommended_fdes":[{"name":"Ann","email":"a@x.com","confidence":0.9}],"similar_tickets":[`+
		`{"subject":"t1","resolution":%q},`+
		`{"subject":"t2","resolution":"ok"},`+
		`{"subject":"t3","resolution":"ok"},`+
		`{"subject":"t4","resolution":"ok"},`+
		`{"subject":"t5","resolution":"ok"},`+
		`{"subject":"t6","resolution":"ok"}]}`, string(long))

	result := NewParser().Parse(raw)

	require.Len(t, result.SimilarTickets, types.MaxSimilarTickets)
	assert.Len(t, result.SimilarTickets[0].Resolution, types.MaxResolutionLength)
}

func TestAccumulator_ReassemblesAcrossChunkBoundaries(t *testing.T) {
	full := `{"recommended_fdes":[{"name":"Ann","email":"a@x.com","confidence":0.9}]}`

	var acc Accumulator
	for i := 0; i < len(full); i += 7 {
		end := i + 7
		if end > len(full) {
			end = len(full)
		}
		acc.Append([]byte(full[i:end]))
	}

	result := NewParser().Parse(acc.String())
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "Ann", result.Recommendations[0].Name)
	assert.Greater(t, acc.Chunks(), 1)
}
