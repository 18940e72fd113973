package embedding

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smefinder/smefinder/internal/queue"
	"github.com/smefinder/smefinder/internal/ticket"
	"github.com/smefinder/smefinder/internal/vector"
	"github.com/smefinder/smefinder/pkg/logging"
)

type fakeTicketReader struct {
	contexts map[string]*ticket.Context
}

func (f *fakeTicketReader) Get(_ context.Context, key string) (*ticket.Context, error) {
	tc, ok := f.contexts[key]
	if !ok {
		return nil, assert.AnError
	}
	return tc, nil
}

type fakeGenerator struct {
	vector []float64
	err    error
	texts  []string
}

func (f *fakeGenerator) Embed(_ context.Context, text string) ([]float64, error) {
	f.texts = append(f.texts, text)
	return f.vector, f.err
}

type fakeUpserter struct {
	upserted []vector.Vector
	err      error
}

func (f *fakeUpserter) Upsert(_ context.Context, vectors []vector.Vector) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, vectors...)
	return nil
}

func TestProcess_EmbedsAndUpserts(t *testing.T) {
	reader := &fakeTicketReader{contexts: map[string]*ticket.Context{
		"key-42": {
			TicketID:    "42",
			Subject:     "Dashboard slow",
			Description: "Loads take over a minute.",
			Tags:        []string{"need_sme", "performance"},
		},
	}}
	gen := &fakeGenerator{vector: []float64{0.1, 0.2, 0.3}}
	index := &fakeUpserter{}

	w := &Worker{
		tickets:   reader,
		generator: gen,
		index:     index,
		logger:    logging.GetLogger().WithComponent("embedding_worker"),
	}

	job := queue.NewEmbeddingJob("42", "key-42")
	require.NoError(t, w.Process(context.Background(), job))

	require.Len(t, index.upserted, 1)
	assert.Equal(t, "ticket-42", index.upserted[0].ID)
	assert.Equal(t, "42", index.upserted[0].Metadata["ticket_id"])
	assert.Equal(t, "need_sme,performance", index.upserted[0].Metadata["tags"])
	require.Len(t, gen.texts, 1)
	assert.Contains(t, gen.texts[0], "Subject: Dashboard slow")
}

func TestProcess_MissingTicketFails(t *testing.T) {
	w := &Worker{
		tickets:   &fakeTicketReader{},
		generator: &fakeGenerator{},
		index:     &fakeUpserter{},
		logger:    logging.GetLogger().WithComponent("embedding_worker"),
	}

	err := w.Process(context.Background(), queue.NewEmbeddingJob("42", "missing"))
	assert.Error(t, err)
}

type fakeBedrockRuntime struct {
	response []byte
	err      error
}

func (f *fakeBedrockRuntime) InvokeModel(_ context.Context, _ *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.response}, nil
}

func TestTitanGenerator_DecodesEmbedding(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{
		"embedding":           []float64{0.5, -0.25},
		"inputTextTokenCount": 12,
	})
	g := &TitanGenerator{
		client:  &fakeBedrockRuntime{response: body},
		modelID: "amazon.titan-embed-text-v2:0",
		logger:  logging.GetLogger().WithComponent("embedding"),
	}

	values, err := g.Embed(context.Background(), "some ticket text")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.25}, values)
}

func TestTitanGenerator_EmptyVectorIsError(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{"embedding": []float64{}})
	g := &TitanGenerator{
		client:  &fakeBedrockRuntime{response: body},
		modelID: "amazon.titan-embed-text-v2:0",
		logger:  logging.GetLogger().WithComponent("embedding"),
	}

	_, err := g.Embed(context.Background(), "text")
	assert.Error(t, err)
}
