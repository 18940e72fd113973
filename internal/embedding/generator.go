package embedding

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/smefinder/smefinder/pkg/config"
	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
)

// Generator turns ticket text into an embedding vector
type Generator interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// brAPI is the subset of the Bedrock runtime client used
type brAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// TitanGenerator embeds text with a Titan text-embedding model
type TitanGenerator struct {
	client  brAPI
	modelID string
	logger  *logging.Logger
}

// NewTitanGenerator creates a generator for the configured model
func NewTitanGenerator(client *bedrockruntime.Client, cfg config.BedrockConfig) *TitanGenerator {
	return &TitanGenerator{
		client:  client,
		modelID: cfg.EmbeddingModelID,
		logger:  logging.GetLogger().WithComponent("embedding"),
	}
}

// Embed invokes the embedding model on the given text
func (g *TitanGenerator) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(struct {
		InputText string `json:"inputText"`
	}{InputText: text})
	if err != nil {
		return nil, errors.NewInternalError("Failed to encode embedding request").WithCause(err)
	}

	output, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.NewExternalError("bedrock", "Embedding model invocation failed").WithCause(err)
	}

	var response struct {
		Embedding           []float64 `json:"embedding"`
		InputTextTokenCount int       `json:"inputTextTokenCount"`
	}
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, errors.NewExternalError("bedrock", "Failed to decode embedding response").WithCause(err)
	}
	if len(response.Embedding) == 0 {
		return nil, errors.NewExternalError("bedrock", "Embedding model returned an empty vector")
	}

	g.logger.WithContext(ctx).Debug("Embedding generated",
		"model_id", g.modelID,
		"dimensions", len(response.Embedding),
		"input_tokens", response.InputTextTokenCount,
	)
	return response.Embedding, nil
}
