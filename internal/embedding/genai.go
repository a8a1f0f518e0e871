package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIBackend embeds text via Google's Gemini embedding API. Grounded
// on the codenerd pack's GenAIEngine (internal/embedding/genai.go):
// same client, same EmbedContent call shape, generalized to a
// configurable output dimensionality instead of a hardcoded one.
type GenAIBackend struct {
	client *genai.Client
	model  string
	dim    int32
}

// NewGenAIBackend creates a GenAI-backed Backend. model defaults to
// "gemini-embedding-001" and dim to 3072 when zero, matching the
// defaults NewGenAIEngine applies.
func NewGenAIBackend(ctx context.Context, apiKey, model string, dim int) (*GenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dim <= 0 {
		dim = 3072
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("embedding: create GenAI client: %w", err)
	}

	return &GenAIBackend{client: client, model: model, dim: int32(dim)}, nil
}

// Embed implements Backend.
func (b *GenAIBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	result, err := b.client.Models.EmbedContent(ctx, b.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &b.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: GenAI embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding: GenAI returned no embeddings")
	}
	return result.Embeddings[0].Values, nil
}
