package archive

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// DefaultEmbeddingModel is the Cohere v3 model used when none is configured.
const DefaultEmbeddingModel = "embed-english-v3.0"

// embedTimeout bounds a single embedding request
const embedTimeout = 60 * time.Second

// Embedder abstracts a text->embedding generator.
// Implementations return one embedding vector per input text.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// NewDefaultEmbedder returns an embedder if one is configured via env.
// Returns nil when COHERE_API_KEY is unset; the archiver then degrades to
// exact content-hash matching only.
func NewDefaultEmbedder(preferredModel string) Embedder {
	key := os.Getenv("COHERE_API_KEY")
	if key == "" {
		return nil
	}

	model := preferredModel
	if model == "" || !strings.HasPrefix(model, "embed-") {
		model = DefaultEmbeddingModel
	}
	return NewCohereEmbedder(key, model)
}

// CohereEmbedder implements Embedder using the Cohere Embed API (v2)
// Docs: https://docs.cohere.com/reference/embed
// SDK: github.com/cohere-ai/cohere-go/v2
type CohereEmbedder struct {
	client *cohereclient.Client
	model  string
}

// NewCohereEmbedder creates an embedder backed by the Cohere Embed API.
func NewCohereEmbedder(apiKey, model string) *CohereEmbedder {
	// Custom HTTP client that forces HTTP/1.1 to avoid HTTP/2 protocol errors
	httpClient := &http.Client{
		Timeout: embedTimeout,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &CohereEmbedder{client: client, model: model}
}

func (c *CohereEmbedder) ModelName() string { return c.model }

func (c *CohereEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	// Use the V2.Embed API which has better HTTP/2 handling
	resp, err := c.client.V2.Embed(
		ctx,
		&cohere.V2EmbedRequest{
			Texts:          texts,
			Model:          c.model,
			InputType:      cohere.EmbedInputTypeSearchDocument,
			EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("cohere embed error: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}

	floats := resp.Embeddings.Float
	if len(floats) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(texts), len(floats))
	}

	out := make([][]float32, len(floats))
	for i, vec := range floats {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out, nil
}
