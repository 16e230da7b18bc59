package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Embedder turns text into a dense vector. Implementations must return
// unit-norm vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
	Name() string
}

// HashEmbedder is the built-in deterministic embedder. It feature-hashes
// unigrams and bigrams into a fixed-width vector with alternating signs and
// normalises to unit length. It needs no network or model weights, which
// keeps table ranking usable when no embedding provider is configured.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a feature-hashing embedder of the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Name() string   { return "hash" }
func (e *HashEmbedder) Dimension() int { return e.dim }

// Embed produces a unit-norm vector. Never errors.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dim)
	tokens := tokenize(text)

	add := func(feature string, weight float64) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dim))
		sign := 1.0
		if (sum>>32)&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign * weight
	}

	for i, tok := range tokens {
		add(tok, 1.0)
		if i > 0 {
			add(tokens[i-1]+"_"+tok, 0.5)
		}
	}

	norm := floats.Norm(vec, 2)
	if norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// HTTPEmbedder calls an external text -> vector endpoint.
type HTTPEmbedder struct {
	endpoint string
	apiKey   string
	dim      int
	client   *http.Client
}

// NewHTTPEmbedder creates an embedder backed by an HTTP embedding API.
func NewHTTPEmbedder(endpoint, apiKey string, dim int) *HTTPEmbedder {
	return &HTTPEmbedder{
		endpoint: endpoint,
		apiKey:   apiKey,
		dim:      dim,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *HTTPEmbedder) Name() string   { return "http" }
func (e *HTTPEmbedder) Dimension() int { return e.dim }

// Embed posts the text and normalises the returned vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned an empty vector")
	}

	vec := parsed.Embedding
	norm := floats.Norm(vec, 2)
	if norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}
