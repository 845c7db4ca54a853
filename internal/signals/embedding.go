package signals

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Embedding defaults.
const (
	DefaultSimilarityThreshold = 0.82
	DefaultEmbeddingCacheSize  = 4096
	DefaultEmbeddingDims       = 512
	mediumSimilarity           = 0.92
)

// Embedder maps text to a vector. Vectors from one embedder must share a
// dimension.
type Embedder interface {
	Embed(text string) ([]float64, error)
}

// EmbeddingOptions configures the embedding extractor.
type EmbeddingOptions struct {
	Embedder  Embedder
	CacheSize int
	Threshold float64
}

// EmbeddingExtractor compares the transaction text with every embedding
// reference and emits one signal per category whose best similarity clears
// the threshold. Embeddings are memoized in an LRU cache owned by the
// extractor.
type EmbeddingExtractor struct {
	embedder   Embedder
	cache      *lru.Cache[string, []float64]
	logger     *slog.Logger
	refs       []rules.EmbeddingReference
	categories resolver
	threshold  float64
}

// NewEmbeddingExtractor creates an embedding extractor. A nil embedder
// falls back to a HashingEmbedder.
func NewEmbeddingExtractor(tables *rules.Tables, taxonomy *model.Taxonomy, opts EmbeddingOptions, logger *slog.Logger) (*EmbeddingExtractor, error) {
	if opts.Embedder == nil {
		opts.Embedder = NewHashingEmbedder(DefaultEmbeddingDims)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultEmbeddingCacheSize
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultSimilarityThreshold
	}
	if opts.Threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold %v exceeds 1", common.ErrInvalidConfig, opts.Threshold)
	}

	cache, err := lru.New[string, []float64](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &EmbeddingExtractor{
		embedder:   opts.Embedder,
		cache:      cache,
		logger:     common.LoggerOrDefault(logger),
		refs:       tables.Embeddings(),
		categories: resolver{taxonomy: taxonomy},
		threshold:  opts.Threshold,
	}, nil
}

// Extract implements Extractor.
func (e *EmbeddingExtractor) Extract(tx model.NormalizedTransaction) []model.Signal {
	if len(e.refs) == 0 {
		return nil
	}
	text := rules.NormalizeText(tx.Text())
	if text == "" {
		return nil
	}
	vec, ok := e.embed(text)
	if !ok {
		return nil
	}

	type hit struct {
		ref        rules.EmbeddingReference
		similarity float64
	}
	best := make(map[string]hit)
	var order []string
	for _, ref := range e.refs {
		refVec, ok := e.embed(rules.NormalizeText(ref.Text))
		if !ok {
			continue
		}
		sim := Cosine(vec, refVec)
		if sim < e.threshold {
			continue
		}
		current, seen := best[ref.Category]
		if !seen {
			order = append(order, ref.Category)
		}
		if !seen || sim > current.similarity {
			best[ref.Category] = hit{ref: ref, similarity: sim}
		}
	}

	out := make([]model.Signal, 0, len(order))
	for _, slug := range order {
		h := best[slug]
		category, ok := e.categories.bySlug(slug)
		if !ok {
			continue
		}
		strength := model.StrengthWeak
		if h.similarity >= mediumSimilarity {
			strength = model.StrengthMedium
		}
		out = append(out, model.NewSignal(
			model.SignalEmbedding,
			category.ID,
			category.Name,
			strength,
			h.similarity,
			model.DefaultWeight(model.SignalEmbedding),
			model.SignalMetadata{
				Source:        "embedding",
				Details:       fmt.Sprintf("similar to %q (%.2f)", h.ref.Text, h.similarity),
				RuleVersionID: h.ref.RuleVersionID,
			},
		))
	}
	return out
}

// CacheLen returns the number of cached embeddings.
func (e *EmbeddingExtractor) CacheLen() int {
	return e.cache.Len()
}

func (e *EmbeddingExtractor) embed(text string) ([]float64, bool) {
	if v, ok := e.cache.Get(text); ok {
		return v, true
	}
	v, err := e.embedder.Embed(text)
	if err != nil {
		e.logger.Debug("embedding failed", "error", err)
		return nil, false
	}
	e.cache.Add(text, v)
	return v, true
}

// HashingEmbedder embeds text by hashing character trigrams and whole words
// into a fixed number of buckets. It needs no model files.
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder creates a hashing embedder with the given dimension.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultEmbeddingDims
	}
	return &HashingEmbedder{dims: dims}
}

// Embed implements Embedder. The result is L2-normalized.
func (h *HashingEmbedder) Embed(text string) ([]float64, error) {
	vec := make([]float64, h.dims)
	for _, word := range strings.Fields(text) {
		h.add(vec, "w:"+word, 1)
		padded := " " + word + " "
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			h.add(vec, string(runes[i:i+3]), 1)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (h *HashingEmbedder) add(vec []float64, feature string, w float64) {
	sum := xxhash.Sum64String(feature)
	idx := int(sum % uint64(h.dims))
	// Top bit selects the sign.
	if sum>>63 == 1 {
		w = -w
	}
	vec[idx] += w
}

// Cosine returns the cosine similarity of two vectors, or 0 if their
// dimensions differ or either is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
