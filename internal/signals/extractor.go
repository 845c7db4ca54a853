// Package signals turns a transaction into raw categorization signals by
// matching it against rule tables. Extractors are independent of each other
// and never fail on unmatched input.
package signals

import (
	"log/slog"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

// Extractor produces zero or more signals for a transaction.
type Extractor interface {
	Extract(tx model.NormalizedTransaction) []model.Signal
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(tx model.NormalizedTransaction) []model.Signal

// Extract calls f(tx).
func (f ExtractorFunc) Extract(tx model.NormalizedTransaction) []model.Signal {
	return f(tx)
}

// Set runs a fixed list of extractors in order and concatenates their output.
type Set struct {
	extractors []Extractor
}

// Option configures a Set.
type Option func(*setOptions)

type setOptions struct {
	logger     *slog.Logger
	embeddings *EmbeddingOptions
}

// WithLogger sets the logger used by extractors that report problems.
func WithLogger(l *slog.Logger) Option {
	return func(o *setOptions) { o.logger = l }
}

// WithEmbeddings enables the embedding-similarity extractor.
func WithEmbeddings(opts EmbeddingOptions) Option {
	return func(o *setOptions) { o.embeddings = &opts }
}

// NewSet builds the standard extractors over tables. Rules whose category
// is missing from taxonomy are skipped.
func NewSet(tables *rules.Tables, taxonomy *model.Taxonomy, opts ...Option) (*Set, error) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := common.LoggerOrDefault(o.logger)

	r := resolver{taxonomy: taxonomy}
	extractors := []Extractor{
		&MCCExtractor{tables: tables, categories: r},
		&VendorExtractor{tables: tables, categories: r},
		&KeywordExtractor{tables: tables, categories: r},
		&PatternExtractor{tables: tables, categories: r},
	}

	if o.embeddings != nil {
		emb, err := NewEmbeddingExtractor(tables, taxonomy, *o.embeddings, logger)
		if err != nil {
			return nil, err
		}
		extractors = append(extractors, emb)
	}

	return &Set{extractors: extractors}, nil
}

// NewSetFrom wraps arbitrary extractors.
func NewSetFrom(extractors ...Extractor) *Set {
	return &Set{extractors: extractors}
}

// Extract runs every extractor.
func (s *Set) Extract(tx model.NormalizedTransaction) []model.Signal {
	var out []model.Signal
	for _, e := range s.extractors {
		out = append(out, e.Extract(tx)...)
	}
	return out
}

type resolver struct {
	taxonomy *model.Taxonomy
}

func (r resolver) bySlug(slug string) (model.Category, bool) {
	if r.taxonomy == nil {
		return model.Category{}, false
	}
	return r.taxonomy.BySlug(slug)
}
