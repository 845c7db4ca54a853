package engine

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/guardrail"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/signals"
)

// Snapshot is the read-only state a categorization runs against: the
// extractors built from one version of the rule tables, the taxonomy and the
// guardrail validator. A snapshot is shared by every transaction in a batch
// and replaced wholesale when rules change.
type Snapshot struct {
	Extractor signals.Extractor
	Taxonomy  *model.Taxonomy
	Guardrail *guardrail.Validator
}

// NewSnapshot builds the standard extractors and validator for tables.
func NewSnapshot(tables *rules.Tables, taxonomy *model.Taxonomy, guard guardrail.Config, logger *slog.Logger, opts ...signals.Option) (*Snapshot, error) {
	if taxonomy == nil || taxonomy.Len() == 0 {
		return nil, fmt.Errorf("%w: empty taxonomy", common.ErrMissingConfig)
	}
	set, err := signals.NewSet(tables, taxonomy, append([]signals.Option{signals.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build signal extractors: %w", err)
	}
	return &Snapshot{
		Extractor: set,
		Taxonomy:  taxonomy,
		Guardrail: guardrail.NewValidator(guard, taxonomy, logger),
	}, nil
}

func (s *Snapshot) validate() error {
	if s == nil || s.Extractor == nil || s.Taxonomy == nil {
		return fmt.Errorf("%w: incomplete snapshot", common.ErrMissingConfig)
	}
	return nil
}
