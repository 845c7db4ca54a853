package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"golang.org/x/sync/errgroup"
)

// Applier persists a categorization result.
type Applier interface {
	DecideAndApply(ctx context.Context, orgID, txID string, result model.CategorizationResult, source model.DecisionSource) error
}

// BatchItem is the outcome for one transaction of a batch.
type BatchItem struct {
	Err    error
	Result model.CategorizationResult
	TxID   string
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total       int
	Pass1       int
	LLM         int
	Corrected   int
	NeedsReview int
	Failed      int
}

// Batch categorizes many transactions with bounded concurrency.
type Batch struct {
	orchestrator *Orchestrator
	applier      Applier
	logger       *slog.Logger
	progress     func(done, total int)
	concurrency  int
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithApplier applies each result as soon as it is produced.
func WithApplier(a Applier) BatchOption {
	return func(b *Batch) { b.applier = a }
}

// WithProgress registers a callback invoked after each transaction.
func WithProgress(fn func(done, total int)) BatchOption {
	return func(b *Batch) { b.progress = fn }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(l *slog.Logger) BatchOption {
	return func(b *Batch) { b.logger = l }
}

// NewBatch creates a batch runner using the orchestrator's concurrency.
func NewBatch(o *Orchestrator, opts ...BatchOption) *Batch {
	b := &Batch{
		orchestrator: o,
		concurrency:  o.cfg.Concurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = common.LoggerOrDefault(b.logger)
	return b
}

// Run categorizes txs against snap. Results come back in input order. A
// failing transaction is reported in its item and never stops its siblings.
// The returned error is non-nil only when ctx ends before the batch does.
func (b *Batch) Run(ctx context.Context, snap *Snapshot, txs []model.NormalizedTransaction) ([]BatchItem, error) {
	items := make([]BatchItem, len(txs))

	var (
		mu   sync.Mutex
		done int
	)
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, tx := range txs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			items[i] = b.runOne(ctx, snap, tx)

			if b.progress != nil {
				mu.Lock()
				done++
				n := done
				mu.Unlock()
				b.progress(n, len(txs))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i := range items {
			if items[i].TxID == "" {
				items[i] = BatchItem{TxID: txs[i].ID, Err: err}
			}
		}
		return items, err
	}
	return items, nil
}

func (b *Batch) runOne(ctx context.Context, snap *Snapshot, tx model.NormalizedTransaction) BatchItem {
	item := BatchItem{TxID: tx.ID}

	result, err := b.orchestrator.Categorize(ctx, tx, snap)
	if err != nil {
		item.Err = fmt.Errorf("categorize %s: %w", tx.ID, err)
		return item
	}
	item.Result = result

	if b.applier == nil {
		return item
	}
	if err := b.applier.DecideAndApply(ctx, tx.OrgID, tx.ID, result, model.SourceForEngine(result.Engine)); err != nil {
		b.logger.Warn("failed to apply decision",
			"transaction_id", tx.ID,
			"error", err)
		item.Err = fmt.Errorf("apply %s: %w", tx.ID, err)
	}
	return item
}

// Summarize counts the outcomes in items. Items needing review are those
// below threshold or without a category.
func Summarize(items []BatchItem, threshold float64) BatchSummary {
	s := BatchSummary{Total: len(items)}
	for _, it := range items {
		if it.Err != nil {
			s.Failed++
			continue
		}
		switch it.Result.Engine {
		case model.EnginePass1:
			s.Pass1++
		case model.EngineLLM:
			s.LLM++
		}
		if len(it.Result.Violations) > 0 {
			s.Corrected++
		}
		if !it.Result.HasCategory() || it.Result.Confidence < threshold {
			s.NeedsReview++
		}
	}
	return s
}
