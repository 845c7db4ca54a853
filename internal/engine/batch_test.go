package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/llm"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingApplier struct {
	failFor map[string]bool
	applied map[string]model.DecisionSource
	results map[string]model.CategorizationResult
	mu      sync.Mutex
}

func (a *recordingApplier) DecideAndApply(_ context.Context, _, txID string, result model.CategorizationResult, source model.DecisionSource) error {
	if a.failFor[txID] {
		return errors.New("storage unavailable")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.applied == nil {
		a.applied = make(map[string]model.DecisionSource)
		a.results = make(map[string]model.CategorizationResult)
	}
	a.applied[txID] = source
	a.results[txID] = result
	return nil
}

func batchTxs(n int) []model.NormalizedTransaction {
	txs := make([]model.NormalizedTransaction, n)
	for i := range txs {
		txs[i] = tx(string(rune('a'+i)), "ITEM")
	}
	return txs
}

func TestBatchRunPreservesOrderAndIsolatesFailures(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	applier := &recordingApplier{failFor: map[string]bool{"c": true}}

	var progressCalls int32
	b := NewBatch(o, WithApplier(applier), WithProgress(func(done, total int) {
		atomic.AddInt32(&progressCalls, 1)
		assert.LessOrEqual(t, done, total)
	}))

	txs := batchTxs(5)
	items, err := b.Run(context.Background(), snapshotWith(
		signal(model.SignalMCC, "hair-services", model.StrengthExact, 0.9)), txs)
	require.NoError(t, err)
	require.Len(t, items, 5)

	for i, it := range items {
		assert.Equal(t, txs[i].ID, it.TxID)
		assert.Equal(t, rules.CategoryID("hair-services"), it.Result.CategoryID)
	}
	assert.Error(t, items[2].Err)
	assert.Len(t, applier.applied, 4)
	assert.Equal(t, model.DecisionSourcePass1, applier.applied["a"])
	assert.Equal(t, int32(5), atomic.LoadInt32(&progressCalls))

	summary := Summarize(items, 0.85)
	assert.Equal(t, BatchSummary{Total: 5, Pass1: 4, Failed: 1}, summary)
}

func TestBatchRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	p := &pass2Func{fn: func(context.Context, int32) (llm.Suggestion, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return llm.Suggestion{CategoryID: rules.CategoryID("software"), RawConfidence: 0.6}, nil
	}}

	cfg := DefaultConfig()
	cfg.Concurrency = 2
	o, err := New(cfg, p, WithSleep(noSleep))
	require.NoError(t, err)

	items, err := NewBatch(o).Run(context.Background(), snapshotWith(), batchTxs(8))
	require.NoError(t, err)
	require.Len(t, items, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))

	summary := Summarize(items, 0.85)
	assert.Equal(t, 8, summary.LLM)
	assert.Equal(t, 8, summary.NeedsReview)
}

func TestBatchRunCanceled(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := NewBatch(o).Run(ctx, snapshotWith(), batchTxs(3))
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, string(rune('a'+i)), it.TxID)
		assert.Error(t, it.Err)
	}
}

func TestBatchAppliesFailedCategorizations(t *testing.T) {
	tests := []struct {
		name  string
		pass2 Pass2
	}{
		{name: "pass1 only", pass2: nil},
		{
			name: "pass2 exhausted",
			pass2: &pass2Func{fn: func(context.Context, int32) (llm.Suggestion, error) {
				return llm.Suggestion{}, errors.New("upstream timeout")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(t, tt.pass2)
			applier := &recordingApplier{}

			items, err := NewBatch(o, WithApplier(applier)).Run(context.Background(), snapshotWith(), batchTxs(2))
			require.NoError(t, err)
			for _, it := range items {
				assert.NoError(t, it.Err)
				assert.False(t, it.Result.HasCategory())
			}

			require.Len(t, applier.applied, 2)
			for _, id := range []string{"a", "b"} {
				result := applier.results[id]
				assert.False(t, result.HasCategory())
				assert.Zero(t, result.Confidence)
				assert.Contains(t, result.Rationale, RationaleFailed)
			}
			assert.Equal(t, 2, Summarize(items, 0.85).NeedsReview)
		})
	}
}
