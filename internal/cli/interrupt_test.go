package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer provides thread-safe access to a bytes.Buffer.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestNewInterruptHandler(t *testing.T) {
	h := NewInterruptHandler(nil, "")
	require.NotNil(t, h)
	assert.NotNil(t, h.writer)
	assert.False(t, h.WasInterrupted())
}

func TestInterruptPrintsOnce(t *testing.T) {
	out := &syncBuffer{}
	h := NewInterruptHandler(out, "Applied decisions are kept")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Interrupt()
		}()
	}
	wg.Wait()

	assert.True(t, h.WasInterrupted())
	assert.Equal(t, 1, strings.Count(out.String(), "Interrupted"))
	assert.Contains(t, out.String(), "Applied decisions are kept")
}

func TestInterruptWithoutHint(t *testing.T) {
	out := &syncBuffer{}
	h := NewInterruptHandler(out, "")
	h.Interrupt()

	assert.Contains(t, out.String(), "Interrupted")
	assert.NotContains(t, out.String(), InfoIcon)
}

func TestWatchCancelStopsWithoutInterrupt(t *testing.T) {
	out := &syncBuffer{}
	h := NewInterruptHandler(out, "")

	ctx, cancel := h.Watch(context.Background())
	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	default:
	}

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}

	assert.False(t, h.WasInterrupted())
	assert.Empty(t, out.String())
}

func TestWatchFollowsParent(t *testing.T) {
	h := NewInterruptHandler(&syncBuffer{}, "")
	parent, cancelParent := context.WithCancel(context.Background())

	ctx, cancel := h.Watch(parent)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("child context not cancelled with parent")
	}
	assert.False(t, h.WasInterrupted())
}
