package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/fleetwatch/internal/logging"
)

type mockCleaner struct {
	cleanupFunc func(ctx context.Context, window time.Duration) (int64, error)

	mu    sync.Mutex
	calls int
}

func (m *mockCleaner) Cleanup(ctx context.Context, window time.Duration) (int64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.cleanupFunc != nil {
		return m.cleanupFunc(ctx, window)
	}
	return 0, nil
}

func (m *mockCleaner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestJanitor_RunsCleanupOnInterval(t *testing.T) {
	var gotWindow time.Duration
	cleaner := &mockCleaner{
		cleanupFunc: func(_ context.Context, window time.Duration) (int64, error) {
			gotWindow = window
			return 2, nil
		},
	}
	j := NewJanitor(cleaner, 24*time.Hour, 10*time.Millisecond, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return cleaner.callCount() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop on context cancel")
	}

	assert.Equal(t, 24*time.Hour, gotWindow)
}

func TestJanitor_KeepsRunningAfterFailure(t *testing.T) {
	calls := make(chan struct{}, 16)
	cleaner := &mockCleaner{
		cleanupFunc: func(context.Context, time.Duration) (int64, error) {
			calls <- struct{}{}
			return 0, errors.New("database down")
		},
	}
	j := NewJanitor(cleaner, time.Hour, 10*time.Millisecond, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Run(ctx)

	// Failures must not stop the loop.
	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("cleanup run %d never happened", i+1)
		}
	}
}
