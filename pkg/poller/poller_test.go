package poller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
)

type fakeFetcher struct {
	batches [][]models.Intent
	err     error
	calls   int
}

func (f *fakeFetcher) FetchOpenIntents(_ context.Context) ([]models.Intent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	batch := f.batches[f.calls]
	f.calls++
	return batch, nil
}

func intentWithID(id string) models.Intent {
	return models.Intent{ID: id, OriginChainID: 1, DestinationChainID: 42161}
}

func TestCycleDeduplicates(t *testing.T) {
	fetcher := &fakeFetcher{batches: [][]models.Intent{
		{intentWithID("a"), intentWithID("b")},
		{intentWithID("b"), intentWithID("c")},
	}}
	p := New(fetcher, time.Second, &logger.EmptyLogger{})

	var delivered []string
	deliver := func(i models.Intent) { delivered = append(delivered, i.ID) }

	p.cycle(context.Background(), deliver)
	p.cycle(context.Background(), deliver)

	assert.Equal(t, []string{"a", "b", "c"}, delivered)
}

func TestCycleSkipsEmptyID(t *testing.T) {
	fetcher := &fakeFetcher{batches: [][]models.Intent{
		{intentWithID(""), intentWithID("a")},
	}}
	p := New(fetcher, time.Second, &logger.EmptyLogger{})

	var delivered []string
	p.cycle(context.Background(), func(i models.Intent) { delivered = append(delivered, i.ID) })

	assert.Equal(t, []string{"a"}, delivered)
}

func TestCycleFetchErrorDeliversNothing(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("indexer down")}
	p := New(fetcher, time.Second, &logger.EmptyLogger{})

	count := 0
	p.cycle(context.Background(), func(models.Intent) { count++ })

	assert.Zero(t, count)
}

func TestSeenWindowEviction(t *testing.T) {
	p := New(&fakeFetcher{}, time.Second, &logger.EmptyLogger{})

	for i := 0; i < maxSeen+1; i++ {
		assert.True(t, p.markSeen(fmt.Sprintf("intent-%d", i)))
	}

	// The oldest id fell out of the window and counts as new again.
	assert.True(t, p.markSeen("intent-0"))
	// A recent id is still deduplicated.
	assert.False(t, p.markSeen("intent-5000"))
}

func TestRunStopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{batches: [][]models.Intent{{intentWithID("a")}}}
	p := New(fetcher, 5*time.Millisecond, &logger.EmptyLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, func(models.Intent) {})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
	assert.GreaterOrEqual(t, fetcher.calls, 1)
}
