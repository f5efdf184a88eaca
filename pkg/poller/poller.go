// Package poller drives the intent detection loop: it periodically asks the
// indexer for open intents and hands unseen ones to the processing pipeline.
package poller

import (
	"context"
	"time"

	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
)

const (
	// DefaultInterval between indexer polls.
	DefaultInterval = 4 * time.Second

	// maxSeen bounds the dedup window. Old ids are evicted in FIFO order;
	// a redelivered intent past the window is re-dispatched, and downstream
	// stages tolerate that.
	maxSeen = 8192
)

// Fetcher retrieves the current set of open intents.
type Fetcher interface {
	FetchOpenIntents(ctx context.Context) ([]models.Intent, error)
}

// Poller repeatedly fetches intents and dispatches each unseen one exactly
// once within the dedup window. Fetch failures abort only the current cycle.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	logger   logger.Logger

	seen  map[string]struct{}
	order []string
}

// New creates a poller. A non-positive interval falls back to the default.
func New(fetcher Fetcher, interval time.Duration, log logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		logger:   log,
		seen:     make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled, delivering each new intent to deliver.
func (p *Poller) Run(ctx context.Context, deliver func(models.Intent)) {
	p.logger.Info("Intent poller started with interval %v", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Intent poller shutting down")
			return
		case <-ticker.C:
			p.cycle(ctx, deliver)
		}
	}
}

// cycle performs one fetch-and-dispatch pass.
func (p *Poller) cycle(ctx context.Context, deliver func(models.Intent)) {
	intents, err := p.fetcher.FetchOpenIntents(ctx)
	if err != nil {
		p.logger.Error("Error fetching intents: %v", err)
		return
	}

	dispatched := 0
	for _, intent := range intents {
		if intent.ID == "" {
			p.logger.Error("Skipping intent with empty id")
			continue
		}
		if p.markSeen(intent.ID) {
			deliver(intent)
			dispatched++
		}
	}

	if dispatched > 0 {
		p.logger.Debug("Dispatched %d new intents (%d fetched)", dispatched, len(intents))
	}
}

// markSeen records an id and reports whether it was new.
func (p *Poller) markSeen(id string) bool {
	if _, ok := p.seen[id]; ok {
		return false
	}

	p.seen[id] = struct{}{}
	p.order = append(p.order, id)
	if len(p.order) > maxSeen {
		evicted := p.order[0]
		p.order = p.order[1:]
		delete(p.seen, evicted)
	}
	return true
}
