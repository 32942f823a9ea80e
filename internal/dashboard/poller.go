// Package dashboard implements the parent-side snapshot polling logic.
package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/domain"
	"github.com/yahdeeez/teenguard/internal/reporter"
)

// DefaultPollInterval is the snapshot refresh period. It is independent of
// the reporter's sampling interval.
const DefaultPollInterval = 30 * time.Second

// Poller refreshes the dashboard snapshot for the currently selected teen.
// Each tick is a full snapshot replace; there is no delta fetching.
type Poller struct {
	api      domain.DashboardAPI
	clock    reporter.Clock
	interval time.Duration
	logger   *zap.Logger

	// OnSnapshot receives every successfully fetched snapshot.
	OnSnapshot func(teenID string, snap *domain.DashboardSnapshot)
	// OnError receives fetch failures. The previous snapshot stays valid.
	OnError func(teenID string, err error)

	mu     sync.Mutex
	teenID string
	stop   chan struct{}
	loop   sync.WaitGroup
}

// NewPoller creates a dashboard poller.
func NewPoller(api domain.DashboardAPI, clock reporter.Clock, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		api:      api,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Select switches polling to the given teen: the previous teen's timer is
// cancelled, one snapshot is fetched immediately, and the recurring refresh
// starts against the new teen.
func (p *Poller) Select(ctx context.Context, teenID string) {
	p.Stop()

	p.mu.Lock()
	p.teenID = teenID
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	p.loop.Add(1)
	go p.run(ctx, teenID, stop)
}

// Stop cancels the current polling timer, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.mu.Unlock()
	p.loop.Wait()
}

// Selected returns the currently selected teen id, empty when stopped.
func (p *Poller) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return ""
	}
	return p.teenID
}

func (p *Poller) run(ctx context.Context, teenID string, stop <-chan struct{}) {
	defer p.loop.Done()

	p.fetch(ctx, teenID)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.fetch(ctx, teenID)
		}
	}
}

func (p *Poller) fetch(ctx context.Context, teenID string) {
	snap, err := p.api.Dashboard(ctx, teenID)
	if err != nil {
		p.logger.Warn("dashboard fetch failed", zap.String("teen_id", teenID), zap.Error(err))
		if p.OnError != nil {
			p.OnError(teenID, err)
		}
		return
	}
	if p.OnSnapshot != nil {
		p.OnSnapshot(teenID, snap)
	}
}
