package reporter

import (
	"context"

	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// Fixed event emitted when the host app returns to the foreground.
const (
	foregroundAppName     = "TeenGuard"
	foregroundPackageName = "com.teenguard.app"
	foregroundUsageTime   = 1 // minutes
)

// ForegroundDetector is a pure edge-triggered detector: the transition
// background|inactive -> active emits exactly one synthetic usage event for
// the monitoring app itself. It is not a duration timer; all other
// transitions are ignored.
type ForegroundDetector struct {
	teenID string
	sink   domain.EventSink
	clock  Clock
	logger *zap.Logger
	last   domain.AppState
}

// NewForegroundDetector creates a detector. The initial state is active, so
// an "active" report with no preceding background state emits nothing.
func NewForegroundDetector(teenID string, sink domain.EventSink, clock Clock, logger *zap.Logger) *ForegroundDetector {
	return &ForegroundDetector{
		teenID: teenID,
		sink:   sink,
		clock:  clock,
		logger: logger,
		last:   domain.AppStateActive,
	}
}

// Observe feeds one state change and reports whether it emitted an event.
func (d *ForegroundDetector) Observe(ctx context.Context, state domain.AppState) bool {
	prev := d.last
	d.last = state

	if state != domain.AppStateActive || prev == domain.AppStateActive {
		return false
	}

	d.logger.Debug("app returned to foreground", zap.String("from", string(prev)))
	d.sink.SendAppUsage(ctx, domain.UsageEvent{
		TeenID:      d.teenID,
		AppName:     foregroundAppName,
		PackageName: foregroundPackageName,
		UsageTime:   foregroundUsageTime,
		Date:        d.clock.Now().Format("2006-01-02"),
	})
	return true
}

// Run consumes state changes until the channel closes or ctx is canceled.
func (d *ForegroundDetector) Run(ctx context.Context, states <-chan domain.AppState) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			d.Observe(ctx, state)
		}
	}
}
