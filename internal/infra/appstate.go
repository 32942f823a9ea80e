package infra

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// ProcessStateSource implements domain.AppStateSource by polling the process
// table with gopsutil. The companion app counts as foreground (active) while
// a process matching its name is running, background otherwise. Only state
// changes are emitted.
type ProcessStateSource struct {
	processName  string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewProcessStateSource creates a source watching the named companion
// process.
func NewProcessStateSource(processName string, pollInterval time.Duration, logger *zap.Logger) *ProcessStateSource {
	return &ProcessStateSource{
		processName:  processName,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Subscribe starts polling and returns the state-change channel. The channel
// is closed when ctx is canceled.
func (s *ProcessStateSource) Subscribe(ctx context.Context) <-chan domain.AppState {
	out := make(chan domain.AppState, 1)

	go func() {
		defer close(out)

		last := domain.AppStateActive
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := s.currentState()
				if state == last {
					continue
				}
				last = state
				select {
				case out <- state:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (s *ProcessStateSource) currentState() domain.AppState {
	running, err := s.isProcessRunning()
	if err != nil {
		s.logger.Debug("process poll failed", zap.Error(err))
		return domain.AppStateInactive
	}
	if running {
		return domain.AppStateActive
	}
	return domain.AppStateBackground
}

func (s *ProcessStateSource) isProcessRunning() (bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.EqualFold(name, s.processName) {
			return true, nil
		}
	}
	return false, nil
}
