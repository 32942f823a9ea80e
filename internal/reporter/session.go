// Package reporter implements the teen-device monitoring session: permission
// acquisition, the location sampling loop, the usage/web simulation loop, and
// foreground-transition detection.
package reporter

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// SessionConfig holds reporter session tuning knobs.
type SessionConfig struct {
	Defaults            domain.ReporterConfig // used when no config record exists yet
	FixTimeout          time.Duration         // bounded wait for one position fix
	SimulationInterval  time.Duration         // usage/web simulation cadence
	SimulationMaxRun    time.Duration         // simulation self-termination bound
	SimulationWebChance float64               // per-tick probability of a web-visit event
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Defaults: domain.ReporterConfig{
			MonitoringEnabled: true,
			IntervalMinutes:   5,
		},
		FixTimeout:          10 * time.Second,
		SimulationInterval:  time.Minute,
		SimulationMaxRun:    30 * time.Minute,
		SimulationWebChance: 0.3,
	}
}

// Session is the reporter lifecycle state machine.
//
// States: uninitialized -> initializing -> { idle, monitoring }. The location
// and simulation loops run only while monitoring; leaving the monitoring
// state stops every ticker the session created. Entering monitoring while
// already monitoring is a no-op (no duplicate loops).
type Session struct {
	config      SessionConfig
	store       domain.ConfigStore
	permissions domain.PermissionService
	locations   domain.LocationProvider
	geocoder    domain.Geocoder
	sink        domain.EventSink
	appStates   domain.AppStateSource
	clock       Clock
	rng         *rand.Rand
	logger      *zap.Logger

	// notice shows a single user-facing message (permission denial).
	notice func(msg string)

	mu           sync.Mutex
	state        domain.SessionState
	cfg          domain.ReporterConfig
	granted      bool
	lastSampleAt time.Time
	stop         chan struct{} // non-nil while monitoring
	loops        sync.WaitGroup
}

// NewSession creates a reporter session. Loops are not started until Start.
func NewSession(
	config SessionConfig,
	store domain.ConfigStore,
	permissions domain.PermissionService,
	locations domain.LocationProvider,
	geocoder domain.Geocoder,
	sink domain.EventSink,
	appStates domain.AppStateSource,
	clock Clock,
	rng *rand.Rand,
	logger *zap.Logger,
) *Session {
	return &Session{
		config:      config,
		store:       store,
		permissions: permissions,
		locations:   locations,
		geocoder:    geocoder,
		sink:        sink,
		appStates:   appStates,
		clock:       clock,
		rng:         rng,
		logger:      logger,
		notice:      func(string) {},
		state:       domain.StateUninitialized,
	}
}

// SetNotice installs the user-facing notice callback.
func (s *Session) SetNotice(fn func(msg string)) {
	if fn != nil {
		s.notice = fn
	}
}

// Start initializes the session: loads (or defaults and persists) the
// configuration record, requests location permission once, and enters
// monitoring or idle accordingly. It also wires the foreground-transition
// detector for the lifetime of ctx.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.StateUninitialized {
		s.mu.Unlock()
		return fmt.Errorf("session already started (state=%s)", s.state)
	}
	s.state = domain.StateInitializing
	s.mu.Unlock()

	cfg := s.loadConfig()

	granted, err := s.permissions.RequestForeground(ctx)
	if err != nil {
		s.logger.Warn("permission request failed", zap.Error(err))
		granted = false
	}

	s.mu.Lock()
	s.cfg = cfg
	s.granted = granted
	s.mu.Unlock()

	if !granted {
		s.notice("Location permission is required for monitoring.")
		s.logger.Info("location permission denied, session idle")
	} else {
		// Background permission is best-effort: the result is logged and
		// never gates monitoring.
		go func() {
			bg, err := s.permissions.RequestBackground(ctx)
			if err != nil {
				s.logger.Warn("background permission request failed", zap.Error(err))
				return
			}
			s.logger.Info("background permission result", zap.Bool("granted", bg))
		}()
	}

	if s.appStates != nil {
		detector := NewForegroundDetector(cfg.TeenID, s.sink, s.clock, s.logger)
		states := s.appStates.Subscribe(ctx)
		go detector.Run(ctx, states)
	}

	s.reevaluate(ctx)

	s.logger.Info("reporter session started",
		zap.String("teen_id", cfg.TeenID),
		zap.String("device_id", cfg.DeviceID),
		zap.Bool("monitoring_enabled", cfg.MonitoringEnabled),
		zap.Int("interval_minutes", cfg.IntervalMinutes),
		zap.String("state", string(s.State())))
	return nil
}

// loadConfig reads the persisted configuration record, creating it from
// defaults when absent. The record is read once; the session never mutates it.
func (s *Session) loadConfig() domain.ReporterConfig {
	cfg, err := s.store.GetConfig()
	if err != nil {
		s.logger.Warn("failed to read reporter config, using defaults", zap.Error(err))
		return s.config.Defaults
	}
	if cfg != nil {
		return *cfg
	}
	defaults := s.config.Defaults
	if err := s.store.SetConfig(defaults); err != nil {
		s.logger.Warn("failed to persist default reporter config", zap.Error(err))
	}
	return defaults
}

// SetPermission records a permission state change (e.g. granted from system
// settings after an earlier denial) and re-evaluates the session state.
func (s *Session) SetPermission(ctx context.Context, granted bool) {
	s.mu.Lock()
	s.granted = granted
	s.mu.Unlock()
	s.reevaluate(ctx)
}

// Reevaluate recomputes idle vs monitoring from the current permission and
// configuration state.
func (s *Session) Reevaluate(ctx context.Context) {
	s.reevaluate(ctx)
}

func (s *Session) reevaluate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.StateUninitialized {
		return
	}

	if s.granted && s.cfg.MonitoringEnabled {
		s.enterMonitoringLocked(ctx)
	} else {
		s.exitMonitoringLocked()
	}
}

// enterMonitoringLocked starts the recurring loops. Idempotent: a second
// call while monitoring starts nothing.
func (s *Session) enterMonitoringLocked(ctx context.Context) {
	if s.stop != nil {
		return
	}
	s.state = domain.StateMonitoring
	s.stop = make(chan struct{})

	interval := s.cfg.Interval()
	if interval > 0 {
		s.loops.Add(1)
		go s.locationLoop(ctx, s.stop, interval)
	} else {
		s.logger.Warn("non-positive sampling interval, location loop not started",
			zap.Int("interval_minutes", s.cfg.IntervalMinutes))
	}

	sim := NewSimulator(s.cfg.TeenID, s.sink, s.clock, s.rng, s.logger,
		s.config.SimulationInterval, s.config.SimulationMaxRun, s.config.SimulationWebChance)
	s.loops.Add(1)
	stop := s.stop
	go func() {
		defer s.loops.Done()
		sim.Run(ctx, stop)
	}()

	s.logger.Info("monitoring started")
}

// exitMonitoringLocked cancels every loop the session created and waits for
// them to drain. In-flight requests already dispatched are not cancelled.
func (s *Session) exitMonitoringLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
		s.mu.Unlock()
		s.loops.Wait()
		s.mu.Lock()
		s.logger.Info("monitoring stopped")
	}
	if s.state != domain.StateUninitialized {
		s.state = domain.StateIdle
	}
}

// Stop tears the session down: all recurring work is cancelled and no
// further sends are issued once Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	s.exitMonitoringLocked()
	s.mu.Unlock()
	s.logger.Info("reporter session stopped")
}

// State returns the current session state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns the configuration record loaded at Start.
func (s *Session) Config() domain.ReporterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// LastSampleAt returns when the location loop last attempted a sample. The
// timestamp reflects the attempt, not the delivery outcome.
func (s *Session) LastSampleAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSampleAt
}

// locationLoop takes one immediate sample, then one per interval tick until
// stopped.
func (s *Session) locationLoop(ctx context.Context, stop <-chan struct{}, interval time.Duration) {
	defer s.loops.Done()

	s.sampleOnce(ctx)

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.sampleOnce(ctx)
		}
	}
}

// sampleOnce acquires one fix, reverse-geocodes it best-effort, and delivers
// the sample. Geocoding failure drops only the address.
func (s *Session) sampleOnce(ctx context.Context) {
	s.mu.Lock()
	s.lastSampleAt = s.clock.Now()
	teenID := s.cfg.TeenID
	s.mu.Unlock()

	fixCtx, cancel := context.WithTimeout(ctx, s.config.FixTimeout)
	defer cancel()

	pos, err := s.locations.CurrentPosition(fixCtx)
	if err != nil {
		s.logger.Warn("failed to acquire position", zap.Error(err))
		return
	}

	sample := domain.LocationSample{
		TeenID:    teenID,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
	}
	if pos.Accuracy > 0 {
		acc := pos.Accuracy
		sample.Accuracy = &acc
	}

	if addr, err := s.geocoder.ReverseGeocode(fixCtx, pos); err != nil {
		s.logger.Warn("reverse geocode failed, sending sample without address", zap.Error(err))
	} else if addr != "" {
		sample.Address = &addr
	}

	s.sink.SendLocation(ctx, sample)
}
