package reporter

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// fakeClock implements Clock with manually fired tickers for testing
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1), interval: d}
	c.tickers = append(c.tickers, t)
	return t
}

// Tick fires every live ticker once.
func (c *fakeClock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tickers {
		t.fire(c.now)
	}
}

func (c *fakeClock) liveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

func (c *fakeClock) totalTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type fakeTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	done     bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}

func (t *fakeTicker) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *fakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
}

// mockConfigStore implements domain.ConfigStore for testing
type mockConfigStore struct {
	mu     sync.Mutex
	cfg    *domain.ReporterConfig
	getErr error
	saved  []domain.ReporterConfig
}

func (m *mockConfigStore) GetConfig() (*domain.ReporterConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.cfg, nil
}

func (m *mockConfigStore) SetConfig(cfg domain.ReporterConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, cfg)
	m.cfg = &cfg
	return nil
}

func (m *mockConfigStore) GetSecret(key string) (string, error) {
	return "", errors.New("secret not found: " + key)
}

func (m *mockConfigStore) SetSecret(key, value string) error { return nil }
func (m *mockConfigStore) Close() error                      { return nil }

func (m *mockConfigStore) savedConfigs() []domain.ReporterConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ReporterConfig(nil), m.saved...)
}

// mockPermissions implements domain.PermissionService for testing
type mockPermissions struct {
	mu              sync.Mutex
	foreground      bool
	foregroundErr   error
	background      bool
	foregroundCalls int
	backgroundCalls int
}

func (m *mockPermissions) RequestForeground(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foregroundCalls++
	return m.foreground, m.foregroundErr
}

func (m *mockPermissions) RequestBackground(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backgroundCalls++
	return m.background, nil
}

// mockLocations implements domain.LocationProvider for testing
type mockLocations struct {
	mu   sync.Mutex
	pos  domain.Position
	err  error
	hits int
}

func (m *mockLocations) CurrentPosition(ctx context.Context) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
	if m.err != nil {
		return domain.Position{}, m.err
	}
	return m.pos, nil
}

// mockGeocoder implements domain.Geocoder for testing
type mockGeocoder struct {
	address string
	err     error
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, pos domain.Position) (string, error) {
	return m.address, m.err
}

// mockSink implements domain.EventSink for testing. Every send signals on
// the notify channel so tests can wait without sleeping.
type mockSink struct {
	mu        sync.Mutex
	locations []domain.LocationSample
	usages    []domain.UsageEvent
	visits    []domain.WebVisitEvent
	notify    chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{notify: make(chan struct{}, 64)}
}

func (m *mockSink) SendLocation(ctx context.Context, sample domain.LocationSample) {
	m.mu.Lock()
	m.locations = append(m.locations, sample)
	m.mu.Unlock()
	m.notify <- struct{}{}
}

func (m *mockSink) SendAppUsage(ctx context.Context, event domain.UsageEvent) {
	m.mu.Lock()
	m.usages = append(m.usages, event)
	m.mu.Unlock()
	m.notify <- struct{}{}
}

func (m *mockSink) SendWebVisit(ctx context.Context, event domain.WebVisitEvent) {
	m.mu.Lock()
	m.visits = append(m.visits, event)
	m.mu.Unlock()
	m.notify <- struct{}{}
}

func (m *mockSink) sentLocations() []domain.LocationSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LocationSample(nil), m.locations...)
}

func (m *mockSink) sentUsages() []domain.UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UsageEvent(nil), m.usages...)
}

func (m *mockSink) sentVisits() []domain.WebVisitEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.WebVisitEvent(nil), m.visits...)
}

func (m *mockSink) waitSend(t *testing.T) {
	t.Helper()
	select {
	case <-m.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sink send")
	}
}

type sessionFixture struct {
	clock       *fakeClock
	store       *mockConfigStore
	permissions *mockPermissions
	locations   *mockLocations
	geocoder    *mockGeocoder
	sink        *mockSink
	session     *Session
}

func newSessionFixture(t *testing.T, mutate func(*sessionFixture)) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		clock: newFakeClock(),
		store: &mockConfigStore{cfg: &domain.ReporterConfig{
			TeenID:            "teen-1",
			DeviceID:          "device-1",
			MonitoringEnabled: true,
			IntervalMinutes:   5,
		}},
		permissions: &mockPermissions{foreground: true},
		locations:   &mockLocations{pos: domain.Position{Latitude: 51.5, Longitude: -0.12, Accuracy: 25}},
		geocoder:    &mockGeocoder{address: "221B Baker Street, London"},
		sink:        newMockSink(),
	}
	if mutate != nil {
		mutate(f)
	}

	cfg := DefaultSessionConfig()
	f.session = NewSession(cfg, f.store, f.permissions, f.locations, f.geocoder,
		f.sink, nil, f.clock, rand.New(rand.NewSource(1)), zap.NewNop())
	return f
}

func TestSessionStartEntersMonitoring(t *testing.T) {
	f := newSessionFixture(t, nil)

	require.NoError(t, f.session.Start(context.Background()))
	assert.Equal(t, domain.StateMonitoring, f.session.State())

	// First sample is immediate, before any tick.
	f.sink.waitSend(t)
	locations := f.sink.sentLocations()
	require.Len(t, locations, 1)
	assert.Equal(t, "teen-1", locations[0].TeenID)
	assert.Equal(t, 51.5, locations[0].Latitude)
	require.NotNil(t, locations[0].Accuracy)
	assert.Equal(t, 25.0, *locations[0].Accuracy)
	require.NotNil(t, locations[0].Address)
	assert.Equal(t, "221B Baker Street, London", *locations[0].Address)

	f.session.Stop()
}

func TestSessionStartTwiceFails(t *testing.T) {
	f := newSessionFixture(t, nil)

	require.NoError(t, f.session.Start(context.Background()))
	defer f.session.Stop()

	err := f.session.Start(context.Background())
	require.Error(t, err)
}

func TestSessionPermissionDenied(t *testing.T) {
	var notices []string
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.permissions.foreground = false
	})
	f.session.SetNotice(func(msg string) { notices = append(notices, msg) })

	require.NoError(t, f.session.Start(context.Background()))

	assert.Equal(t, domain.StateIdle, f.session.State())
	require.Len(t, notices, 1)
	assert.Equal(t, "Location permission is required for monitoring.", notices[0])
	assert.Empty(t, f.sink.sentLocations())
	assert.Zero(t, f.clock.totalTickers())
}

func TestSessionPermissionErrorTreatedAsDenial(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.permissions.foregroundErr = errors.New("authorization service unavailable")
	})

	require.NoError(t, f.session.Start(context.Background()))
	assert.Equal(t, domain.StateIdle, f.session.State())
}

func TestSessionDeniedThenGranted(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.permissions.foreground = false
	})

	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))
	require.Equal(t, domain.StateIdle, f.session.State())

	f.session.SetPermission(ctx, true)
	assert.Equal(t, domain.StateMonitoring, f.session.State())
	f.sink.waitSend(t)

	f.session.Stop()
	assert.Equal(t, domain.StateIdle, f.session.State())
}

func TestSessionMonitoringDisabledStaysIdle(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.store.cfg.MonitoringEnabled = false
	})

	require.NoError(t, f.session.Start(context.Background()))
	assert.Equal(t, domain.StateIdle, f.session.State())
	assert.Empty(t, f.sink.sentLocations())
}

func TestSessionDefaultsPersistedWhenNoConfig(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.store.cfg = nil
	})

	require.NoError(t, f.session.Start(context.Background()))
	defer f.session.Stop()

	saved := f.store.savedConfigs()
	require.Len(t, saved, 1)
	assert.True(t, saved[0].MonitoringEnabled)
	assert.Equal(t, 5, saved[0].IntervalMinutes)
}

func TestSessionSamplesOnEachTick(t *testing.T) {
	f := newSessionFixture(t, nil)

	require.NoError(t, f.session.Start(context.Background()))
	defer f.session.Stop()
	f.sink.waitSend(t)
	require.Eventually(t, func() bool { return f.clock.totalTickers() == 2 },
		time.Second, 5*time.Millisecond)

	f.clock.Advance(5 * time.Minute)
	f.clock.Tick()

	require.Eventually(t, func() bool { return len(f.sink.sentLocations()) == 2 },
		time.Second, 5*time.Millisecond)
}

func TestSessionNonPositiveIntervalSkipsLocationLoop(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.store.cfg.IntervalMinutes = 0
	})

	require.NoError(t, f.session.Start(context.Background()))
	defer f.session.Stop()

	// Monitoring is still entered (the simulator runs), but no location is
	// ever sampled.
	assert.Equal(t, domain.StateMonitoring, f.session.State())
	require.Eventually(t, func() bool { return f.clock.totalTickers() == 1 },
		time.Second, 5*time.Millisecond, "only the simulator ticker should exist")
	assert.Empty(t, f.sink.sentLocations())
	assert.True(t, f.session.LastSampleAt().IsZero())
}

func TestSessionStopCancelsAllTimers(t *testing.T) {
	f := newSessionFixture(t, nil)

	require.NoError(t, f.session.Start(context.Background()))
	f.sink.waitSend(t)
	require.Eventually(t, func() bool { return f.clock.totalTickers() == 2 },
		time.Second, 5*time.Millisecond)

	f.session.Stop()

	assert.Equal(t, domain.StateIdle, f.session.State())
	assert.Zero(t, f.clock.liveTickers())

	// Firing every ticker after Stop must not produce more sends.
	before := len(f.sink.sentLocations()) + len(f.sink.sentUsages())
	f.clock.Advance(time.Hour)
	f.clock.Tick()
	time.Sleep(50 * time.Millisecond)
	after := len(f.sink.sentLocations()) + len(f.sink.sentUsages())
	assert.Equal(t, before, after)
}

func TestSessionReenterMonitoringIsNoOp(t *testing.T) {
	f := newSessionFixture(t, nil)

	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))
	defer f.session.Stop()
	f.sink.waitSend(t)
	require.Eventually(t, func() bool { return f.clock.totalTickers() == 2 },
		time.Second, 5*time.Millisecond)

	f.session.Reevaluate(ctx)
	f.session.SetPermission(ctx, true)

	// No duplicate loops were started.
	assert.Equal(t, 2, f.clock.totalTickers())
	assert.Equal(t, domain.StateMonitoring, f.session.State())
}

func TestSessionGeocodeFailureDropsOnlyAddress(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.geocoder.err = errors.New("geocoder unreachable")
	})

	require.NoError(t, f.session.Start(context.Background()))
	defer f.session.Stop()
	f.sink.waitSend(t)

	locations := f.sink.sentLocations()
	require.Len(t, locations, 1)
	assert.Nil(t, locations[0].Address)
	assert.Equal(t, 51.5, locations[0].Latitude)
}

func TestSessionPositionFailureStillRecordsAttempt(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.locations.err = errors.New("no fix available")
	})

	require.NoError(t, f.session.Start(context.Background()))
	defer f.session.Stop()

	// The attempt timestamp advances even though nothing was delivered.
	require.Eventually(t, func() bool { return !f.session.LastSampleAt().IsZero() },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, f.clock.Now(), f.session.LastSampleAt())
	assert.Empty(t, f.sink.sentLocations())
}

func TestSessionZeroAccuracyOmitted(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.locations.pos = domain.Position{Latitude: 1, Longitude: 2, Accuracy: 0}
	})

	require.NoError(t, f.session.Start(context.Background()))
	defer f.session.Stop()
	f.sink.waitSend(t)

	locations := f.sink.sentLocations()
	require.Len(t, locations, 1)
	assert.Nil(t, locations[0].Accuracy)
}

func TestSessionBackgroundPermissionNeverGatesMonitoring(t *testing.T) {
	f := newSessionFixture(t, func(f *sessionFixture) {
		f.permissions.background = false
	})

	require.NoError(t, f.session.Start(context.Background()))
	defer f.session.Stop()

	assert.Equal(t, domain.StateMonitoring, f.session.State())
}
