package domain

import "context"

// ConfigStore persists the single reporter configuration record.
// Implementation: SQLCipher-encrypted SQLite database.
type ConfigStore interface {
	// GetConfig returns the stored configuration, or nil if none exists.
	GetConfig() (*ReporterConfig, error)

	// SetConfig writes the configuration record.
	SetConfig(cfg ReporterConfig) error

	// GetSecret retrieves a secret by key (auth token, etc).
	GetSecret(key string) (string, error)

	// SetSecret stores a secret.
	SetSecret(key, value string) error

	// Close releases the underlying database connection.
	Close() error
}

// PermissionService requests location capability from the host platform.
type PermissionService interface {
	// RequestForeground asks for foreground location access.
	RequestForeground(ctx context.Context) (granted bool, err error)

	// RequestBackground asks for background location access. Best-effort:
	// its result is logged but never gates monitoring.
	RequestBackground(ctx context.Context) (granted bool, err error)
}

// LocationProvider acquires position fixes from the host platform.
type LocationProvider interface {
	// CurrentPosition returns one fix at balanced accuracy. The context
	// bounds the wait.
	CurrentPosition(ctx context.Context) (Position, error)
}

// Geocoder resolves a position to a human-readable address.
type Geocoder interface {
	// ReverseGeocode returns an address for the fix. Failure is non-fatal
	// to callers: samples are delivered without an address.
	ReverseGeocode(ctx context.Context, pos Position) (string, error)
}

// EventSink delivers reporter events to the backend. All three sends are
// best-effort and lossy: errors are logged by the implementation and never
// returned to the caller. There is no retry, backoff, or queuing.
type EventSink interface {
	SendLocation(ctx context.Context, sample LocationSample)
	SendAppUsage(ctx context.Context, event UsageEvent)
	SendWebVisit(ctx context.Context, event WebVisitEvent)
}

// AppStateSource emits host application foreground/background transitions.
type AppStateSource interface {
	// Subscribe returns a channel of state changes. The channel is closed
	// when ctx is canceled.
	Subscribe(ctx context.Context) <-chan AppState
}

// DashboardAPI is the authenticated read surface consumed by the parent
// dashboard client.
type DashboardAPI interface {
	Teens(ctx context.Context) ([]Teen, error)
	Dashboard(ctx context.Context, teenID string) (*DashboardSnapshot, error)
}
