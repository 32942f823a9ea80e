// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// SessionState identifies the reporter session lifecycle state.
type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateInitializing  SessionState = "initializing"
	StateIdle          SessionState = "idle"
	StateMonitoring    SessionState = "monitoring"
)

// ReporterConfig is the single persisted configuration record for a
// monitored device. It is read once when the reporter starts and is not
// mutated by the reporter itself.
type ReporterConfig struct {
	TeenID            string `json:"teen_id"`
	DeviceID          string `json:"device_id"`
	MonitoringEnabled bool   `json:"monitoring_enabled"`
	IntervalMinutes   int    `json:"interval_minutes"`
}

// Interval returns the location sampling period.
func (c ReporterConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Position is a single raw location fix from the platform.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters; 0 means unknown
}

// LocationSample is one delivered location reading. Transient: it is built
// per tick and never persisted locally.
type LocationSample struct {
	TeenID    string   `json:"teen_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   *string  `json:"address,omitempty"`
}

// UsageEvent records app usage for one calendar day.
type UsageEvent struct {
	TeenID      string `json:"teen_id"`
	AppName     string `json:"app_name"`
	PackageName string `json:"package_name"`
	UsageTime   int    `json:"usage_time"` // minutes
	Date        string `json:"date"`       // YYYY-MM-DD
}

// WebVisitEvent records a single web page visit.
type WebVisitEvent struct {
	TeenID string `json:"teen_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// AppState is the host application foreground/background state.
type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateInactive   AppState = "inactive"
	AppStateBackground AppState = "background"
)

// Teen is a monitored-subject profile as returned by the backend.
type Teen struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ParentID    string `json:"parent_id,omitempty"`
	DeviceID    string `json:"device_id"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Age         int    `json:"age,omitempty"`
}

// Location is a stored location as returned by the backend.
type Location struct {
	ID        string    `json:"id"`
	TeenID    string    `json:"teen_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Address   *string   `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AppUsage is a stored per-app usage record as returned by the backend.
type AppUsage struct {
	ID          string `json:"id"`
	TeenID      string `json:"teen_id"`
	AppName     string `json:"app_name"`
	PackageName string `json:"package_name"`
	UsageTime   int    `json:"usage_time"`
	Date        string `json:"date"`
}

// WebHistory is a stored web visit as returned by the backend.
type WebHistory struct {
	ID         string    `json:"id"`
	TeenID     string    `json:"teen_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	VisitCount int       `json:"visit_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// Alert is a parent-facing notification as returned by the backend.
type Alert struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"`
	TeenID    string    `json:"teen_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Geofence is a named circular area around which the backend raises alerts.
type Geofence struct {
	ID        string  `json:"id"`
	TeenID    string  `json:"teen_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"` // meters
	Type      string  `json:"type"`   // safe, restricted
}

// DashboardSnapshot is one full aggregated dashboard payload. Each poll
// replaces the previous snapshot wholesale; there is no delta fetching.
type DashboardSnapshot struct {
	Teen             Teen         `json:"teen"`
	ScreenTimeToday  int          `json:"screen_time_today"` // minutes
	AppUsageToday    []AppUsage   `json:"app_usage_today"`
	RecentLocations  []Location   `json:"recent_locations"` // most-recent-first
	RecentWebHistory []WebHistory `json:"recent_web_history"`
	Geofences        []Geofence   `json:"geofences"`
	UnreadAlerts     []Alert      `json:"unread_alerts"`
}

// Parent is the authenticated account as returned by login/register.
type Parent struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
