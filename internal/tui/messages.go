package tui

import (
	"github.com/yahdeeez/teenguard/internal/api"
	"github.com/yahdeeez/teenguard/internal/domain"
)

// loginResultMsg carries the outcome of a login attempt.
type loginResultMsg struct {
	auth *api.AuthResponse
	err  error
}

// teensLoadedMsg carries the monitored-profile list.
type teensLoadedMsg struct {
	teens []domain.Teen
	err   error
}

// alertsAckedMsg carries the outcome of marking the visible alerts read.
type alertsAckedMsg struct {
	err error
}

// snapshotMsg carries one poller event (snapshot or fetch error) pulled off
// the event channel.
type snapshotMsg struct {
	event SnapshotEvent
}

// SnapshotEvent is pushed by the poller callbacks into the TUI.
type SnapshotEvent struct {
	TeenID   string
	Snapshot *domain.DashboardSnapshot
	Err      error
}
