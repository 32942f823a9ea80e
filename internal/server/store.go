// Package server is a compact development backend implementing the REST
// surface the reporter and dashboard consume, so both can be exercised
// end-to-end without external services.
package server

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// Store persists backend state in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the backend database. Use ":memory:" for
// tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS parents (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teens (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL REFERENCES parents(id),
		name TEXT NOT NULL,
		device_id TEXT NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		teen_id TEXT NOT NULL REFERENCES teens(id),
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		accuracy REAL,
		address TEXT,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS geofences (
		id TEXT PRIMARY KEY,
		teen_id TEXT NOT NULL REFERENCES teens(id),
		name TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		radius REAL NOT NULL,
		type TEXT NOT NULL DEFAULT 'safe',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS app_usage (
		id TEXT PRIMARY KEY,
		teen_id TEXT NOT NULL REFERENCES teens(id),
		app_name TEXT NOT NULL,
		package_name TEXT NOT NULL,
		usage_time INTEGER NOT NULL,
		date TEXT NOT NULL,
		last_used TIMESTAMP NOT NULL,
		UNIQUE (teen_id, package_name, date)
	);

	CREATE TABLE IF NOT EXISTS web_history (
		id TEXT PRIMARY KEY,
		teen_id TEXT NOT NULL REFERENCES teens(id),
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		visit_count INTEGER NOT NULL DEFAULT 1,
		timestamp TIMESTAMP NOT NULL,
		UNIQUE (teen_id, url)
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL REFERENCES parents(id),
		teen_id TEXT NOT NULL REFERENCES teens(id),
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- parents ---

type parentRecord struct {
	domain.Parent
	PasswordHash string
}

// CreateParent inserts a parent account.
func (s *Store) CreateParent(email, passwordHash, name string) (domain.Parent, error) {
	parent := domain.Parent{ID: uuid.NewString(), Email: email, Name: name}
	_, err := s.db.Exec(`
		INSERT INTO parents (id, email, password_hash, name, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		parent.ID, email, passwordHash, name, time.Now().UTC())
	if err != nil {
		return domain.Parent{}, fmt.Errorf("failed to insert parent: %w", err)
	}
	return parent, nil
}

// ParentByEmail returns the parent record for an email, or nil.
func (s *Store) ParentByEmail(email string) (*parentRecord, error) {
	var rec parentRecord
	err := s.db.QueryRow(`
		SELECT id, email, password_hash, name FROM parents WHERE email = ?`,
		email).Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &rec.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read parent: %w", err)
	}
	return &rec, nil
}

// --- teens ---

// CreateTeen inserts a monitored-subject profile.
func (s *Store) CreateTeen(parentID, name, deviceID, phone string, age int) (domain.Teen, error) {
	teen := domain.Teen{
		ID:          uuid.NewString(),
		ParentID:    parentID,
		Name:        name,
		DeviceID:    deviceID,
		PhoneNumber: phone,
		Age:         age,
	}
	_, err := s.db.Exec(`
		INSERT INTO teens (id, parent_id, name, device_id, phone_number, age, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		teen.ID, parentID, name, deviceID, phone, age, time.Now().UTC())
	if err != nil {
		return domain.Teen{}, fmt.Errorf("failed to insert teen: %w", err)
	}
	return teen, nil
}

// TeensByParent lists a parent's teens.
func (s *Store) TeensByParent(parentID string) ([]domain.Teen, error) {
	rows, err := s.db.Query(`
		SELECT id, parent_id, name, device_id, phone_number, age
		FROM teens WHERE parent_id = ? ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teens: %w", err)
	}
	defer rows.Close()

	teens := make([]domain.Teen, 0)
	for rows.Next() {
		var t domain.Teen
		if err := rows.Scan(&t.ID, &t.ParentID, &t.Name, &t.DeviceID, &t.PhoneNumber, &t.Age); err != nil {
			return nil, fmt.Errorf("failed to scan teen: %w", err)
		}
		teens = append(teens, t)
	}
	return teens, rows.Err()
}

// TeenByID returns a teen, or nil if unknown.
func (s *Store) TeenByID(id string) (*domain.Teen, error) {
	var t domain.Teen
	err := s.db.QueryRow(`
		SELECT id, parent_id, name, device_id, phone_number, age
		FROM teens WHERE id = ?`, id).
		Scan(&t.ID, &t.ParentID, &t.Name, &t.DeviceID, &t.PhoneNumber, &t.Age)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read teen: %w", err)
	}
	return &t, nil
}

// --- locations ---

// InsertLocation stores one delivered location sample.
func (s *Store) InsertLocation(sample domain.LocationSample) (domain.Location, error) {
	loc := domain.Location{
		ID:        uuid.NewString(),
		TeenID:    sample.TeenID,
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Accuracy:  sample.Accuracy,
		Address:   sample.Address,
		Timestamp: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO locations (id, teen_id, latitude, longitude, accuracy, address, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		loc.ID, loc.TeenID, loc.Latitude, loc.Longitude, loc.Accuracy, loc.Address, loc.Timestamp)
	if err != nil {
		return domain.Location{}, fmt.Errorf("failed to insert location: %w", err)
	}
	return loc, nil
}

// RecentLocations lists a teen's locations, most-recent-first.
func (s *Store) RecentLocations(teenID string, limit int) ([]domain.Location, error) {
	rows, err := s.db.Query(`
		SELECT id, teen_id, latitude, longitude, accuracy, address, timestamp
		FROM locations WHERE teen_id = ?
		ORDER BY timestamp DESC LIMIT ?`, teenID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	locs := make([]domain.Location, 0)
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.TeenID, &l.Latitude, &l.Longitude, &l.Accuracy, &l.Address, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

// --- geofences ---

// CreateGeofence inserts a geofence.
func (s *Store) CreateGeofence(g domain.Geofence) (domain.Geofence, error) {
	g.ID = uuid.NewString()
	if g.Type == "" {
		g.Type = "safe"
	}
	_, err := s.db.Exec(`
		INSERT INTO geofences (id, teen_id, name, latitude, longitude, radius, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.TeenID, g.Name, g.Latitude, g.Longitude, g.Radius, g.Type, time.Now().UTC())
	if err != nil {
		return domain.Geofence{}, fmt.Errorf("failed to insert geofence: %w", err)
	}
	return g, nil
}

// GeofencesByTeen lists a teen's geofences.
func (s *Store) GeofencesByTeen(teenID string) ([]domain.Geofence, error) {
	rows, err := s.db.Query(`
		SELECT id, teen_id, name, latitude, longitude, radius, type
		FROM geofences WHERE teen_id = ?`, teenID)
	if err != nil {
		return nil, fmt.Errorf("failed to list geofences: %w", err)
	}
	defer rows.Close()

	fences := make([]domain.Geofence, 0)
	for rows.Next() {
		var g domain.Geofence
		if err := rows.Scan(&g.ID, &g.TeenID, &g.Name, &g.Latitude, &g.Longitude, &g.Radius, &g.Type); err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		fences = append(fences, g)
	}
	return fences, rows.Err()
}

// --- app usage ---

// UpsertAppUsage creates or replaces the usage record for one
// (teen, package, date) combination. Returns true when a new record was
// created.
func (s *Store) UpsertAppUsage(event domain.UsageEvent) (created bool, err error) {
	res, err := s.db.Exec(`
		UPDATE app_usage SET usage_time = ?, app_name = ?, last_used = ?
		WHERE teen_id = ? AND package_name = ? AND date = ?`,
		event.UsageTime, event.AppName, time.Now().UTC(),
		event.TeenID, event.PackageName, event.Date)
	if err != nil {
		return false, fmt.Errorf("failed to update app usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	_, err = s.db.Exec(`
		INSERT INTO app_usage (id, teen_id, app_name, package_name, usage_time, date, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), event.TeenID, event.AppName, event.PackageName,
		event.UsageTime, event.Date, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert app usage: %w", err)
	}
	return true, nil
}

// UsageByTeenDate lists a teen's usage records for one day.
func (s *Store) UsageByTeenDate(teenID, date string) ([]domain.AppUsage, error) {
	rows, err := s.db.Query(`
		SELECT id, teen_id, app_name, package_name, usage_time, date
		FROM app_usage WHERE teen_id = ? AND date = ?
		ORDER BY usage_time DESC`, teenID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list app usage: %w", err)
	}
	defer rows.Close()

	usage := make([]domain.AppUsage, 0)
	for rows.Next() {
		var u domain.AppUsage
		if err := rows.Scan(&u.ID, &u.TeenID, &u.AppName, &u.PackageName, &u.UsageTime, &u.Date); err != nil {
			return nil, fmt.Errorf("failed to scan app usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// --- web history ---

// RecordWebVisit inserts a visit or increments the visit count for an
// already-seen (teen, url) pair. Returns true when a new record was created.
func (s *Store) RecordWebVisit(event domain.WebVisitEvent) (created bool, err error) {
	res, err := s.db.Exec(`
		UPDATE web_history SET visit_count = visit_count + 1, timestamp = ?
		WHERE teen_id = ? AND url = ?`,
		time.Now().UTC(), event.TeenID, event.URL)
	if err != nil {
		return false, fmt.Errorf("failed to update web history: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	_, err = s.db.Exec(`
		INSERT INTO web_history (id, teen_id, url, title, visit_count, timestamp)
		VALUES (?, ?, ?, ?, 1, ?)`,
		uuid.NewString(), event.TeenID, event.URL, event.Title, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert web history: %w", err)
	}
	return true, nil
}

// RecentWebHistory lists a teen's web visits, most-recent-first.
func (s *Store) RecentWebHistory(teenID string, limit int) ([]domain.WebHistory, error) {
	rows, err := s.db.Query(`
		SELECT id, teen_id, url, title, visit_count, timestamp
		FROM web_history WHERE teen_id = ?
		ORDER BY timestamp DESC LIMIT ?`, teenID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list web history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.WebHistory, 0)
	for rows.Next() {
		var h domain.WebHistory
		if err := rows.Scan(&h.ID, &h.TeenID, &h.URL, &h.Title, &h.VisitCount, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan web history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// --- alerts ---

// InsertAlert stores a parent-facing alert.
func (s *Store) InsertAlert(parentID, teenID, alertType, message string) (domain.Alert, error) {
	alert := domain.Alert{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		TeenID:    teenID,
		Type:      alertType,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO alerts (id, parent_id, teen_id, type, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		alert.ID, parentID, teenID, alertType, message, alert.CreatedAt)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	return alert, nil
}

// AlertsByParent lists a parent's alerts, newest first.
func (s *Store) AlertsByParent(parentID string, unreadOnly bool) ([]domain.Alert, error) {
	query := `
		SELECT id, parent_id, teen_id, type, message, is_read, created_at
		FROM alerts WHERE parent_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := s.db.Query(query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// UnreadAlerts lists a parent's unread alerts for one teen.
func (s *Store) UnreadAlerts(parentID, teenID string) ([]domain.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, parent_id, teen_id, type, message, is_read, created_at
		FROM alerts WHERE parent_id = ? AND teen_id = ? AND is_read = 0
		ORDER BY created_at DESC LIMIT 100`, parentID, teenID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]domain.Alert, error) {
	alerts := make([]domain.Alert, 0)
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.ParentID, &a.TeenID, &a.Type, &a.Message, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkAlertRead acknowledges one alert. Returns false when no matching
// alert exists for the parent.
func (s *Store) MarkAlertRead(alertID, parentID string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE alerts SET is_read = 1 WHERE id = ? AND parent_id = ?`,
		alertID, parentID)
	if err != nil {
		return false, fmt.Errorf("failed to mark alert read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
