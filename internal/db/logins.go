package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quarry-project/quarry/internal/events"
)

// LoginRecord is one completed login.
type LoginRecord struct {
	ID              int64      `json:"id"`
	PlayerName      string     `json:"player_name"`
	RemoteAddr      string     `json:"remote_addr"`
	ConnID          uint64     `json:"conn_id"`
	ProtocolVersion int32      `json:"protocol_version"`
	LoggedInAt      time.Time  `json:"logged_in_at"`
	LoggedOutAt     *time.Time `json:"logged_out_at,omitempty"`
}

// pendingLogoutTTL bounds how long a logout waits for its login to arrive.
const pendingLogoutTTL = time.Minute

// LoginHistory stores player logins and their session end times.
//
// Login and logout events reach it on separate goroutines, so a logout may
// arrive before the login it closes. Such a logout is parked and applied by
// the matching RecordLogin.
type LoginHistory struct {
	db *Database

	mu      sync.Mutex
	open    map[uint64]int64 // conn id -> row id of the session still open
	pending map[uint64]pendingLogout
}

type pendingLogout struct {
	at     time.Time
	parked time.Time
}

// loginMigrations is the ordered schema history of the logins table.
var loginMigrations = []string{
	`CREATE TABLE IF NOT EXISTS logins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_name TEXT NOT NULL,
		remote_addr TEXT NOT NULL,
		conn_id INTEGER NOT NULL,
		protocol_version INTEGER NOT NULL,
		logged_in_at INTEGER NOT NULL,
		logged_out_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logins_logged_in_at ON logins(logged_in_at)`,
	`CREATE INDEX IF NOT EXISTS idx_logins_player ON logins(player_name)`,
}

// NewLoginHistory opens the database at dbPath and migrates the schema.
func NewLoginHistory(dbPath string) (*LoginHistory, error) {
	database, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(context.Background(), loginMigrations); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate login history: %w", err)
	}
	return &LoginHistory{
		db:      database,
		open:    make(map[uint64]int64),
		pending: make(map[uint64]pendingLogout),
	}, nil
}

// Close closes the underlying database.
func (h *LoginHistory) Close() error {
	return h.db.Close()
}

// RecordLogin inserts a login and returns its row id. A logout already
// parked for the connection is written with the row.
func (h *LoginHistory) RecordLogin(ctx context.Context, rec LoginRecord) (int64, error) {
	// held across the insert so a concurrent RecordLogout sees either the
	// open session or nothing, never a half-registered login
	h.mu.Lock()
	defer h.mu.Unlock()

	var loggedOut sql.NullInt64
	if p, ok := h.pending[rec.ConnID]; ok {
		delete(h.pending, rec.ConnID)
		loggedOut = sql.NullInt64{Int64: p.at.UnixMilli(), Valid: true}
	}

	res, err := h.db.Exec(ctx,
		`INSERT INTO logins (player_name, remote_addr, conn_id, protocol_version, logged_in_at, logged_out_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.PlayerName, rec.RemoteAddr, int64(rec.ConnID), rec.ProtocolVersion, rec.LoggedInAt.UnixMilli(), loggedOut)
	if err != nil {
		return 0, fmt.Errorf("failed to record login for %s: %w", rec.PlayerName, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read login id: %w", err)
	}
	if !loggedOut.Valid {
		h.open[rec.ConnID] = id
	}
	return id, nil
}

// RecordLogout closes the open session of connID. When the login has not
// been recorded yet the logout is parked for up to pendingLogoutTTL.
func (h *LoginHistory) RecordLogout(ctx context.Context, connID uint64, at time.Time) error {
	h.mu.Lock()
	h.expirePendingLocked(time.Now())
	id, ok := h.open[connID]
	if ok {
		delete(h.open, connID)
	} else {
		h.pending[connID] = pendingLogout{at: at, parked: time.Now()}
	}
	h.mu.Unlock()

	if !ok {
		return nil
	}

	if _, err := h.db.Exec(ctx, `UPDATE logins SET logged_out_at = ? WHERE id = ?`, at.UnixMilli(), id); err != nil {
		return fmt.Errorf("failed to record logout for login %d: %w", id, err)
	}
	return nil
}

func (h *LoginHistory) expirePendingLocked(now time.Time) {
	for id, p := range h.pending {
		if now.Sub(p.parked) > pendingLogoutTTL {
			delete(h.pending, id)
		}
	}
}

// openSessions returns how many sessions are open and how many logouts are parked.
func (h *LoginHistory) openSessions() (open, pending int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open), len(h.pending)
}

// Recent returns up to limit logins, newest first.
func (h *LoginHistory) Recent(ctx context.Context, limit int) ([]LoginRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := h.db.Query(ctx,
		`SELECT id, player_name, remote_addr, conn_id, protocol_version, logged_in_at, logged_out_at
		 FROM logins ORDER BY logged_in_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logins: %w", err)
	}
	defer rows.Close()

	var out []LoginRecord
	for rows.Next() {
		var (
			rec       LoginRecord
			connID    int64
			loggedIn  int64
			loggedOut sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.PlayerName, &rec.RemoteAddr, &connID, &rec.ProtocolVersion, &loggedIn, &loggedOut); err != nil {
			return nil, fmt.Errorf("failed to scan login: %w", err)
		}
		rec.ConnID = uint64(connID)
		rec.LoggedInAt = time.UnixMilli(loggedIn)
		if loggedOut.Valid {
			t := time.UnixMilli(loggedOut.Int64)
			rec.LoggedOutAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the total number of stored logins.
func (h *LoginHistory) Count(ctx context.Context) (int, error) {
	var n int
	if err := h.db.QueryRow(ctx, `SELECT COUNT(*) FROM logins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count logins: %w", err)
	}
	return n, nil
}

// PruneBefore deletes logins older than cutoff and returns how many were removed.
func (h *LoginHistory) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := h.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM logins WHERE logged_in_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune logins: %w", err)
	}
	if removed > 0 {
		if err := h.db.Optimize(ctx); err != nil {
			log.Warn().Err(err).Msg("optimize after prune failed")
		}
	}
	return removed, nil
}

// Subscribe records logins and logouts published on bus.
func (h *LoginHistory) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventPlayerLogin, "login_history", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.PlayerLoginPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		_, err := h.RecordLogin(ctx, LoginRecord{
			PlayerName:      p.PlayerName,
			RemoteAddr:      p.Remote,
			ConnID:          p.ConnID,
			ProtocolVersion: p.ProtocolVersion,
			LoggedInAt:      p.At,
		})
		return err
	})

	bus.Subscribe(events.EventClientDisconnected, "login_history", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.ConnectionPayload)
		if !ok || p.PlayerName == "" {
			return nil
		}
		at := p.DisconnectedAt
		if at.IsZero() {
			at = time.Now()
		}
		return h.RecordLogout(ctx, p.ConnID, at)
	})

	log.Debug().Msg("login history subscribed to events")
}
