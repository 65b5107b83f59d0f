package report

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourusername/pvemap/internal/virt"
	_ "modernc.org/sqlite"
)

// PollRecord is a summary row of a delivered report
type PollRecord struct {
	ID          string    `json:"id" yaml:"id"`
	Cluster     string    `json:"cluster" yaml:"cluster"`
	CollectedAt time.Time `json:"collectedAt" yaml:"collectedAt"`
	Hypervisors int       `json:"hypervisors" yaml:"hypervisors"`
	Guests      int       `json:"guests" yaml:"guests"`
}

// GuestRecord is one stored host-to-guest association
type GuestRecord struct {
	Hypervisor string          `json:"hypervisor" yaml:"hypervisor"`
	GuestID    string          `json:"guestId" yaml:"guestId"`
	Technology virt.Technology `json:"technology" yaml:"technology"`
}

// Store keeps a history of delivered reports in SQLite. Nothing in the
// polling path reads it back.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// OpenStore opens (or creates) the database at path. ":memory:" is accepted.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report database: %w", err)
	}
	// A single connection keeps :memory: databases alive across calls
	db.SetMaxOpenConns(1)

	store := &Store{
		db:   db,
		path: path,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize report schema: %w", err)
	}

	log.Printf("Report store initialized at %s", path)
	return store, nil
}

// initSchema creates the tables if they don't exist
func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS polls (
			id TEXT PRIMARY KEY,
			cluster TEXT NOT NULL,
			collected_at INTEGER NOT NULL,
			hypervisors INTEGER NOT NULL,
			guests INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create polls table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS poll_guests (
			poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			hypervisor TEXT NOT NULL,
			position INTEGER NOT NULL,
			guest_id TEXT NOT NULL,
			technology TEXT NOT NULL,
			PRIMARY KEY (poll_id, hypervisor, position)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create poll_guests table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_polls_cluster_time
		ON polls(cluster, collected_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Deliver stores the report and its associations in a single transaction
func (s *Store) Deliver(ctx context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO polls (id, cluster, collected_at, hypervisors, guests)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Cluster, r.CollectedAt.Unix(), len(r.Mapping.Hypervisors), r.Mapping.GuestCount())
	if err != nil {
		return fmt.Errorf("failed to store poll %s: %w", r.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO poll_guests (poll_id, hypervisor, position, guest_id, technology)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, h := range r.Mapping.Hypervisors {
		for i, g := range h.Guests {
			if _, err := stmt.ExecContext(ctx, r.ID, h.HypervisorID, i, g.ID, string(g.Technology)); err != nil {
				return fmt.Errorf("failed to store guest %s on %s: %w", g.ID, h.HypervisorID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// History returns the most recent polls, newest first. An empty cluster
// matches all clusters.
func (s *Store) History(ctx context.Context, cluster string, limit int) ([]PollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cluster, collected_at, hypervisors, guests
		FROM polls
		WHERE ? = '' OR cluster = ?
		ORDER BY collected_at DESC, rowid DESC
		LIMIT ?
	`, cluster, cluster, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []PollRecord
	for rows.Next() {
		var rec PollRecord
		var collectedAt int64
		if err := rows.Scan(&rec.ID, &rec.Cluster, &collectedAt, &rec.Hypervisors, &rec.Guests); err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		rec.CollectedAt = time.Unix(collectedAt, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Guests returns the associations stored for one poll in report order
func (s *Store) Guests(ctx context.Context, pollID string) ([]GuestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT hypervisor, guest_id, technology
		FROM poll_guests
		WHERE poll_id = ?
		ORDER BY rowid
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query guests: %w", err)
	}
	defer rows.Close()

	var records []GuestRecord
	for rows.Next() {
		var rec GuestRecord
		var tech string
		if err := rows.Scan(&rec.Hypervisor, &rec.GuestID, &tech); err != nil {
			return nil, fmt.Errorf("failed to scan guest: %w", err)
		}
		rec.Technology = virt.Technology(tech)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Cleanup removes polls older than maxAge
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM poll_guests WHERE poll_id IN (SELECT id FROM polls WHERE collected_at < ?)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup guests: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM polls WHERE collected_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup polls: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		log.Printf("Cleaned up %d old polls", affected)
	}
	return affected, nil
}

// Stats returns the number of stored polls and associations
func (s *Store) Stats(ctx context.Context) (polls int, guests int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM polls`).Scan(&polls); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM poll_guests`).Scan(&guests); err != nil {
		return 0, 0, err
	}
	return polls, guests, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
