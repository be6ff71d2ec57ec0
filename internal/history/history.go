// Package history records every play status transition in an append-only
// SQLite log. The log is the audit trail: rows are inserted, never updated
// or deleted, and a recovery procedure can replay them to reconstruct the
// last durably recorded status of any play after a crash.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"playtrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Record is one appended transition with the order/position snapshot taken
// at that moment.
type Record struct {
	ID                 int64             `json:"id"`
	PlayID             string            `json:"play_id"`
	PlayName           string            `json:"play_name"`
	FromStatus         domain.PlayStatus `json:"from_status"`
	ToStatus           domain.PlayStatus `json:"to_status"`
	OrderID            string            `json:"order_id,omitempty"`
	OrderStatus        domain.OrderState `json:"order_status,omitempty"`
	ClosingOrderID     string            `json:"closing_order_id,omitempty"`
	ClosingOrderStatus domain.OrderState `json:"closing_order_status,omitempty"`
	PositionExists     bool              `json:"position_exists"`
	RecordedAt         time.Time         `json:"recorded_at"`
}

// Store is the SQLite-backed status history log.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS play_status_history (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	play_id              TEXT NOT NULL,
	play_name            TEXT NOT NULL,
	from_status          TEXT NOT NULL,
	to_status            TEXT NOT NULL,
	order_id             TEXT NOT NULL DEFAULT '',
	order_status         TEXT NOT NULL DEFAULT '',
	closing_order_id     TEXT NOT NULL DEFAULT '',
	closing_order_status TEXT NOT NULL DEFAULT '',
	position_exists      INTEGER NOT NULL DEFAULT 0,
	recorded_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_play ON play_status_history(play_id, id);
`

// NewStore opens (or creates) the history database at dbPath and ensures
// the schema exists.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one transition for a play. The snapshot is taken from the
// play's status envelope as it stands after the transition.
func (s *Store) Append(ctx context.Context, play *domain.Play, from, to domain.PlayStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO play_status_history
			(play_id, play_name, from_status, to_status,
			 order_id, order_status, closing_order_id, closing_order_status,
			 position_exists, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		play.ID, play.Name, string(from), string(to),
		play.Status.OrderID, string(play.Status.OrderStatus),
		play.Status.ClosingOrderID, string(play.Status.ClosingOrderStatus),
		boolToInt(play.Status.PositionExists),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("appending history for play %s: %w", play.ID, err)
	}
	return nil
}

// ListByPlay returns every recorded transition for a play in append order.
func (s *Store) ListByPlay(ctx context.Context, playID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, play_id, play_name, from_status, to_status,
		       order_id, order_status, closing_order_id, closing_order_status,
		       position_exists, recorded_at
		FROM play_status_history
		WHERE play_id = ?
		ORDER BY id`, playID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var posExists int
		var recordedAt string
		if err := rows.Scan(&r.ID, &r.PlayID, &r.PlayName, &r.FromStatus, &r.ToStatus,
			&r.OrderID, &r.OrderStatus, &r.ClosingOrderID, &r.ClosingOrderStatus,
			&posExists, &recordedAt); err != nil {
			return nil, err
		}
		r.PositionExists = posExists != 0
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastStatus replays the log and returns the most recently recorded status
// of a play. After a crash this is the last durably written transition, to
// be compared against the play store's on-disk location.
func (s *Store) LastStatus(ctx context.Context, playID string) (domain.PlayStatus, error) {
	var to string
	err := s.db.QueryRowContext(ctx, `
		SELECT to_status FROM play_status_history
		WHERE play_id = ?
		ORDER BY id DESC LIMIT 1`, playID).Scan(&to)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.PlayStatus(to), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
