package journal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tradesim/internal/trading/position"
	apperrors "tradesim/pkg/errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_positions (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	symbol      TEXT    NOT NULL,
	position_id TEXT    NOT NULL,
	data        TEXT    NOT NULL,
	checksum    BLOB    NOT NULL,
	closed_at   INTEGER NOT NULL,
	UNIQUE (run_id, symbol, position_id)
);
CREATE INDEX IF NOT EXISTS idx_closed_positions_symbol ON closed_positions (symbol, seq);
`

// SQLiteStore keeps closed records in a SQLite file. Each row carries a
// SHA-256 of its JSON payload, verified on read. Writes that hit a busy or
// locked database are retried.
//
// Every store instance writes under its own run id, so position ids that
// restart per run never collide with rows left by earlier runs. List
// returns the rows of all runs.
type SQLiteStore struct {
	db    *sql.DB
	runID string
	retry retrypolicy.RetryPolicy[any]
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	retry := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return isBusy(err)
		}).
		WithBackoff(10*time.Millisecond, 500*time.Millisecond).
		WithMaxRetries(5).
		Build()

	return &SQLiteStore{db: db, runID: uuid.NewString(), retry: retry}, nil
}

// RunID identifies the rows written through this store.
func (s *SQLiteStore) RunID() string { return s.runID }

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// Append writes rec. Appending the same position id twice in one run
// overwrites the earlier row.
func (s *SQLiteStore) Append(ctx context.Context, rec position.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	checksum := sha256.Sum256(data)

	return failsafe.With[any](s.retry).WithContext(ctx).Run(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		query := `INSERT INTO closed_positions (run_id, symbol, position_id, data, checksum, closed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, symbol, position_id) DO UPDATE SET
				data = excluded.data, checksum = excluded.checksum, closed_at = excluded.closed_at`
		if _, err := tx.ExecContext(ctx, query, s.runID, rec.Symbol, rec.ID, string(data), checksum[:], rec.ExitTime.UnixNano()); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		return tx.Commit()
	})
}

// List returns the records for symbol in append order.
func (s *SQLiteStore) List(ctx context.Context, symbol string) ([]position.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position_id, data, checksum FROM closed_positions WHERE symbol = ? ORDER BY seq`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []position.Record
	for rows.Next() {
		var id, data string
		var stored []byte
		if err := rows.Scan(&id, &data, &stored); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		computed := sha256.Sum256([]byte(data))
		if !bytes.Equal(stored, computed[:]) {
			return nil, fmt.Errorf("position %s/%s: %w", symbol, id, apperrors.ErrChecksumMismatch)
		}

		var rec position.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM closed_positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
