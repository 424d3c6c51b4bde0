// Package store persists sessions, cycle records and price history.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"auto_trader/internal/core"
	"auto_trader/pkg/concurrency"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	data TEXT NOT NULL,
	checksum BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cycles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id TEXT NOT NULL,
	data TEXT NOT NULL,
	checksum BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS price_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_name TEXT NOT NULL,
	price TEXT NOT NULL,
	sampled_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_samples_item ON price_samples(item_name, sampled_at);
`

// SQLiteStore is the durable store. Session reads and writes are guarded by
// a mutex; cycle records and price samples are append-only. Price samples
// are written through a single-worker pool so the scan hot path never blocks
// on disk.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex
	samples   *concurrency.WorkerPool
	logger    core.ILogger
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string, logger core.ILogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "store"),
	}
	s.samples = concurrency.NewSerialPool("price_samples", 256, logger)
	return s, nil
}

// SaveSession writes the session snapshot as the single session row.
func (s *SQLiteStore) SaveSession(ctx context.Context, snapshot *core.SessionSnapshot) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Validate JSON (round-trip test)
	var check core.SessionSnapshot
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("session validation failed: %w", err)
	}

	checksum := sha256.Sum256(data)
	query := `INSERT OR REPLACE INTO session (id, data, checksum, updated_at) VALUES (1, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, string(data), checksum[:], time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// LoadSession returns the stored snapshot, or (nil, nil) when none exists.
func (s *SQLiteStore) LoadSession(ctx context.Context) (*core.SessionSnapshot, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	var data string
	var storedChecksum []byte
	err := s.db.QueryRowContext(ctx, `SELECT data, checksum FROM session WHERE id = 1`).Scan(&data, &storedChecksum)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if err := verifyChecksum([]byte(data), storedChecksum); err != nil {
		return nil, err
	}

	var snapshot core.SessionSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &snapshot, nil
}

// ClearSession removes the stored snapshot if present.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// AppendCycleRecord appends a sealed cycle record. Records are immutable
// once written.
func (s *SQLiteStore) AppendCycleRecord(ctx context.Context, record *core.CycleRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle record: %w", err)
	}

	checksum := sha256.Sum256(data)
	query := `INSERT INTO cycles (cycle_id, data, checksum, created_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, record.ID, string(data), checksum[:], time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to append cycle record: %w", err)
	}

	return tx.Commit()
}

// AppendPriceSample queues one observed price for append. The write happens
// on the store's serial worker; ordering is preserved.
func (s *SQLiteStore) AppendPriceSample(ctx context.Context, itemName string, price decimal.Decimal, ts time.Time) error {
	return s.samples.Submit(func() {
		_, err := s.db.Exec(`INSERT INTO price_samples (item_name, price, sampled_at) VALUES (?, ?, ?)`,
			itemName, price.String(), ts.UnixNano())
		if err != nil {
			s.logger.Error("Failed to append price sample", "item", itemName, "error", err)
		}
	})
}

// RecentPrices returns up to limit most recent prices for an item, newest
// first.
func (s *SQLiteStore) RecentPrices(ctx context.Context, itemName string, limit int) ([]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT price FROM price_samples WHERE item_name = ? ORDER BY sampled_at DESC LIMIT ?`,
		itemName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price samples: %w", err)
	}
	defer rows.Close()

	var prices []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt price sample %q: %w", raw, err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// CycleRecords returns all stored cycle records in append order.
func (s *SQLiteStore) CycleRecords(ctx context.Context) ([]*core.CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data, checksum FROM cycles ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var records []*core.CycleRecord
	for rows.Next() {
		var data string
		var checksum []byte
		if err := rows.Scan(&data, &checksum); err != nil {
			return nil, err
		}
		if err := verifyChecksum([]byte(data), checksum); err != nil {
			return nil, err
		}
		var rec core.CycleRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cycle record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Close drains the sample queue and closes the database.
func (s *SQLiteStore) Close() error {
	s.samples.Stop()
	return s.db.Close()
}

func verifyChecksum(data, stored []byte) error {
	computed := sha256.Sum256(data)
	if len(stored) != len(computed) {
		return fmt.Errorf("checksum length mismatch: expected %d, got %d", len(computed), len(stored))
	}
	for i := range computed {
		if stored[i] != computed[i] {
			return fmt.Errorf("checksum verification failed: data corruption detected")
		}
	}
	return nil
}

var _ core.IStore = (*SQLiteStore)(nil)
