package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/decision"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable event log. Opening it on a fresh file creates
// the schema and indexes; the table carries triggers that reject updates and
// deletes, so written entries are immutable.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initializeSchema() error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}

// Append inserts one entry and returns its assigned id. A zero timestamp is
// stamped with the current time.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) (int64, error) {
	if err := validateEntry(e); err != nil {
		return 0, err
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}

	const maxRetries = 3
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		var res sql.Result
		res, err = s.db.ExecContext(ctx, queryInsertEntry,
			e.Timestamp, e.Method, e.Path, e.PayloadHash,
			string(e.Decision), e.Confidence,
			nullable(e.Reason), nullable(e.IPAddr), nullable(e.UserAgent))
		if err == nil {
			return res.LastInsertId()
		}

		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			backoff := time.Duration(attempt+1) * 10 * time.Millisecond
			time.Sleep(backoff)
			continue
		}

		return 0, fmt.Errorf("insert event: %w", err)
	}

	return 0, fmt.Errorf("insert event after %d retries: %w", maxRetries, err)
}

func (s *SQLiteStore) FlaggedSince(ctx context.Context, since int64) ([]Entry, error) {
	return s.byDecisionSince(ctx, decision.TypeFlag, since)
}

func (s *SQLiteStore) BlockedSince(ctx context.Context, since int64) ([]Entry, error) {
	return s.byDecisionSince(ctx, decision.TypeBlock, since)
}

func (s *SQLiteStore) byDecisionSince(ctx context.Context, d decision.Type, since int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, querySelectByDecisionSince, string(d), since)
	if err != nil {
		return nil, fmt.Errorf("query %s events: %w", d, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *SQLiteStore) CountSince(ctx context.Context, d decision.Type, since int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, queryCountByDecisionSince, string(d), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s events: %w", d, err)
	}
	return count, nil
}

// RecentEvents returns the newest entries first, for the operator surface.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, querySelectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *SQLiteStore) CountByDecision(ctx context.Context, since int64) (map[decision.Type]int64, error) {
	rows, err := s.db.QueryContext(ctx, queryCountGroupedSince, since)
	if err != nil {
		return nil, fmt.Errorf("count events by decision: %w", err)
	}
	defer rows.Close()

	counts := make(map[decision.Type]int64)
	for rows.Next() {
		var d string
		var n int64
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[decision.Type(d)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return counts, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func validateEntry(e Entry) error {
	if e.Method == "" {
		return fmt.Errorf("entry method cannot be empty")
	}
	if e.Path == "" {
		return fmt.Errorf("entry path cannot be empty")
	}
	if e.PayloadHash == "" {
		return fmt.Errorf("entry payload_hash cannot be empty")
	}
	if !e.Decision.Valid() {
		return fmt.Errorf("invalid decision: %s", e.Decision)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", e.Confidence)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
