package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/decision"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func flaggedEntry(ts int64, path string) Entry {
	return Entry{
		Timestamp:   ts,
		Method:      "GET",
		Path:        path,
		PayloadHash: "abc123",
		Decision:    decision.TypeFlag,
		Confidence:  0.6,
		Reason:      "suspicious pattern",
		IPAddr:      "192.168.1.1",
		UserAgent:   "curl/8.0",
	}
}

func TestAppendAssignsIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id1, err := store.Append(ctx, flaggedEntry(100, "/a"))
	require.NoError(t, err)
	id2, err := store.Append(ctx, flaggedEntry(101, "/b"))
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}

func TestAppendStampsTimestamp(t *testing.T) {
	store := setupTestStore(t)

	e := flaggedEntry(0, "/now")
	_, err := store.Append(context.Background(), e)
	require.NoError(t, err)

	got, err := store.FlaggedSince(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, time.Now().Unix(), got[0].Timestamp, 5)
}

func TestAppendValidation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	bad := flaggedEntry(1, "/x")
	bad.Decision = "deny"
	_, err := store.Append(ctx, bad)
	assert.Error(t, err)

	bad = flaggedEntry(1, "/x")
	bad.PayloadHash = ""
	_, err = store.Append(ctx, bad)
	assert.Error(t, err)

	bad = flaggedEntry(1, "/x")
	bad.Confidence = 1.7
	_, err = store.Append(ctx, bad)
	assert.Error(t, err)
}

func TestFlaggedSinceAscendingOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, ts := range []int64{300, 100, 200} {
		_, err := store.Append(ctx, flaggedEntry(ts, "/p"))
		require.NoError(t, err)
	}

	got, err := store.FlaggedSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(100), got[0].Timestamp)
	assert.Equal(t, int64(200), got[1].Timestamp)
	assert.Equal(t, int64(300), got[2].Timestamp)
}

func TestFlaggedSinceFiltersByTimeAndDecision(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, flaggedEntry(100, "/old"))
	require.NoError(t, err)
	_, err = store.Append(ctx, flaggedEntry(200, "/new"))
	require.NoError(t, err)

	blocked := flaggedEntry(250, "/blocked")
	blocked.Decision = decision.TypeBlock
	_, err = store.Append(ctx, blocked)
	require.NoError(t, err)

	got, err := store.FlaggedSince(ctx, 150)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/new", got[0].Path)

	// Boundary is inclusive.
	got, err = store.FlaggedSince(ctx, 200)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBlockedSince(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e := flaggedEntry(100, "/attack")
	e.Decision = decision.TypeBlock
	e.Reason = "SQL injection"
	_, err := store.Append(ctx, e)
	require.NoError(t, err)

	got, err := store.BlockedSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, decision.TypeBlock, got[0].Decision)
	assert.Equal(t, "SQL injection", got[0].Reason)
}

func TestCountSince(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		_, err := store.Append(ctx, flaggedEntry(100+i, "/p"))
		require.NoError(t, err)
	}

	n, err := store.CountSince(ctx, decision.TypeFlag, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = store.CountSince(ctx, decision.TypeFlag, 103)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.CountSince(ctx, decision.TypeBlock, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecentEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		_, err := store.Append(ctx, flaggedEntry(100+i, "/p"))
		require.NoError(t, err)
	}

	got, err := store.RecentEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(104), got[0].Timestamp)
}

func TestCountByDecision(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	allow := flaggedEntry(10, "/a")
	allow.Decision = decision.TypeAllow
	allow.Reason = ""
	block := flaggedEntry(11, "/b")
	block.Decision = decision.TypeBlock

	for _, e := range []Entry{allow, allow, flaggedEntry(12, "/c"), block} {
		_, err := store.Append(ctx, e)
		require.NoError(t, err)
	}

	counts, err := store.CountByDecision(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[decision.TypeAllow])
	assert.Equal(t, int64(1), counts[decision.TypeFlag])
	assert.Equal(t, int64(1), counts[decision.TypeBlock])
}

func TestImmutability(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, flaggedEntry(100, "/immutable"))
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, "UPDATE events SET reason = 'modified' WHERE id = 1")
	assert.Error(t, err)

	_, err = store.db.ExecContext(ctx, "DELETE FROM events WHERE id = 1")
	assert.Error(t, err)

	got, err := store.FlaggedSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "suspicious pattern", got[0].Reason)
}

func TestNullableColumns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e := Entry{
		Timestamp:   100,
		Method:      "GET",
		Path:        "/bare",
		PayloadHash: "deadbeef",
		Decision:    decision.TypeAllow,
		Confidence:  0.9,
	}
	_, err := store.Append(ctx, e)
	require.NoError(t, err)

	got, err := store.RecentEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Reason)
	assert.Empty(t, got[0].IPAddr)
	assert.Empty(t, got[0].UserAgent)
}

func TestConcurrentAppends(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const numWrites = 20
	errs := make(chan error, numWrites)

	for i := 0; i < numWrites; i++ {
		go func(i int) {
			_, err := store.Append(ctx, flaggedEntry(int64(1000+i), "/concurrent"))
			errs <- err
		}(i)
	}

	for i := 0; i < numWrites; i++ {
		require.NoError(t, <-errs)
	}

	n, err := store.CountSince(ctx, decision.TypeFlag, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(numWrites), n)
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = store.Append(context.Background(), flaggedEntry(100, "/persist"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.FlaggedSince(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
