package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string {
	return &s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
}

func TestAppend_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	msg, err := s1.Append(ctx, "durable", strPtr("tok-durable"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.LookupByToken(ctx, "tok-durable")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "durable", got.Content)
}

func TestAppend_AssignsStrictlyIncreasingIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var lastID int64
	for i := 0; i < 10; i++ {
		msg, err := s.Append(ctx, fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
		require.Greater(t, msg.ID, lastID, "ids must be strictly increasing")
		lastID = msg.ID
	}
}

func TestAppend_DuplicateToken(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, "hello", strPtr("tokenA"))
	require.NoError(t, err)

	_, err = s.Append(ctx, "hello", strPtr("tokenA"))
	require.ErrorIs(t, err, ErrDuplicateToken)

	// The conflict resolves to the original row.
	existing, err := s.LookupByToken(ctx, "tokenA")
	require.NoError(t, err)
	assert.Equal(t, first.ID, existing.ID)

	// Exactly one row was persisted.
	messages, err := s.ListAfter(ctx, 0, 500)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestAppend_NilTokenNeverConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Append(ctx, "anonymous", nil)
	require.NoError(t, err)
	b, err := s.Append(ctx, "anonymous", nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestAppend_ConcurrentSameToken(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Append(ctx, "hello", strPtr("raced"))
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, ErrDuplicateToken)
			lost++
		}
	}

	assert.Equal(t, 1, won, "exactly one writer must persist the row")
	assert.Equal(t, writers-1, lost)

	messages, err := s.ListAfter(ctx, 0, 500)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestLookupByToken_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LookupByToken(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAfter_ReturnsOrderedWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 20; i++ {
		msg, err := s.Append(ctx, fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	offset := ids[4]
	messages, err := s.ListAfter(ctx, offset, 500)
	require.NoError(t, err)
	require.Len(t, messages, 15)

	for i, msg := range messages {
		assert.Equal(t, ids[5+i], msg.ID, "replay must be ascending with no gaps")
	}
}

func TestListAfter_CapsAtLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := s.Append(ctx, fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
	}

	messages, err := s.ListAfter(ctx, 0, 5)
	require.NoError(t, err)
	require.Len(t, messages, 5)

	// Oldest-after-offset first; the tail beyond the cap is truncated.
	assert.Equal(t, int64(1), messages[0].ID)
	assert.Equal(t, int64(5), messages[4].ID)
}

func TestListAfter_EmptyBacklog(t *testing.T) {
	s := openTestStore(t)

	messages, err := s.ListAfter(context.Background(), 0, 500)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
