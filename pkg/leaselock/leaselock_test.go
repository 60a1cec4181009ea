package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

// fakeDB keeps the lock table in memory. Expiry is ignored, a lock is held
// until it is released or dropped.
type fakeDB struct {
	mu    sync.Mutex
	locks map[string]string
}

func newFakeDB() *fakeDB {
	return &fakeDB{locks: map[string]string{}}
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	holder, held := db.locks[key]

	switch sql {
	case tryAcquireSQL:
		if held && holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		db.locks[key] = token
		return fakeRow{value: key}
	case renewSQL:
		if !held || holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{value: key}
	}
	return fakeRow{err: errors.New("unexpected query")}
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if sql != releaseSQL {
		return pgconn.CommandTag{}, errors.New("unexpected statement")
	}
	key, token := args[0].(string), args[1].(string)
	if db.locks[key] == token {
		delete(db.locks, key)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (db *fakeDB) drop(key string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.locks, key)
}

func TestAcquire_Exclusive(t *testing.T) {
	ctx := context.Background()
	c := New(newFakeDB())

	first, err := c.Acquire(ctx, "data-dir:/snapshots", Options{TokenPrefix: "run-"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first.Token, "run-"))

	_, err = c.Acquire(ctx, "data-dir:/snapshots", Options{})
	require.ErrorIs(t, err, ErrBusy)

	require.NoError(t, first.Release(ctx))
	require.Error(t, first.Context.Err())

	second, err := c.Acquire(ctx, "data-dir:/snapshots", Options{})
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestAcquire_WaitHonorsContext(t *testing.T) {
	c := New(newFakeDB())
	held, err := c.Acquire(context.Background(), "k", Options{})
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_EmptyKey(t *testing.T) {
	_, err := New(newFakeDB()).Acquire(context.Background(), "", Options{})
	require.Error(t, err)
}

func TestLease_LostWhenRowDisappears(t *testing.T) {
	db := newFakeDB()
	c := New(db)
	lease, err := c.Acquire(context.Background(), "k", Options{TTL: 2 * time.Second, RenewEvery: 5 * time.Millisecond})
	require.NoError(t, err)

	db.drop("k")
	require.Eventually(t, func() bool { return lease.Context.Err() != nil }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, context.Cause(lease.Context), ErrLost)
}

func TestWithLease(t *testing.T) {
	db := newFakeDB()
	c := New(db)

	called := false
	err := c.WithLease(context.Background(), DataDirKey("snapshots"), Options{}, func(ctx context.Context) error {
		called = true
		_, err := c.Acquire(ctx, DataDirKey("./snapshots/"), Options{})
		return err
	})
	require.ErrorIs(t, err, ErrBusy)
	require.True(t, called)
	require.Empty(t, db.locks)
}

func TestDataDirKey(t *testing.T) {
	require.Equal(t, DataDirKey("a/b"), DataDirKey("a/./b/"))
	require.NotEqual(t, DataDirKey("a"), DataDirKey("b"))
	require.True(t, strings.HasPrefix(DataDirKey("."), "data-dir:/"))
}
