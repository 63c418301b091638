package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	return rc
}

func TestRedisLockMutualExclusion(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()

	first := NewRedisLock(rc, "sync:user:1", time.Minute)
	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire = (%v, %v), want (true, nil)", ok, err)
	}

	second := NewRedisLock(rc, "sync:user:1", time.Minute)
	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire succeeded while the lock was held")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release = (%v, %v), want (true, nil)", ok, err)
	}
}

// Release only deletes the key when this instance still owns it, so a
// slow holder cannot free a lock a peer re-acquired after expiry.
func TestRedisLockReleaseRespectsOwnership(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()

	stale := NewRedisLock(rc, "sync:user:1", time.Minute)
	if ok, _ := stale.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// Simulate TTL expiry followed by a peer taking the lock.
	rc.Del(ctx, "lock:sync:user:1")
	current := NewRedisLock(rc, "sync:user:1", time.Minute)
	if ok, _ := current.Acquire(ctx); !ok {
		t.Fatal("peer acquire failed")
	}

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := rc.Get(ctx, "lock:sync:user:1").Result(); err != nil {
		t.Error("stale release removed a lock it no longer owned")
	}
}

// Acquire and unlock must run on the same session; the lock holds one
// connection from the pool until Release.
func TestPGAdvisoryLockRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	lock := NewPGAdvisoryLock(db, "sync:user:1")
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire = (%v, %v), want (true, nil)", ok, err)
	}
	if lock.conn == nil {
		t.Fatal("acquired lock did not pin a connection")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if lock.conn != nil {
		t.Error("released lock still pins a connection")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGAdvisoryLockContended(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ctx := context.Background()
	lock := NewPGAdvisoryLock(db, "sync:user:1")
	ok, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Fatal("acquire reported success on a contended lock")
	}
	if lock.conn != nil {
		t.Error("failed acquire kept a connection checked out")
	}
	// Release without the lock must not issue an unlock.
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestNewPrefersRedis(t *testing.T) {
	rc := setupRedis(t)
	if _, ok := New(rc, nil, "k", time.Minute).(*RedisLock); !ok {
		t.Error("expected Redis backend when a client is provided")
	}
	if _, ok := New(nil, nil, "k", time.Minute).(*PGAdvisoryLock); !ok {
		t.Error("expected advisory-lock fallback without Redis")
	}
}
