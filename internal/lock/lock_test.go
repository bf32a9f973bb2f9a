//go:build unix

package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestFileLocker_ExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planes.json.lock")
	a := NewFileLocker(path)
	b := NewFileLocker(path)
	ctx := context.Background()

	release, err := a.TryLock(ctx)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	if _, err := b.TryLock(ctx); !errors.Is(err, ErrLocked) {
		t.Fatalf("second TryLock = %v, want ErrLocked", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	release, err = b.TryLock(ctx)
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	_ = release()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("lock file should remain on disk: %v", err)
	}
}

func TestNop(t *testing.T) {
	var l Locker = Nop{}
	r1, err := l.TryLock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r2, err := l.TryLock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_ = r1()
	_ = r2()
}

// Runs only when SKYWATCH_TEST_REDIS points at a disposable Redis server.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("SKYWATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("SKYWATCH_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := "skywatch:test:" + t.Name()
	a := NewRedisLocker(client, key, time.Minute)
	b := NewRedisLocker(client, key, time.Minute)
	ctx := context.Background()

	release, err := a.TryLock(ctx)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if _, err := b.TryLock(ctx); !errors.Is(err, ErrLocked) {
		t.Fatalf("second TryLock = %v, want ErrLocked", err)
	}
	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	release, err = b.TryLock(ctx)
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	_ = release()
}
