package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNilLockerIsNotConfigured(t *testing.T) {
	var l *Locker
	if _, _, err := l.TryLock(context.Background(), "k", time.Second); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := l.Release(context.Background(), "k", "token"); err != nil {
		t.Fatalf("release on nil locker should be a no-op, got %v", err)
	}
	if NewLocker(nil) != nil {
		t.Fatalf("expected nil locker without a client")
	}
}
