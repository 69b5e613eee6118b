package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsFirstError(t *testing.T) {
	s := New(context.Background())
	boom := errors.New("boom")
	s.Go("fails", func(ctx context.Context) error { return boom })
	s.Go("clean", func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait err = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "fails") {
		t.Fatalf("error should carry the task name: %v", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go0("panics", func(ctx context.Context) { panic("oops") })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("panic did not cancel the supervisor")
	}
	snap := s.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].Panics != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGoRestartRetriesUntilCancelled(t *testing.T) {
	s := New(context.Background())
	var runs int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) < 3 {
			return errors.New("transient")
		}
		<-ctx.Done()
		return ctx.Err()
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&runs) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("runs = %d, want 3", atomic.LoadInt32(&runs))
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
