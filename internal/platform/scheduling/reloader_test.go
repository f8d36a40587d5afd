package scheduling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ddx/ddx/internal/domain/knowledge"
)

type fakeTarget struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (f *fakeTarget) Reload(ctx context.Context) (knowledge.Stats, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return knowledge.Stats{}, ctx.Err()
		}
	}
	if f.err != nil {
		return knowledge.Stats{}, f.err
	}
	return knowledge.Stats{Facts: 3}, nil
}

func TestNewReloader_InvalidSchedule(t *testing.T) {
	for _, sched := range []string{"", "every minute", "* * *", "61 * * * *"} {
		if _, err := NewReloader(sched, &fakeTarget{}, 0, zerolog.Nop()); err == nil {
			t.Errorf("expected error for schedule %q", sched)
		}
	}
}

func TestNewReloader_ValidSchedules(t *testing.T) {
	for _, sched := range []string{"*/5 * * * *", "0 3 * * *", "@hourly", "@every 15m"} {
		r, err := NewReloader(sched, &fakeTarget{}, 0, zerolog.Nop())
		if err != nil {
			t.Errorf("schedule %q: unexpected error %v", sched, err)
			continue
		}
		if r.Status().Schedule != sched {
			t.Errorf("expected schedule %q in status, got %q", sched, r.Status().Schedule)
		}
	}
}

func TestRunNow_RecordsSuccess(t *testing.T) {
	target := &fakeTarget{}
	r, err := NewReloader("@hourly", target, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	st := r.Status()
	if st.Runs != 1 || st.Failures != 0 || st.LastError != "" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.LastRun.IsZero() {
		t.Error("expected LastRun to be set")
	}
}

func TestRunNow_RecordsFailureThenRecovery(t *testing.T) {
	target := &fakeTarget{err: errors.New("source unavailable")}
	r, _ := NewReloader("@hourly", target, 0, zerolog.Nop())

	if err := r.RunNow(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if st := r.Status(); st.Failures != 1 || st.LastError != "source unavailable" {
		t.Errorf("unexpected status after failure %+v", st)
	}

	target.err = nil
	if err := r.RunNow(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st := r.Status(); st.Runs != 2 || st.Failures != 1 || st.LastError != "" {
		t.Errorf("unexpected status after recovery %+v", st)
	}
}

func TestRunNow_Timeout(t *testing.T) {
	target := &fakeTarget{delay: time.Second}
	r, _ := NewReloader("@hourly", target, 20*time.Millisecond, zerolog.Nop())

	err := r.RunNow(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestStartStop_RunsOnSchedule(t *testing.T) {
	target := &fakeTarget{}
	r, err := NewReloader("@every 1s", target, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Start()

	deadline := time.Now().Add(5 * time.Second)
	for target.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)

	if target.calls.Load() == 0 {
		t.Fatal("expected at least one scheduled reload")
	}
	if r.Status().Runs == 0 {
		t.Error("expected status to count the scheduled run")
	}
}
