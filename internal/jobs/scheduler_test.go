package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeRunStore records lifecycle calls in memory.
type fakeRunStore struct {
	mu        sync.Mutex
	started   []string
	completed []Result
	failed    []string
	startErr  error
	done      chan struct{}
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{done: make(chan struct{}, 8)}
}

func (s *fakeRunStore) Start(_ context.Context, jobName, triggeredBy string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return "", s.startErr
	}
	s.started = append(s.started, jobName+"/"+triggeredBy)
	return "run-1", nil
}

func (s *fakeRunStore) Complete(_ context.Context, _ string, processed, inserted, updated int) error {
	s.mu.Lock()
	s.completed = append(s.completed, Result{Processed: processed, Inserted: inserted, Updated: updated})
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *fakeRunStore) Fail(_ context.Context, _ string, errorMessage string) error {
	s.mu.Lock()
	s.failed = append(s.failed, errorMessage)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *fakeRunStore) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}
}

// fakeJob runs a configurable body.
type fakeJob struct {
	name string
	run  func(ctx context.Context) (Result, error)
}

func (j *fakeJob) Name() string                            { return j.name }
func (j *fakeJob) Run(ctx context.Context) (Result, error) { return j.run(ctx) }

// ---------------------------------------------------------------------------
// Trigger
// ---------------------------------------------------------------------------

func TestTrigger_UnknownJob(t *testing.T) {
	s := NewScheduler(newFakeRunStore())
	if _, err := s.Trigger(context.Background(), "nope", "user-1"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestTrigger_RecordsCompletion(t *testing.T) {
	store := newFakeRunStore()
	s := NewScheduler(store)
	s.Register(&fakeJob{name: "price_update", run: func(context.Context) (Result, error) {
		return Result{Processed: 10, Inserted: 4, Updated: 6}, nil
	}}, 0)

	runID, err := s.Trigger(context.Background(), "price_update", "user-1")
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if runID != "run-1" {
		t.Errorf("runID = %q, want run-1", runID)
	}

	store.waitDone(t)
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.started) != 1 || store.started[0] != "price_update/user-1" {
		t.Errorf("started = %v", store.started)
	}
	if len(store.completed) != 1 || store.completed[0].Processed != 10 {
		t.Errorf("completed = %v", store.completed)
	}
}

func TestTrigger_RecordsFailure(t *testing.T) {
	store := newFakeRunStore()
	s := NewScheduler(store)
	s.Register(&fakeJob{name: "pra_scan", run: func(context.Context) (Result, error) {
		return Result{}, errors.New("upstream down")
	}}, 0)

	if _, err := s.Trigger(context.Background(), "pra_scan", "user-1"); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}

	store.waitDone(t)
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.failed) != 1 || store.failed[0] != "upstream down" {
		t.Errorf("failed = %v", store.failed)
	}
}

func TestTrigger_RecordsPanic(t *testing.T) {
	store := newFakeRunStore()
	s := NewScheduler(store)
	s.Register(&fakeJob{name: "cleanup", run: func(context.Context) (Result, error) {
		panic("boom")
	}}, 0)

	if _, err := s.Trigger(context.Background(), "cleanup", "user-1"); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}

	store.waitDone(t)
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.failed) != 1 {
		t.Fatalf("failed = %v, want one entry", store.failed)
	}
}

func TestTrigger_StartErrorPropagates(t *testing.T) {
	store := newFakeRunStore()
	store.startErr = errors.New("db error")
	s := NewScheduler(store)
	s.Register(&fakeJob{name: "cleanup", run: func(context.Context) (Result, error) {
		return Result{}, nil
	}}, 0)

	if _, err := s.Trigger(context.Background(), "cleanup", "user-1"); err == nil {
		t.Error("expected error when run record cannot be created")
	}
}

// ---------------------------------------------------------------------------
// Scheduled runs
// ---------------------------------------------------------------------------

func TestScheduler_RunsOnInterval(t *testing.T) {
	store := newFakeRunStore()
	s := NewScheduler(store)
	s.Register(&fakeJob{name: "cleanup", run: func(context.Context) (Result, error) {
		return Result{Processed: 1}, nil
	}}, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	store.waitDone(t)
	s.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.started) == 0 {
		t.Fatal("expected at least one scheduled run")
	}
	if store.started[0] != "cleanup/scheduler" {
		t.Errorf("started[0] = %q, want cleanup/scheduler", store.started[0])
	}
}
