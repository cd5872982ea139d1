package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type mockTimeProvider struct {
	mutex       sync.Mutex
	currentTime time.Time
}

func (mtp *mockTimeProvider) Now() time.Time {
	mtp.mutex.Lock()
	defer mtp.mutex.Unlock()
	return mtp.currentTime
}

func (mtp *mockTimeProvider) Add(d time.Duration) {
	mtp.mutex.Lock()
	mtp.currentTime = mtp.currentTime.Add(d)
	mtp.mutex.Unlock()
}

func newTestRun(handle string, now time.Time) *Run {
	ctx, cancel := context.WithCancel(context.Background())
	return &Run{
		Handle:     handle,
		DocumentID: "doc-" + handle,
		Stages:     []StageName{StageEmbed},
		EnqueuedAt: now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func TestRunStoreCancel(t *testing.T) {
	store := NewRunStore(discardLogger())

	run := newTestRun("h1", time.Now())
	store.Put(run)

	if !store.Cancel("h1") {
		t.Fatal("Cancel() returned false for known handle")
	}
	select {
	case <-run.ctx.Done():
	default:
		t.Error("run context not cancelled")
	}

	if store.Cancel("unknown") {
		t.Error("Cancel() returned true for unknown handle")
	}
}

func TestRunStoreCleanupExpiresFinishedRuns(t *testing.T) {
	mtp := &mockTimeProvider{currentTime: time.Now()}
	timeProvider = mtp
	defer func() { timeProvider = realTimeProvider{} }()

	store := NewRunStore(discardLogger())
	threshold := 5 * time.Minute

	finished := newTestRun("finished", mtp.Now())
	finished.markCompleted(mtp.Now())
	store.Put(finished)

	active := newTestRun("active", mtp.Now())
	store.Put(active)

	mtp.Add(threshold + time.Second)
	store.cleanup(threshold)

	if _, ok := store.Get("finished"); ok {
		t.Error("expired finished run not cleaned up")
	}
	if _, ok := store.Get("active"); !ok {
		t.Error("active run removed by cleanup")
	}

	// A freshly finished run inside the window survives.
	recent := newTestRun("recent", mtp.Now())
	recent.markCompleted(mtp.Now())
	store.Put(recent)
	store.cleanup(threshold)
	if _, ok := store.Get("recent"); !ok {
		t.Error("recently finished run removed before retention expired")
	}
}

func TestRunStoreConcurrentAccess(t *testing.T) {
	mtp := &mockTimeProvider{currentTime: time.Now()}
	timeProvider = mtp
	defer func() { timeProvider = realTimeProvider{} }()

	store := NewRunStore(discardLogger())
	store.StartCleanup(time.Minute, 10*time.Millisecond)
	defer store.StopCleanup()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle := fmt.Sprintf("h%d", i)
			run := newTestRun(handle, mtp.Now())
			store.Put(run)
			run.markCompleted(mtp.Now())
			store.Get(handle)
			store.Cancel(handle)
		}(i)
	}

	for i := 0; i < 5; i++ {
		mtp.Add(30 * time.Second)
		time.Sleep(15 * time.Millisecond)
	}
	wg.Wait()
}
