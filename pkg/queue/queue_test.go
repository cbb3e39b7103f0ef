package queue

import (
	"context"
	"testing"
	"time"
)

type fakeJob struct {
	work   []byte
	result []byte
	got    bool
}

func (j *fakeJob) GetWork() []byte { return j.work }
func (j *fakeJob) PutResult(result []byte) {
	j.result = result
	j.got = true
}

func TestQueue_FIFOOrdering(t *testing.T) {
	q := New(10)
	for i := 0; i < 5; i++ {
		q.PutBlocking(&fakeJob{work: []byte{byte(i)}})
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		item, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		job := item.(*fakeJob)
		if job.work[0] != byte(i) {
			t.Errorf("Get() order[%d] = %d, want %d", i, job.work[0], i)
		}
	}
}

func TestQueue_BlocksWhenFull(t *testing.T) {
	q := New(2)
	q.PutBlocking(&fakeJob{})
	q.PutBlocking(&fakeJob{})

	done := make(chan struct{})
	go func() {
		q.PutBlocking(&fakeJob{})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Put on full queue returned before a slot was freed")
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := q.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Put did not unblock after a slot was freed")
	}
}

func TestQueue_QuitSentinelRoundTrips(t *testing.T) {
	q := New(5)
	q.PutBlocking(Quit)

	item, err := q.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !IsQuit(item) {
		t.Errorf("IsQuit(%v) = false, want true", item)
	}
}

func TestQueue_BlocksWhenEmpty(t *testing.T) {
	q := New(5)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := q.Get(ctx); err == nil {
		t.Fatal("Get on empty queue returned before an item was published")
	}
}
