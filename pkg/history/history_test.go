package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/devolvehq/devolve/pkg/eventbus"
)

func TestRecorder_RecordsDispatchesFromBus(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	r, err := Open(ctx, Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	bus := eventbus.New()
	stop := make(chan struct{})
	go r.Run(bus, stop)
	defer close(stop)

	// Give Run a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(eventbus.Event{Topic: eventbus.TopicDispatch, WorkerName: "w1", Outcome: "success"})
	bus.Publish(eventbus.Event{Topic: eventbus.TopicDispatch, WorkerName: "w2", Outcome: "transport_error"})

	deadline := time.Now().Add(2 * time.Second)
	var records []DispatchRecord
	for time.Now().Before(deadline) {
		records, err = r.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(records) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].WorkerName != "w2" || records[0].Outcome != "transport_error" {
		t.Fatalf("newest record = %+v, want w2/transport_error first", records[0])
	}
}
