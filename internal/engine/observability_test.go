package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestExpvarRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "handle_message", true, 10*time.Millisecond)
	rec.Observe(ctx, "handle_message", true, 5*time.Millisecond)
	rec.Observe(ctx, "handle_message", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Second) // dropped

	snap := rec.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	stats := snap["handle_message"]
	if stats.Success != 2 || stats.Error != 1 {
		t.Fatalf("counts = %+v", stats)
	}
	if stats.TotalDurationMS < 16 || stats.TotalDurationMS > 16.001 {
		t.Fatalf("total duration = %v", stats.TotalDurationMS)
	}

	// Snapshot is a detached copy.
	snap["handle_message"] = OperationStats{}
	if rec.Snapshot()["handle_message"].Success != 2 {
		t.Fatalf("snapshot aliased internal state")
	}
}

func TestJSONTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := NewJSONTracer(&buf)

	_, span := tr.Start(context.Background(), "handle_message")
	span.End(nil)
	_, span = tr.Start(context.Background(), "handle_message")
	span.End(errors.New("boom"))

	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Error != "" || entries[1].Error != "boom" {
		t.Fatalf("errors = %q %q", entries[0].Error, entries[1].Error)
	}

	dec := json.NewDecoder(&buf)
	for i := 0; i < 2; i++ {
		var entry JSONTraceEntry
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode line %d: %v", i, err)
		}
		if entry.Operation != "handle_message" || entry.StartedAt.IsZero() {
			t.Fatalf("line %d = %+v", i, entry)
		}
	}
}
