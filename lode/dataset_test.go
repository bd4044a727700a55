package lode

import (
	"errors"
	"slices"
	"testing"
)

func newTestRecords(t *testing.T) *Records {
	t.Helper()
	store, err := Open(Config{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	r, err := NewRecords(store)
	if err != nil {
		t.Fatalf("NewRecords failed: %v", err)
	}
	return r
}

func row(day, frameID, kind string) map[string]any {
	return map[string]any{KeyDay: day, KeyFrameID: frameID, "record_kind": kind}
}

func TestRecords_WriteAndScan(t *testing.T) {
	r := newTestRecords(t)
	id, err := r.WriteRecords(t.Context(), []map[string]any{
		row("2026-02-07", "f1", "frame"),
		row("2026-02-07", "f1", "chunk"),
	})
	if err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if id == "" {
		t.Fatal("WriteRecords returned an empty snapshot id")
	}

	var ids []string
	var kinds []any
	err = r.ScanRecords(t.Context(), nil, func(snapshotID string, records []map[string]any) error {
		ids = append(ids, snapshotID)
		for _, rec := range records {
			kinds = append(kinds, rec["record_kind"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanRecords failed: %v", err)
	}
	if !slices.Equal(ids, []string{id}) {
		t.Errorf("snapshots = %v, want [%s]", ids, id)
	}
	if !slices.Equal(kinds, []any{"frame", "chunk"}) {
		t.Errorf("record kinds = %v, want [frame chunk]", kinds)
	}
}

func TestRecords_ScanPartition(t *testing.T) {
	r := newTestRecords(t)
	for _, rec := range []map[string]any{
		row("2026-02-07", "f1", "frame"),
		row("2026-02-07", "f10", "frame"),
		row("2026-02-08", "f2", "frame"),
	} {
		if _, err := r.WriteRecords(t.Context(), []map[string]any{rec}); err != nil {
			t.Fatalf("WriteRecords failed: %v", err)
		}
	}

	tests := []struct {
		name string
		p    Partition
		want []string
	}{
		{"all", nil, []string{"f1", "f10", "f2"}},
		{"empty values", Partition{KeyDay: "", KeyFrameID: ""}, []string{"f1", "f10", "f2"}},
		{"day", Partition{KeyDay: "2026-02-07"}, []string{"f1", "f10"}},
		{"exact frame", Partition{KeyFrameID: "f1"}, []string{"f1"}},
		{"day and frame", Partition{KeyDay: "2026-02-08", KeyFrameID: "f2"}, []string{"f2"}},
		{"no match", Partition{KeyDay: "2025-01-01"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := r.ScanRecords(t.Context(), tt.p, func(_ string, records []map[string]any) error {
				for _, rec := range records {
					got = append(got, rec[KeyFrameID].(string))
				}
				return nil
			})
			if err != nil {
				t.Fatalf("ScanRecords failed: %v", err)
			}
			slices.Sort(got)
			if !slices.Equal(got, tt.want) {
				t.Errorf("frames = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecords_SharedStore(t *testing.T) {
	store, err := Open(Config{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w, err := NewRecords(store)
	if err != nil {
		t.Fatalf("NewRecords failed: %v", err)
	}
	if _, err := w.WriteRecords(t.Context(), []map[string]any{row("2026-02-07", "f1", "frame")}); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	r, err := NewRecords(store)
	if err != nil {
		t.Fatalf("NewRecords failed: %v", err)
	}
	n := 0
	err = r.ScanRecords(t.Context(), nil, func(_ string, records []map[string]any) error {
		n += len(records)
		return nil
	})
	if err != nil || n != 1 {
		t.Errorf("ScanRecords = %d records, %v, want 1, nil", n, err)
	}
}

func TestRecords_Empty(t *testing.T) {
	r := newTestRecords(t)
	called := false
	err := r.ScanRecords(t.Context(), nil, func(string, []map[string]any) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Errorf("ScanRecords on empty dataset = called %v, %v, want false, nil", called, err)
	}
	if _, err := r.WriteRecords(t.Context(), nil); err == nil {
		t.Error("WriteRecords(nil) succeeded")
	}
}

func TestRecords_ScanStopsOnError(t *testing.T) {
	r := newTestRecords(t)
	for _, id := range []string{"f1", "f2"} {
		if _, err := r.WriteRecords(t.Context(), []map[string]any{row("2026-02-07", id, "frame")}); err != nil {
			t.Fatalf("WriteRecords failed: %v", err)
		}
	}
	stop := errors.New("stop")
	calls := 0
	err := r.ScanRecords(t.Context(), nil, func(string, []map[string]any) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("ScanRecords = %d calls, %v, want 1, %v", calls, err, stop)
	}
}

func TestHasPartitionSegment(t *testing.T) {
	const path = "datasets/imagestream/partitions/day=2026-02-07/frame_id=f10/segments/1/data/part.jsonl"
	tests := []struct {
		key, value string
		want       bool
	}{
		{KeyFrameID, "f10", true},
		{KeyFrameID, "f1", false},
		{KeyDay, "2026-02-07", true},
		{KeyDay, "2026-02", false},
		{"frame", "f10", false},
	}
	for _, tt := range tests {
		if got := hasPartitionSegment(path, tt.key, tt.value); got != tt.want {
			t.Errorf("hasPartitionSegment(%s=%s) = %v, want %v", tt.key, tt.value, got, tt.want)
		}
	}
}
