package storage

import (
	"path/filepath"
	"testing"
)

func TestJournalWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), JournalFileName)

	j, err := CreateJournal(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	records := []RunRecord{
		{Run: 1, Angle: 1.25, Axis: [3]float64{0, 0, 1}, Offset: 12.5, BoundsMin: [3]float64{-1, -1, 10}, BoundsMax: [3]float64{1, 1, 12}, Frames: 500},
		{Run: 2, Angle: 4.5, Axis: [3]float64{1, 0, 0}, Offset: 10, BoundsMin: [3]float64{-2, -1, 10}, BoundsMax: [3]float64{2, 1, 11}, Frames: 500, Movie: "run_0002.avi"},
	}
	for _, rec := range records {
		if err := j.Write(rec); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	got, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(got))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Errorf("record %d: expected %+v, got %+v", i, records[i], got[i])
		}
	}

	if err := j.Write(records[0]); err == nil {
		t.Error("expected error writing to a closed journal")
	}
}
