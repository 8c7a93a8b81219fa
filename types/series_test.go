package types

import (
	"testing"
	"time"
)

func hourSlot(day, hour int) time.Time {
	return time.Date(2023, 6, day, hour, 0, 0, 0, time.UTC)
}

func TestSeriesMergeIdempotent(t *testing.T) {
	s := Series{hourSlot(15, 10): 0.1}
	entries := Series{hourSlot(15, 11): 0.2, hourSlot(15, 12): 0.3}

	s.Merge(entries)
	s.Merge(entries)

	if len(s) != 3 {
		t.Fatalf("expected 3 entries after double merge, got %d", len(s))
	}
	if s[hourSlot(15, 11)] != 0.2 {
		t.Errorf("expected 0.2 at 11h, got %f", s[hourSlot(15, 11)])
	}
}

func TestSeriesMergeLastWriterWins(t *testing.T) {
	s := Series{hourSlot(15, 10): 0.1}
	s.Merge(Series{hourSlot(15, 10): 0.5})
	if s[hourSlot(15, 10)] != 0.5 {
		t.Errorf("expected overwrite to 0.5, got %f", s[hourSlot(15, 10)])
	}
}

func TestSeriesSortedKeys(t *testing.T) {
	s := Series{
		hourSlot(15, 12): 0.3,
		hourSlot(15, 10): 0.1,
		hourSlot(15, 11): 0.2,
	}
	keys := s.SortedKeys()
	for i := 1; i < len(keys); i++ {
		if !keys[i-1].Before(keys[i]) {
			t.Errorf("keys not sorted: %v before %v", keys[i-1], keys[i])
		}
	}
}

func TestSeriesPrune(t *testing.T) {
	s := Series{}
	for h := 0; h < 48; h++ {
		s[hourSlot(14, 0).Add(time.Duration(h)*time.Hour)] = float64(h)
	}
	cutoff := hourSlot(15, 0)
	s.Prune(cutoff)

	if len(s) != 24 {
		t.Fatalf("expected 24 entries after prune, got %d", len(s))
	}
	for ts := range s {
		if ts.Before(cutoff) {
			t.Errorf("entry %v survived prune before cutoff %v", ts, cutoff)
		}
	}
}

func TestSeriesRoundTrip(t *testing.T) {
	s := Series{}
	slot := hourSlot(15, 10)
	s.Merge(Series{slot: 0.12345})
	got, ok := s[slot]
	if !ok {
		t.Fatal("inserted hour slot not found")
	}
	if got != 0.12345 {
		t.Errorf("expected 0.12345, got %f", got)
	}
}
