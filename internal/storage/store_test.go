package storage

import (
	"testing"

	"github.com/dkwon/stocklake/internal/model"
)

func TestSymbolConversionRoundTrip(t *testing.T) {
	in := []model.Symbol{"AAPL", "BRK-B"}

	strs := toStrings(in)
	if len(strs) != 2 || strs[0] != "AAPL" || strs[1] != "BRK-B" {
		t.Errorf("toStrings = %v", strs)
	}

	back := toSymbols(strs)
	if len(back) != 2 || back[0] != in[0] || back[1] != in[1] {
		t.Errorf("toSymbols = %v, want %v", back, in)
	}
}

func TestToSymbols_EmptyIsNil(t *testing.T) {
	if got := toSymbols(nil); got != nil {
		t.Errorf("toSymbols(nil) = %v, want nil", got)
	}
	if got := toSymbols([]string{}); got != nil {
		t.Errorf("toSymbols(empty) = %v, want nil", got)
	}
}

func TestStore_StatsCounters(t *testing.T) {
	s := New(nil, nil)

	s.recordInserts(10, 2)
	s.recordInserts(5, 0)
	s.recordUpserts(3)
	s.recordError()

	stats := s.Stats()
	if stats.Inserts != 15 {
		t.Errorf("Inserts = %d, want 15", stats.Inserts)
	}
	if stats.Conflicts != 2 {
		t.Errorf("Conflicts = %d, want 2", stats.Conflicts)
	}
	if stats.Upserts != 3 {
		t.Errorf("Upserts = %d, want 3", stats.Upserts)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
}
