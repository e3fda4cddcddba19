package backfill

import (
	"time"

	"github.com/google/uuid"

	"github.com/dkwon/stocklake/internal/model"
)

// UnitResult records the outcome of one processed (date, layer) unit.
type UnitResult struct {
	Date          time.Time
	Layer         model.Layer
	Status        model.UnitStatus
	Attempted     int
	FailedSymbols []model.Symbol
}

// Report summarizes a Run. Units holds every unit this run processed;
// Skipped counts units a previous run already finished.
type Report struct {
	RunID   uuid.UUID
	Units   []UnitResult
	Skipped int
}

// Done returns the number of units that reached Done this run.
func (r *Report) Done() int {
	n := 0
	for _, u := range r.Units {
		if u.Status == model.UnitDone {
			n++
		}
	}
	return n
}

// Failed returns the number of units that failed this run.
func (r *Report) Failed() int {
	n := 0
	for _, u := range r.Units {
		if u.Status == model.UnitFailed {
			n++
		}
	}
	return n
}

// Complete reports whether every processed unit finished Done.
func (r *Report) Complete() bool {
	return r.Failed() == 0
}
