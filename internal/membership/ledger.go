package membership

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkwon/stocklake/internal/model"
)

// InvalidEventError reports a membership event that violates the ledger
// invariants. Never auto-corrected; the caller must fix the change log.
type InvalidEventError struct {
	Event  model.MembershipEvent
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid membership event %s %s on %s: %s",
		e.Event.Symbol, e.Event.Action, e.Event.EffectiveDate.Format("2006-01-02"), e.Reason)
}

// Ledger holds the index membership change log and derives, for any date,
// the exact member set. Past events are never mutated; Record only appends.
//
// Snapshots are derived on demand: the number of change events is small
// (dozens per year) while the number of (date x member) pairs is large, so
// storing daily snapshots would create a big redundant table that has to be
// invalidated whenever the log grows. A per-date cache fronts the pure
// derivation; the from-scratch computation stays the source of truth.
type Ledger struct {
	mu       sync.RWMutex
	bySymbol map[model.Symbol][]model.MembershipEvent // sorted by effective date
	all      []model.MembershipEvent                  // sorted by (date, symbol)
	cache    map[time.Time]map[model.Symbol]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		bySymbol: make(map[model.Symbol][]model.MembershipEvent),
		cache:    make(map[time.Time]map[model.Symbol]struct{}),
	}
}

// Record appends one membership event. It fails with *InvalidEventError if
// the event breaks strict Added/Removed alternation for its symbol, shares
// a date with an earlier event for the symbol, or predates the symbol's
// latest recorded event (no retroactive insertion before the high-water
// mark, which keeps derivation monotonic and the cache valid).
func (l *Ledger) Record(ev model.MembershipEvent) error {
	ev.EffectiveDate = model.Day(ev.EffectiveDate)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateLocked(ev); err != nil {
		return err
	}

	l.bySymbol[ev.Symbol] = append(l.bySymbol[ev.Symbol], ev)
	l.insertOrderedLocked(ev)
	l.invalidateFromLocked(ev.EffectiveDate)
	return nil
}

// Load bulk-records events, e.g. from the persisted change log at startup.
// Events may arrive in any order; they are applied in (date, symbol) order.
func (l *Ledger) Load(events []model.MembershipEvent) error {
	sorted := make([]model.MembershipEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := model.Day(sorted[i].EffectiveDate), model.Day(sorted[j].EffectiveDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})
	for _, ev := range sorted {
		if err := l.Record(ev); err != nil {
			return err
		}
	}
	return nil
}

// MembersAt derives the member set for a date: every symbol whose most
// recent event at-or-before the date is Added. Results are cached per date;
// when the previous day is cached the set is advanced incrementally by that
// day's events, which by construction equals the from-scratch derivation.
func (l *Ledger) MembersAt(date time.Time) map[model.Symbol]struct{} {
	d := model.Day(date)

	// Full lock: the cache fill must not interleave with a Record that
	// would invalidate the snapshot being derived.
	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[d]; ok {
		return cloneSet(cached)
	}

	var set map[model.Symbol]struct{}
	if prev, ok := l.cache[d.AddDate(0, 0, -1)]; ok {
		set = cloneSet(prev)
		for _, ev := range l.eventsOnLocked(d) {
			applyEvent(set, ev)
		}
	} else {
		set = l.snapshotLocked(d)
	}
	l.cache[d] = cloneSet(set)
	return set
}

// ChangesBetween returns all events with start <= effective date <= end,
// ordered by (date, symbol).
func (l *Ledger) ChangesBetween(start, end time.Time) []model.MembershipEvent {
	s, e := model.Day(start), model.Day(end)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []model.MembershipEvent
	for _, ev := range l.all {
		if ev.EffectiveDate.Before(s) {
			continue
		}
		if ev.EffectiveDate.After(e) {
			break
		}
		out = append(out, ev)
	}
	return out
}

// Events returns the full ordered change log.
func (l *Ledger) Events() []model.MembershipEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.MembershipEvent, len(l.all))
	copy(out, l.all)
	return out
}

// Len returns the number of recorded events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.all)
}

func (l *Ledger) validateLocked(ev model.MembershipEvent) error {
	if ev.Symbol == "" {
		return &InvalidEventError{Event: ev, Reason: "empty symbol"}
	}
	if ev.Action != model.Added && ev.Action != model.Removed {
		return &InvalidEventError{Event: ev, Reason: fmt.Sprintf("unknown action %q", ev.Action)}
	}

	history := l.bySymbol[ev.Symbol]
	if len(history) == 0 {
		if ev.Action != model.Added {
			return &InvalidEventError{Event: ev, Reason: "first event for symbol must be added"}
		}
		return nil
	}

	last := history[len(history)-1]
	if !ev.EffectiveDate.After(last.EffectiveDate) {
		if ev.EffectiveDate.Equal(last.EffectiveDate) {
			return &InvalidEventError{Event: ev, Reason: "event shares a date with an earlier event for the symbol"}
		}
		return &InvalidEventError{Event: ev, Reason: fmt.Sprintf(
			"effective date predates the symbol's latest event (%s)", last.EffectiveDate.Format("2006-01-02"))}
	}
	if ev.Action == last.Action {
		return &InvalidEventError{Event: ev, Reason: fmt.Sprintf("consecutive %s events", ev.Action)}
	}
	return nil
}

// insertOrderedLocked keeps l.all sorted by (date, symbol). Record only
// accepts events at-or-after each symbol's high-water mark, but events for
// different symbols may still arrive out of global order.
func (l *Ledger) insertOrderedLocked(ev model.MembershipEvent) {
	i := sort.Search(len(l.all), func(i int) bool {
		if !l.all[i].EffectiveDate.Equal(ev.EffectiveDate) {
			return l.all[i].EffectiveDate.After(ev.EffectiveDate)
		}
		return l.all[i].Symbol > ev.Symbol
	})
	l.all = append(l.all, model.MembershipEvent{})
	copy(l.all[i+1:], l.all[i:])
	l.all[i] = ev
}

// invalidateFromLocked drops cached snapshots at or after the given date;
// earlier snapshots cannot be affected by the new event.
func (l *Ledger) invalidateFromLocked(date time.Time) {
	for d := range l.cache {
		if !d.Before(date) {
			delete(l.cache, d)
		}
	}
}

// snapshotLocked is the from-scratch derivation: replay all events with
// effective date <= d.
func (l *Ledger) snapshotLocked(d time.Time) map[model.Symbol]struct{} {
	set := make(map[model.Symbol]struct{})
	for _, ev := range l.all {
		if ev.EffectiveDate.After(d) {
			break
		}
		applyEvent(set, ev)
	}
	return set
}

func (l *Ledger) eventsOnLocked(d time.Time) []model.MembershipEvent {
	var out []model.MembershipEvent
	for _, ev := range l.all {
		if ev.EffectiveDate.After(d) {
			break
		}
		if ev.EffectiveDate.Equal(d) {
			out = append(out, ev)
		}
	}
	return out
}

func applyEvent(set map[model.Symbol]struct{}, ev model.MembershipEvent) {
	if ev.Action == model.Added {
		set[ev.Symbol] = struct{}{}
	} else {
		delete(set, ev.Symbol)
	}
}

func cloneSet(in map[model.Symbol]struct{}) map[model.Symbol]struct{} {
	out := make(map[model.Symbol]struct{}, len(in))
	for s := range in {
		out[s] = struct{}{}
	}
	return out
}
