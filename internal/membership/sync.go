package membership

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dkwon/stocklake/internal/model"
)

// MembersSource provides the authoritative member list as of a date.
// Implemented by the api client.
type MembersSource interface {
	GetIndexMembers(ctx context.Context, asOf time.Time) ([]model.Symbol, error)
}

// SyncFromSource diffs the upstream member list against the ledger's
// derived snapshot for asOf and records the synthesized add/remove events.
// It returns the events that were applied. Symbols appearing upstream but
// not in the snapshot become Added events effective asOf; symbols in the
// snapshot but missing upstream become Removed events.
func (l *Ledger) SyncFromSource(ctx context.Context, src MembersSource, asOf time.Time, logger *slog.Logger) ([]model.MembershipEvent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := model.Day(asOf)

	upstream, err := src.GetIndexMembers(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("fetch index members: %w", err)
	}

	current := l.MembersAt(d)
	upstreamSet := make(map[model.Symbol]struct{}, len(upstream))
	for _, s := range upstream {
		upstreamSet[s] = struct{}{}
	}

	var pending []model.MembershipEvent
	for s := range upstreamSet {
		if _, ok := current[s]; !ok {
			pending = append(pending, model.MembershipEvent{Symbol: s, EffectiveDate: d, Action: model.Added})
		}
	}
	for s := range current {
		if _, ok := upstreamSet[s]; !ok {
			pending = append(pending, model.MembershipEvent{Symbol: s, EffectiveDate: d, Action: model.Removed})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Symbol < pending[j].Symbol })

	for _, ev := range pending {
		if err := l.Record(ev); err != nil {
			return nil, err
		}
	}

	if len(pending) > 0 {
		logger.Info("membership synced from source",
			"as_of", d.Format("2006-01-02"),
			"changes", len(pending),
			"members", len(upstreamSet),
		)
	}
	return pending, nil
}
