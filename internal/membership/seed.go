package membership

import (
	"time"

	"github.com/dkwon/stocklake/internal/model"
)

// SeedChanges returns a curated bootstrap change log of well-known index
// additions and removals, usable when no upstream change feed is
// configured. Removals are paired with their historical additions so the
// alternation invariant holds.
func SeedChanges() []model.MembershipEvent {
	add := func(sym string, y int, m time.Month, d int) model.MembershipEvent {
		return model.MembershipEvent{Symbol: model.Symbol(sym), EffectiveDate: model.Date(y, m, d), Action: model.Added}
	}
	remove := func(sym string, y int, m time.Month, d int) model.MembershipEvent {
		return model.MembershipEvent{Symbol: model.Symbol(sym), EffectiveDate: model.Date(y, m, d), Action: model.Removed}
	}

	return []model.MembershipEvent{
		add("GE", 1996, time.January, 2),
		add("AMZN", 1997, time.May, 15),
		add("LEH", 1998, time.January, 2),
		add("NVDA", 1999, time.January, 22),
		add("AAPL", 2000, time.January, 1),
		add("ETFC", 2004, time.July, 1),
		add("GOOGL", 2004, time.August, 19),
		remove("LEH", 2008, time.September, 15),
		add("META", 2012, time.May, 18),
		remove("GE", 2018, time.June, 26),
		remove("ETFC", 2020, time.August, 31),
		add("TSLA", 2020, time.December, 21),
		add("CEG", 2022, time.March, 18),
		add("GEHC", 2023, time.June, 20),
		add("SMCI", 2024, time.January, 22),
	}
}
