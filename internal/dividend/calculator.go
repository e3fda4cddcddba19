// Package dividend derives trailing-twelve-month dividend metrics from
// Bronze observations.
package dividend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkwon/stocklake/internal/model"
)

// ErrMissingPriceData means no price observation exists at or before the
// reference date. Soft: the metric is not yet computable for that
// (symbol, date) and the caller skips the upsert; a later run retries once
// price data exists.
var ErrMissingPriceData = errors.New("no price observation at or before reference date")

// Reader is the Bronze read side the calculator depends on. Implemented by
// the storage package.
type Reader interface {
	LatestPriceAt(ctx context.Context, sym model.Symbol, asOf time.Time) (decimal.Decimal, bool, error)
	DividendEventsInWindow(ctx context.Context, sym model.Symbol, after, until time.Time) ([]model.DividendEvent, error)
}

// Calculator computes per-symbol dividend metrics for a reference date.
type Calculator struct {
	reader Reader
	logger *slog.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(reader Reader, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{reader: reader, logger: logger}
}

var hundred = decimal.NewFromInt(100)

// Compute derives the metric for one symbol as of a date. The trailing
// window is (asOf-365d, asOf] over ex-dates; dividend_ttm is the amount sum
// over that window, div_count_1y the event count, last_div_date the max
// ex-date (nil when none). The yield is 100 * ttm / last close when the
// close is positive, nil otherwise; the last close is the most recent
// observation with date <= asOf.
func (c *Calculator) Compute(ctx context.Context, sym model.Symbol, asOf time.Time) (model.DividendMetric, error) {
	d := model.Day(asOf)

	price, found, err := c.reader.LatestPriceAt(ctx, sym, d)
	if err != nil {
		return model.DividendMetric{}, fmt.Errorf("load latest price for %s: %w", sym, err)
	}
	if !found {
		return model.DividendMetric{}, fmt.Errorf("%s as of %s: %w", sym, d.Format("2006-01-02"), ErrMissingPriceData)
	}

	windowStart := d.AddDate(0, 0, -365)
	events, err := c.reader.DividendEventsInWindow(ctx, sym, windowStart, d)
	if err != nil {
		return model.DividendMetric{}, fmt.Errorf("load dividend events for %s: %w", sym, err)
	}

	metric := model.DividendMetric{
		Symbol:      sym,
		Date:        d,
		LastPrice:   price,
		DividendTTM: decimal.Zero,
		DivCount1Y:  len(events),
		UpdatedAt:   time.Now().UTC(),
	}

	for _, ev := range events {
		metric.DividendTTM = metric.DividendTTM.Add(ev.Amount)
		if metric.LastDivDate == nil || ev.ExDate.After(*metric.LastDivDate) {
			exDate := ev.ExDate
			metric.LastDivDate = &exDate
		}
	}

	if price.IsPositive() {
		y := metric.DividendTTM.Mul(hundred).Div(price)
		metric.DividendYieldTTM = &y
	}

	return metric, nil
}
