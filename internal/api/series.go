package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dkwon/stocklake/internal/model"
)

const dateLayout = "2006-01-02"

// GetDailySeries fetches daily bars and dividend events for one symbol over
// an inclusive date range. Bars with adj_close omitted fall back to close,
// matching upstream behavior for recent dates.
func (c *Client) GetDailySeries(ctx context.Context, sym model.Symbol, start, end time.Time) (*model.Series, error) {
	query := url.Values{}
	query.Set("start", model.Day(start).Format(dateLayout))
	query.Set("end", model.Day(end).Format(dateLayout))

	var resp seriesResponse
	path := fmt.Sprintf("/v1/series/%s/daily", url.PathEscape(string(sym)))
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}

	return resp.toSeries(sym, time.Now().UTC())
}

// toSeries converts the wire payload into domain types. ingestAt stamps
// every row of this collection pass.
func (r *seriesResponse) toSeries(sym model.Symbol, ingestAt time.Time) (*model.Series, error) {
	s := &model.Series{Symbol: sym}
	collectionDate := model.Day(ingestAt)

	for _, b := range r.Bars {
		d, err := time.Parse(dateLayout, b.Date)
		if err != nil {
			return nil, fmt.Errorf("parse bar date %q: %w", b.Date, err)
		}
		adj := b.AdjClose
		if adj.IsZero() {
			adj = b.Close
		}
		s.Prices = append(s.Prices, model.PriceObservation{
			Symbol:   sym,
			Date:     model.Day(d),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: adj,
			Volume:   b.Volume,
			IngestAt: ingestAt,
		})
	}

	for _, dv := range r.Dividends {
		d, err := time.Parse(dateLayout, dv.ExDate)
		if err != nil {
			return nil, fmt.Errorf("parse dividend ex date %q: %w", dv.ExDate, err)
		}
		s.Dividends = append(s.Dividends, model.DividendEvent{
			Symbol:         sym,
			ExDate:         model.Day(d),
			Amount:         dv.Amount,
			CollectionDate: collectionDate,
			IngestAt:       ingestAt,
		})
	}

	return s, nil
}
