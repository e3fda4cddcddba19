package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dkwon/stocklake/internal/model"
	"github.com/dkwon/stocklake/internal/symbol"
)

// GetIndexMembers fetches the tracked index's member list as of a date and
// normalizes the raw exchange tickers to canonical form.
func (c *Client) GetIndexMembers(ctx context.Context, asOf time.Time) ([]model.Symbol, error) {
	query := url.Values{}
	query.Set("as_of", model.Day(asOf).Format(dateLayout))

	var resp membersResponse
	path := fmt.Sprintf("/v1/index/%s/members", url.PathEscape(c.indexName))
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}

	members := symbol.NormalizeAll(resp.Symbols)
	c.logger.Debug("fetched index members",
		"index", c.indexName,
		"as_of", resp.AsOf,
		"count", len(members),
	)
	return members, nil
}
