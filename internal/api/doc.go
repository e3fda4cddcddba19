// Package api implements the market-data REST API client.
//
// Endpoints:
//   - GET /v1/index/{index}/members?as_of=  — point-in-time member list
//   - GET /v1/series/{symbol}/daily?start=&end= — daily bars + dividends
//
// The client performs single attempts and surfaces typed *APIError values;
// retry and backoff policy belongs to the fetch package.
package api
