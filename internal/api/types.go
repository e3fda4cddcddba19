package api

import "github.com/shopspring/decimal"

// membersResponse is the wire shape of the index member-list endpoint.
type membersResponse struct {
	Index   string   `json:"index"`
	AsOf    string   `json:"as_of"`
	Symbols []string `json:"symbols"`
}

// seriesResponse is the wire shape of the daily series endpoint: bars and
// dividend events for one symbol over one date range.
type seriesResponse struct {
	Symbol    string        `json:"symbol"`
	Bars      []apiBar      `json:"bars"`
	Dividends []apiDividend `json:"dividends"`
}

type apiBar struct {
	Date     string          `json:"date"` // YYYY-MM-DD
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	AdjClose decimal.Decimal `json:"adj_close"`
	Volume   int64           `json:"volume"`
}

type apiDividend struct {
	ExDate string          `json:"ex_date"` // YYYY-MM-DD
	Amount decimal.Decimal `json:"amount"`
}
