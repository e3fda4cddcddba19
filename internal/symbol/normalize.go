// Package symbol normalizes raw exchange tickers into the canonical form
// the upstream data source expects.
package symbol

import (
	"errors"
	"strings"

	"github.com/dkwon/stocklake/internal/model"
)

// ErrInvalidSymbol is returned for empty or whitespace-only input.
var ErrInvalidSymbol = errors.New("invalid symbol")

// Normalize maps a raw exchange ticker to canonical form: trimmed,
// upper-cased, with class-share dots replaced by hyphens ("BRK.B" -> "BRK-B").
// Already-canonical input passes through unchanged, so Normalize is
// idempotent. Pure; the only failure mode is empty input.
func Normalize(raw string) (model.Symbol, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidSymbol
	}
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "-")
	return model.Symbol(s), nil
}

// NormalizeAll normalizes a slice of raw tickers, dropping invalid entries.
func NormalizeAll(raw []string) []model.Symbol {
	out := make([]model.Symbol, 0, len(raw))
	for _, r := range raw {
		sym, err := Normalize(r)
		if err != nil {
			continue
		}
		out = append(out, sym)
	}
	return out
}
