package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletclient/internal/gateway"
	"github.com/congo-pay/walletclient/internal/wallet"
)

const entriesPath = "/transactions/ledgerEntry"

// Doer performs backend calls; *gateway.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// Reader fetches the full ledger list.
type Reader struct {
	api    Doer
	logger *slog.Logger
}

// NewReader builds a ledger reader.
func NewReader(api Doer, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{api: api, logger: logger}
}

// Fetch returns the entries in the order the backend sent them. Failures are
// *wallet.FetchError with Resource "ledger".
func (r *Reader) Fetch(ctx context.Context) ([]Entry, error) {
	var resp entriesResponse
	if err := r.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: entriesPath}, &resp); err != nil {
		return nil, &wallet.FetchError{Resource: "ledger", Err: err}
	}
	return resp.entries(), nil
}

// Summary aggregates a set of entries.
type Summary struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
	Count   int
}

// Net is credits minus debits.
func (s Summary) Net() decimal.Decimal {
	return s.Credits.Sub(s.Debits)
}

// Summarize totals credits and debits.
func Summarize(entries []Entry) Summary {
	s := Summary{Credits: decimal.Zero, Debits: decimal.Zero, Count: len(entries)}
	for _, e := range entries {
		switch e.Kind {
		case KindCredit:
			s.Credits = s.Credits.Add(e.Amount)
		case KindDebit:
			s.Debits = s.Debits.Add(e.Amount)
		}
	}
	return s
}

// Filter narrows entries for display. An empty kind matches both directions;
// query matches transaction ids case-insensitively. Order is preserved.
func Filter(entries []Entry, kind Kind, query string) []Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.TransactionID), query) {
			continue
		}
		out = append(out, e)
	}
	return out
}
