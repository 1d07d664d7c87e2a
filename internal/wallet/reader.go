package wallet

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletclient/internal/gateway"
)

const balancePath = "/wallets/balance/"

// Doer performs backend calls; *gateway.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// FetchError wraps a failed read of a backend resource. Its message is the
// gateway message so it can be shown as is.
type FetchError struct {
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Resource + " unavailable"
	}
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Snapshot is the last balance the reader saw.
type Snapshot struct {
	Balance   decimal.Decimal
	FetchedAt time.Time
}

type balanceResponse struct {
	Balance *decimal.Decimal `json:"wallet balance"`
}

func (r *balanceResponse) Validate() error {
	if r.Balance == nil {
		return errors.New(`balance response is missing "wallet balance"`)
	}
	return nil
}

// Reader fetches the balance on demand and remembers the newest result.
type Reader struct {
	api    Doer
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	issued  uint64
	stored  uint64
	last    Snapshot
	hasLast bool
}

// NewReader builds a balance reader.
func NewReader(api Doer, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{api: api, logger: logger, now: time.Now}
}

// Fetch reads the current balance. Concurrent calls are independent; a result
// only replaces the snapshot when no newer request has already stored one.
func (r *Reader) Fetch(ctx context.Context) (decimal.Decimal, error) {
	r.mu.Lock()
	r.issued++
	gen := r.issued
	r.mu.Unlock()

	var resp balanceResponse
	if err := r.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: balancePath}, &resp); err != nil {
		return decimal.Zero, &FetchError{Resource: "balance", Err: err}
	}
	balance := *resp.Balance

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen > r.stored {
		r.stored = gen
		r.last = Snapshot{Balance: balance, FetchedAt: r.now()}
		r.hasLast = true
	} else {
		r.logger.Debug("discarding stale balance", slog.Uint64("generation", gen), slog.Uint64("stored", r.stored))
	}
	return balance, nil
}

// Last returns the newest stored snapshot.
func (r *Reader) Last() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.hasLast
}

// Known returns the last known balance.
func (r *Reader) Known() (decimal.Decimal, bool) {
	snap, ok := r.Last()
	return snap.Balance, ok
}

// Forget drops the snapshot, for example after logout.
func (r *Reader) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = r.issued
	r.last = Snapshot{}
	r.hasLast = false
}
