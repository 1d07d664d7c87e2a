package backend

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the sender's wallet cannot cover the
	// transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownWallet is returned for a wallet that was never opened.
	ErrUnknownWallet = errors.New("wallet not found")

	// ErrIdempotencyConflict means the key was already used for a different
	// transfer.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")

	// ErrSelfTransfer rejects a transfer to the sender's own wallet.
	ErrSelfTransfer = errors.New("cannot transfer to your own wallet")

	// ErrInvalidAmount rejects zero and negative amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
)

const (
	entryCredit = "CREDIT"
	entryDebit  = "DEBIT"

	// StatusCompleted is the only status the stub produces; postings apply
	// synchronously.
	StatusCompleted = "completed"
)

// Posting is one side of a transfer as seen from a single wallet.
type Posting struct {
	TransactionID string
	WalletID      string
	Amount        decimal.Decimal
	EntryType     string
	CreatedAt     time.Time
}

// TransferResult is the outcome stored against an idempotency key.
type TransferResult struct {
	TransactionID string
	Status        string
	FromBalance   decimal.Decimal
	ToBalance     decimal.Decimal
}

type transferRecord struct {
	to     string
	amount decimal.Decimal
	result TransferResult
}

// Book is a concurrency-safe double-entry ledger of wallet balances. Every
// transfer debits one wallet and credits another by the same amount, so the
// sum of balances never changes except through Open.
type Book struct {
	mu        sync.RWMutex
	balances  map[string]decimal.Decimal
	postings  map[string][]Posting
	transfers map[string]transferRecord
	now       func() time.Time
}

// NewBook builds an empty book.
func NewBook() *Book {
	return &Book{
		balances:  make(map[string]decimal.Decimal),
		postings:  make(map[string][]Posting),
		transfers: make(map[string]transferRecord),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Open creates walletID with an opening balance, recorded as a credit when
// positive. Opening an existing wallet is a no-op.
func (b *Book) Open(walletID string, opening decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.balances[walletID]; exists {
		return
	}
	b.balances[walletID] = opening
	if opening.IsPositive() {
		b.postings[walletID] = append(b.postings[walletID], Posting{
			TransactionID: uuid.NewString(),
			WalletID:      walletID,
			Amount:        opening,
			EntryType:     entryCredit,
			CreatedAt:     b.now(),
		})
	}
}

// Balance returns the current balance of walletID.
func (b *Book) Balance(walletID string) (decimal.Decimal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	balance, exists := b.balances[walletID]
	if !exists {
		return decimal.Zero, ErrUnknownWallet
	}
	return balance, nil
}

// Entries lists the postings of walletID, newest first.
func (b *Book) Entries(walletID string) ([]Posting, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, exists := b.balances[walletID]; !exists {
		return nil, ErrUnknownWallet
	}
	src := b.postings[walletID]
	out := make([]Posting, len(src))
	for i := range src {
		out[len(src)-1-i] = src[i]
	}
	return out, nil
}

// Transfer moves amount from one wallet to another. The key is scoped to the
// sending wallet; repeating a key with the same payload returns the original
// result with replayed set and moves no money.
func (b *Book) Transfer(from, to, key string, amount decimal.Decimal) (result TransferResult, replayed bool, err error) {
	if !amount.IsPositive() {
		return TransferResult{}, false, ErrInvalidAmount
	}
	if from == to {
		return TransferResult{}, false, ErrSelfTransfer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	scoped := from + ":" + key
	if rec, exists := b.transfers[scoped]; exists {
		if rec.to != to || !rec.amount.Equal(amount) {
			return TransferResult{}, false, ErrIdempotencyConflict
		}
		return rec.result, true, nil
	}

	fromBalance, ok := b.balances[from]
	if !ok {
		return TransferResult{}, false, ErrUnknownWallet
	}
	toBalance, ok := b.balances[to]
	if !ok {
		return TransferResult{}, false, ErrUnknownWallet
	}
	if fromBalance.LessThan(amount) {
		return TransferResult{}, false, ErrInsufficientFunds
	}

	fromBalance = fromBalance.Sub(amount)
	toBalance = toBalance.Add(amount)
	b.balances[from] = fromBalance
	b.balances[to] = toBalance

	txID := uuid.NewString()
	at := b.now()
	b.postings[from] = append(b.postings[from], Posting{TransactionID: txID, WalletID: from, Amount: amount, EntryType: entryDebit, CreatedAt: at})
	b.postings[to] = append(b.postings[to], Posting{TransactionID: txID, WalletID: to, Amount: amount, EntryType: entryCredit, CreatedAt: at})

	res := TransferResult{
		TransactionID: txID,
		Status:        StatusCompleted,
		FromBalance:   fromBalance,
		ToBalance:     toBalance,
	}
	b.transfers[scoped] = transferRecord{to: to, amount: amount, result: res}
	return res, false, nil
}

// Total sums every balance in the book.
func (b *Book) Total() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := decimal.Zero
	for _, balance := range b.balances {
		total = total.Add(balance)
	}
	return total
}
