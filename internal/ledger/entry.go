package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the direction of a ledger entry relative to the user's wallet.
type Kind string

const (
	KindCredit Kind = "CREDIT"
	KindDebit  Kind = "DEBIT"
)

// ParseKind accepts either spelling case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindCredit, KindDebit:
		return k, nil
	default:
		return "", fmt.Errorf("unknown entry type %q", s)
	}
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("entry_type: %w", err)
	}
	if raw != string(KindCredit) && raw != string(KindDebit) {
		return fmt.Errorf("unknown entry_type %q", raw)
	}
	*k = Kind(raw)
	return nil
}

// WalletRef identifies the wallet an entry was posted to. The backend sends
// a numeric primary key; string identifiers are accepted as well.
type WalletRef string

func (w *WalletRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = WalletRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	*w = WalletRef(n.String())
	return nil
}

// Entry is one immutable posting on the user's wallet.
type Entry struct {
	TransactionID string          `json:"transaction_id"`
	Wallet        WalletRef       `json:"wallet"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          Kind            `json:"entry_type"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns the amount as it affects the balance.
func (e Entry) Signed() decimal.Decimal {
	if e.Kind == KindDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// timestampLayouts are tried in order. The backend sends RFC 3339, but naive
// ISO timestamps without an offset also occur and are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp decodes created_at leniently.
type Timestamp time.Time

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("created_at is empty")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			*ts = Timestamp(t)
			return nil
		}
	}
	return fmt.Errorf("created_at: unrecognized timestamp %q", raw)
}

// wireEntry mirrors one element of the ledger payload. Pointers record
// whether a field was present at all.
type wireEntry struct {
	TransactionID string           `json:"transaction_id"`
	Wallet        *WalletRef       `json:"wallet"`
	Amount        *decimal.Decimal `json:"amount"`
	Kind          Kind             `json:"entry_type"`
	CreatedAt     *Timestamp       `json:"created_at"`
}

type entriesResponse []wireEntry

func (r *entriesResponse) Validate() error {
	for i, e := range *r {
		switch {
		case e.TransactionID == "":
			return fmt.Errorf("entry %d is missing transaction_id", i)
		case e.Kind == "":
			return fmt.Errorf("entry %d is missing entry_type", i)
		case e.Wallet == nil || *e.Wallet == "":
			return fmt.Errorf("entry %d is missing wallet", i)
		case e.Amount == nil:
			return fmt.Errorf("entry %d is missing amount", i)
		case e.CreatedAt == nil:
			return fmt.Errorf("entry %d is missing created_at", i)
		}
	}
	return nil
}

func (r entriesResponse) entries() []Entry {
	out := make([]Entry, 0, len(r))
	for _, e := range r {
		out = append(out, Entry{
			TransactionID: e.TransactionID,
			Wallet:        *e.Wallet,
			Amount:        *e.Amount,
			Kind:          e.Kind,
			CreatedAt:     time.Time(*e.CreatedAt),
		})
	}
	return out
}
