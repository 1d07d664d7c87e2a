package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletclient/internal/gateway"
	"github.com/congo-pay/walletclient/internal/idempotency"
)

const (
	transferPath = "/transactions/transfer/"

	// amountPlaces is the precision of the wallet currency.
	amountPlaces      = 2
	maxAmountExponent = 18
)

// Doer performs backend calls; *gateway.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// BalanceSource reports the last known balance; *wallet.Reader satisfies it.
type BalanceSource interface {
	Known() (decimal.Decimal, bool)
}

// Reason classifies a client-side rejection.
type Reason string

const (
	ReasonMissingReceiver     Reason = "missing_receiver"
	ReasonInvalidAmount       Reason = "invalid_amount"
	ReasonNonPositiveAmount   Reason = "non_positive_amount"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonBalanceUnknown      Reason = "balance_unknown"
	ReasonMissingKey          Reason = "missing_idempotency_key"
)

// ValidationError is returned when a transfer is declined before any network
// call was made.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissingReceiver:
		return "please enter a receiver ID"
	case ReasonInvalidAmount:
		return "please enter a valid amount"
	case ReasonNonPositiveAmount:
		return "amount must be greater than zero"
	case ReasonInsufficientBalance:
		return "insufficient balance"
	case ReasonBalanceUnknown:
		return "balance not loaded yet"
	case ReasonMissingKey:
		return "transfer has no idempotency key"
	default:
		return "invalid transfer"
	}
}

// SubmitError is a terminal failure reported by the backend or the transport.
// Request is exactly what was sent; pass it to Resubmit to retry with the
// same payload and key.
type SubmitError struct {
	Message string
	Key     string
	Request Request
	Err     error
}

func (e *SubmitError) Error() string {
	return e.Message
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Request is a validated transfer ready to send.
type Request struct {
	ReceiverID     string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// Outcome is the backend's answer, returned verbatim.
type Outcome struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (o *Outcome) Validate() error {
	if o.TransactionID == "" {
		return errors.New("transfer response is missing transaction_id")
	}
	if o.Status == "" {
		return errors.New("transfer response is missing status")
	}
	return nil
}

type transferBody struct {
	ReceiverID     string      `json:"receiver_id"`
	Amount         json.Number `json:"amount"`
	IdempotencyKey string      `json:"idempotency_key"`
}

// Submitter sends transfers through the gateway.
type Submitter struct {
	api     Doer
	keys    idempotency.Generator
	balance BalanceSource
	logger  *slog.Logger
}

// NewSubmitter builds a submitter. A nil generator uses random UUIDs.
func NewSubmitter(api Doer, keys idempotency.Generator, balance BalanceSource, logger *slog.Logger) *Submitter {
	if keys == nil {
		keys = idempotency.UUIDGenerator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{api: api, keys: keys, balance: balance, logger: logger}
}

// Prepare validates user input against the last known balance and assigns a
// fresh idempotency key.
func (s *Submitter) Prepare(receiverID, amount string) (Request, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return Request{}, &ValidationError{Reason: ReasonMissingReceiver}
	}
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Request{}, &ValidationError{Reason: ReasonInvalidAmount}
	}
	if err := checkAmount(value); err != nil {
		return Request{}, err
	}
	if s.balance == nil {
		return Request{}, &ValidationError{Reason: ReasonBalanceUnknown}
	}
	known, ok := s.balance.Known()
	if !ok {
		return Request{}, &ValidationError{Reason: ReasonBalanceUnknown}
	}
	if value.GreaterThan(known) {
		return Request{}, &ValidationError{Reason: ReasonInsufficientBalance}
	}
	return Request{ReceiverID: receiverID, Amount: value, IdempotencyKey: s.keys.NewKey()}, nil
}

// Submit validates the input and sends exactly one transfer request with a new
// idempotency key. It never retries. Callers should re-read the balance after
// a successful transfer.
func (s *Submitter) Submit(ctx context.Context, receiverID, amount string) (Outcome, error) {
	req, err := s.Prepare(receiverID, amount)
	if err != nil {
		return Outcome{}, err
	}
	return s.send(ctx, req)
}

// Resubmit sends a previously prepared request again, reusing its key. Use it
// for an explicit user retry after a SubmitError.
func (s *Submitter) Resubmit(ctx context.Context, req Request) (Outcome, error) {
	if req.IdempotencyKey == "" {
		return Outcome{}, &ValidationError{Reason: ReasonMissingKey}
	}
	if strings.TrimSpace(req.ReceiverID) == "" {
		return Outcome{}, &ValidationError{Reason: ReasonMissingReceiver}
	}
	if err := checkAmount(req.Amount); err != nil {
		return Outcome{}, err
	}
	return s.send(ctx, req)
}

// checkAmount rejects out-of-range exponents before doing any arithmetic and
// allows at most amountPlaces decimal places.
func checkAmount(value decimal.Decimal) error {
	if exp := value.Exponent(); exp < -maxAmountExponent || exp > maxAmountExponent {
		return &ValidationError{Reason: ReasonInvalidAmount}
	}
	if !value.IsPositive() {
		return &ValidationError{Reason: ReasonNonPositiveAmount}
	}
	if !value.Equal(value.Truncate(amountPlaces)) {
		return &ValidationError{Reason: ReasonInvalidAmount}
	}
	return nil
}

func (s *Submitter) send(ctx context.Context, req Request) (Outcome, error) {
	var out Outcome
	err := s.api.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   transferPath,
		Body: transferBody{
			ReceiverID:     req.ReceiverID,
			Amount:         json.Number(req.Amount.String()),
			IdempotencyKey: req.IdempotencyKey,
		},
		Header: http.Header{idempotency.HeaderName: []string{req.IdempotencyKey}},
	}, &out)
	if err != nil {
		s.logger.Warn("transfer failed",
			slog.String("receiver_id", req.ReceiverID),
			slog.String("idempotency_key", req.IdempotencyKey),
			slog.Int("status", gateway.StatusCode(err)),
		)
		return Outcome{}, &SubmitError{Message: err.Error(), Key: req.IdempotencyKey, Request: req, Err: err}
	}
	s.logger.Info("transfer submitted",
		slog.String("transaction_id", out.TransactionID),
		slog.String("status", out.Status),
		slog.String("idempotency_key", req.IdempotencyKey),
	)
	return out, nil
}

// String renders the request for confirmation prompts.
func (r Request) String() string {
	return fmt.Sprintf("%s to %s", r.Amount.StringFixed(2), r.ReceiverID)
}
