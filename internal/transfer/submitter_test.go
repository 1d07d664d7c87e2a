package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletclient/internal/gateway/gatewaytest"
	"github.com/congo-pay/walletclient/internal/idempotency"
	"github.com/congo-pay/walletclient/internal/logging"
)

type fixedBalance struct {
	value decimal.Decimal
	known bool
}

func (f fixedBalance) Known() (decimal.Decimal, bool) { return f.value, f.known }

func balanceOf(v string) fixedBalance {
	return fixedBalance{value: decimal.RequireFromString(v), known: true}
}

func TestSubmitRejectsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name     string
		receiver string
		amount   string
		balance  BalanceSource
		reason   Reason
	}{
		{name: "empty_receiver", receiver: "", amount: "100", balance: balanceOf("1000"), reason: ReasonMissingReceiver},
		{name: "blank_receiver", receiver: "   ", amount: "100", balance: balanceOf("1000"), reason: ReasonMissingReceiver},
		{name: "zero_amount", receiver: "W1", amount: "0", balance: balanceOf("1000"), reason: ReasonNonPositiveAmount},
		{name: "negative_amount", receiver: "W1", amount: "-5", balance: balanceOf("1000"), reason: ReasonNonPositiveAmount},
		{name: "unparsable_amount", receiver: "W1", amount: "ten", balance: balanceOf("1000"), reason: ReasonInvalidAmount},
		{name: "not_finite", receiver: "W1", amount: "NaN", balance: balanceOf("1000"), reason: ReasonInvalidAmount},
		{name: "too_precise", receiver: "W1", amount: "0.0000001", balance: balanceOf("1000"), reason: ReasonInvalidAmount},
		{name: "three_places", receiver: "W1", amount: "1.005", balance: balanceOf("1000"), reason: ReasonInvalidAmount},
		{name: "tiny_exponent", receiver: "W1", amount: "1e-5000000", balance: balanceOf("1000"), reason: ReasonInvalidAmount},
		{name: "huge_exponent", receiver: "W1", amount: "1e5000000", balance: balanceOf("1000"), reason: ReasonInvalidAmount},
		{name: "exceeds_balance", receiver: "W1", amount: "1000.01", balance: balanceOf("1000"), reason: ReasonInsufficientBalance},
		{name: "balance_unknown", receiver: "W1", amount: "1", balance: fixedBalance{}, reason: ReasonBalanceUnknown},
		{name: "no_balance_source", receiver: "W1", amount: "1", balance: nil, reason: ReasonBalanceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := gatewaytest.New()
			keys := 0
			s := NewSubmitter(api, idempotency.Func(func() string { keys++; return "k" }), tt.balance, logging.Discard())

			_, err := s.Submit(context.Background(), tt.receiver, tt.amount)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected validation error, got %v", err)
			assert.Equal(t, tt.reason, vErr.Reason)
			assert.Equal(t, 0, api.CallCount(), "no request may be sent")
			assert.Equal(t, 0, keys, "no key is drawn for a declined transfer")
		})
	}
}

func TestSubmitSendsOneRequestWithKey(t *testing.T) {
	api := gatewaytest.New().On(http.MethodPost, transferPath,
		gatewaytest.Response{Body: map[string]string{"transaction_id": "T-1", "status": "completed"}})
	s := NewSubmitter(api, idempotency.UUIDGenerator{}, balanceOf("2547850.00"), logging.Discard())

	out, err := s.Submit(context.Background(), " W1 ", "100.50")
	require.NoError(t, err)
	assert.Equal(t, Outcome{TransactionID: "T-1", Status: "completed"}, out)

	calls := api.Calls()
	require.Len(t, calls, 1)
	body, ok := calls[0].Body.(transferBody)
	require.True(t, ok)
	assert.Equal(t, "W1", body.ReceiverID)
	assert.Equal(t, json.Number("100.5"), body.Amount)
	assert.NotEmpty(t, body.IdempotencyKey)
	assert.Equal(t, body.IdempotencyKey, calls[0].Header.Get(idempotency.HeaderName))
	assert.False(t, calls[0].Anonymous)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"receiver_id":"W1","amount":100.5,"idempotency_key":"`+body.IdempotencyKey+`"}`, string(raw))
}

func TestSubmitAllowsWholeBalance(t *testing.T) {
	api := gatewaytest.New().On(http.MethodPost, transferPath,
		gatewaytest.Response{Body: map[string]string{"transaction_id": "T-9", "status": "pending"}})
	s := NewSubmitter(api, nil, balanceOf("100"), logging.Discard())

	out, err := s.Submit(context.Background(), "W1", "100.00")
	require.NoError(t, err)
	assert.Equal(t, "pending", out.Status)
}

func TestEachSubmitDrawsNewKey(t *testing.T) {
	api := gatewaytest.New().On(http.MethodPost, transferPath,
		gatewaytest.Response{Body: map[string]string{"transaction_id": "T-1", "status": "completed"}})
	s := NewSubmitter(api, nil, balanceOf("100"), logging.Discard())
	ctx := context.Background()

	_, err := s.Submit(ctx, "W1", "1")
	require.NoError(t, err)
	_, err = s.Submit(ctx, "W1", "1")
	require.NoError(t, err)

	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.NotEqual(t,
		calls[0].Body.(transferBody).IdempotencyKey,
		calls[1].Body.(transferBody).IdempotencyKey)
}

func TestSubmitFailureCarriesMessageAndKey(t *testing.T) {
	api := gatewaytest.New().On(http.MethodPost, transferPath,
		gatewaytest.Fail(http.StatusBadRequest, "Receiver wallet not found"),
		gatewaytest.Response{Body: map[string]string{"transaction_id": "T-2", "status": "completed"}},
	)
	s := NewSubmitter(api, idempotency.Func(func() string { return "key-1" }), balanceOf("100"), logging.Discard())
	ctx := context.Background()

	_, err := s.Submit(ctx, "W1", "10")
	var subErr *SubmitError
	require.True(t, errors.As(err, &subErr))
	assert.EqualError(t, err, "Receiver wallet not found")
	assert.Equal(t, "key-1", subErr.Key)
	assert.Equal(t, 1, api.CallCount(), "no automatic retry")

	assert.Equal(t, "W1", subErr.Request.ReceiverID)
	assert.Equal(t, "key-1", subErr.Request.IdempotencyKey)
	assert.True(t, subErr.Request.Amount.Equal(decimal.NewFromInt(10)))

	out, err := s.Resubmit(ctx, subErr.Request)
	require.NoError(t, err)
	assert.Equal(t, "T-2", out.TransactionID)

	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Body, calls[1].Body, "retry must replay the same payload and key")
}

func TestResubmitRequiresKey(t *testing.T) {
	api := gatewaytest.New()
	s := NewSubmitter(api, nil, balanceOf("100"), logging.Discard())

	_, err := s.Resubmit(context.Background(), Request{ReceiverID: "W1", Amount: decimal.NewFromInt(1)})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, ReasonMissingKey, vErr.Reason)
	assert.Equal(t, 0, api.CallCount())
}

func TestMalformedOutcomeIsFailure(t *testing.T) {
	api := gatewaytest.New().On(http.MethodPost, transferPath,
		gatewaytest.Response{Body: map[string]string{"status": "completed"}})
	s := NewSubmitter(api, nil, balanceOf("100"), logging.Discard())

	_, err := s.Submit(context.Background(), "W1", "1")
	var subErr *SubmitError
	assert.True(t, errors.As(err, &subErr))
}

func TestPrepare(t *testing.T) {
	s := NewSubmitter(gatewaytest.New(), idempotency.Func(func() string { return "k-7" }), balanceOf("50"), logging.Discard())
	req, err := s.Prepare("W2", "12.5")
	require.NoError(t, err)
	assert.Equal(t, "k-7", req.IdempotencyKey)
	assert.Equal(t, "12.50 to W2", req.String())
}

func TestAmountPrecision(t *testing.T) {
	s := NewSubmitter(gatewaytest.New(), idempotency.Func(func() string { return "k" }), balanceOf("100"), logging.Discard())

	req, err := s.Prepare("W1", "12.500")
	require.NoError(t, err, "trailing zeros stay within two places")
	assert.Equal(t, "12.50 to W1", req.String())

	_, err = s.Resubmit(context.Background(), Request{ReceiverID: "W1", Amount: decimal.RequireFromString("0.001"), IdempotencyKey: "k"})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, ReasonInvalidAmount, vErr.Reason)
}
