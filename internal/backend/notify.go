package backend

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Transfer notices sent after money moved.
const (
	NoticeTransferSent     = "transfer_sent"
	NoticeTransferReceived = "transfer_received"
)

// Notice tells one wallet owner about a completed transfer.
type Notice struct {
	Kind          string
	Email         string
	TransactionID string
	Amount        decimal.Decimal
	Balance       decimal.Decimal
}

// Notifier delivers transfer notices. Delivery failures never undo a transfer.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// LogNotifier writes notices to the structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier builds a notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, notice Notice) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", notice.Kind),
		slog.String("destination", notice.Email),
		slog.String("transaction_id", notice.TransactionID),
		slog.String("amount", notice.Amount.StringFixed(2)),
		slog.String("balance", notice.Balance.StringFixed(2)),
	)
	return nil
}

// notifyTransfer tells both parties about res.
func notifyTransfer(ctx context.Context, n Notifier, logger *slog.Logger, sender, receiver Account, amount decimal.Decimal, res TransferResult) {
	if n == nil {
		return
	}
	notices := []Notice{
		{Kind: NoticeTransferSent, Email: sender.Email, TransactionID: res.TransactionID, Amount: amount, Balance: res.FromBalance},
		{Kind: NoticeTransferReceived, Email: receiver.Email, TransactionID: res.TransactionID, Amount: amount, Balance: res.ToBalance},
	}
	for _, notice := range notices {
		if err := n.Notify(ctx, notice); err != nil {
			logger.Warn("notify transfer", slog.String("kind", notice.Kind), slog.Any("error", err))
		}
	}
}
