package notification

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	// KindDeposit indicates an account was credited.
	KindDeposit = "deposit"
	// KindWithdrawal indicates an account was debited by its holder.
	KindWithdrawal = "withdrawal"
	// KindTransferIn indicates an account received a transfer.
	KindTransferIn = "transfer_in"
	// KindPromotion indicates an account moved to the private branch.
	KindPromotion = "promotion"
	// KindAccountClosed indicates an account was deleted.
	KindAccountClosed = "account_closed"
)

// Message describes a notification payload addressed to an account holder.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Destination formats the address of the holder of branch/number.
func Destination(branch, number int) string {
	return fmt.Sprintf("%d/%d", branch, number)
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
	)
	return nil
}
