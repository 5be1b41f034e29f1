package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/branch_ledger/internal/account"
	"github.com/congo-pay/branch_ledger/internal/notification"
)

// Transfer moves Amount from one account to another. Accounts at different
// branches pay TransferFee on the source side. The source is debited only if
// it covers amount plus fee; the credit is then applied in the same store
// transaction, or, on stores without transactions, the debit is refunded when
// the credit fails.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if !in.Amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var res TransferResult
	keys := []string{accountLockKey(in.From.Number), accountLockKey(in.To.Number)}
	err := s.locker.WithLock(ctx, keys, func(ctx context.Context) error {
		var err error
		if tx, ok := s.store.(account.Transactor); ok {
			err = tx.WithinTx(ctx, func(ctx context.Context, store account.Store) error {
				res, err = transferLegs(ctx, store, in)
				return err
			})
		} else {
			res, err = s.transferWithRefund(ctx, in)
		}
		return err
	})
	if err != nil {
		return TransferResult{}, lockErr(err)
	}

	s.logger.Info("transfer completed",
		slog.Int("from_branch", res.Source.Branch),
		slog.Int("from_number", res.Source.Number),
		slog.Int("to_branch", res.Destination.Branch),
		slog.Int("to_number", res.Destination.Number),
		slog.String("amount", in.Amount.String()),
		slog.String("fee", res.Fee.String()),
	)
	s.notify(ctx, notification.KindTransferIn, res.Destination,
		fmt.Sprintf("received %s from account %d", in.Amount, res.Source.Number))
	return res, nil
}

type transferPlan struct {
	source account.Filter
	dest   account.Filter
	debit  decimal.Decimal
	fee    decimal.Decimal
}

func planTransfer(ctx context.Context, store account.Store, in TransferInput) (transferPlan, error) {
	src, err := resolve(ctx, store, in.From, ErrSourceNotFound)
	if err != nil {
		return transferPlan{}, err
	}
	dst, err := resolve(ctx, store, in.To, ErrDestNotFound)
	if err != nil {
		return transferPlan{}, err
	}
	if src.ID == dst.ID {
		return transferPlan{}, ErrSameAccount
	}

	fee := decimal.Zero
	if src.Branch != dst.Branch {
		fee = TransferFee
	}
	return transferPlan{
		source: account.Key(src.Branch, src.Number),
		dest:   account.Key(dst.Branch, dst.Number),
		debit:  in.Amount.Add(fee),
		fee:    fee,
	}, nil
}

// transferLegs applies both legs against a transactional store.
func transferLegs(ctx context.Context, store account.Store, in TransferInput) (TransferResult, error) {
	plan, err := planTransfer(ctx, store, in)
	if err != nil {
		return TransferResult{}, err
	}
	source, err := debit(ctx, store, plan.source, plan.debit, ErrSourceNotFound)
	if err != nil {
		return TransferResult{}, err
	}
	dest, err := store.UpdateOne(ctx, plan.dest, account.Update{BalanceDelta: in.Amount})
	if err != nil {
		return TransferResult{}, storeErr(err, ErrDestNotFound)
	}
	return TransferResult{Source: source, Destination: dest, Fee: plan.fee}, nil
}

// transferWithRefund debits first, then credits, and refunds the debit if the
// credit fails.
func (s *Service) transferWithRefund(ctx context.Context, in TransferInput) (TransferResult, error) {
	plan, err := planTransfer(ctx, s.store, in)
	if err != nil {
		return TransferResult{}, err
	}
	source, err := debit(ctx, s.store, plan.source, plan.debit, ErrSourceNotFound)
	if err != nil {
		return TransferResult{}, err
	}

	dest, err := s.store.UpdateOne(ctx, plan.dest, account.Update{BalanceDelta: in.Amount})
	if err == nil {
		return TransferResult{Source: source, Destination: dest, Fee: plan.fee}, nil
	}
	creditErr := storeErr(err, ErrDestNotFound)

	// The request context may be what failed the credit; the refund gets its own.
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if _, refundErr := s.store.UpdateOne(refundCtx, plan.source, account.Update{BalanceDelta: plan.debit}); refundErr != nil {
		s.logger.Error("transfer refund failed, source account left debited",
			slog.Int("from_branch", source.Branch),
			slog.Int("from_number", source.Number),
			slog.String("debit", plan.debit.String()),
			slog.Any("credit_error", err),
			slog.Any("refund_error", refundErr),
		)
		return TransferResult{}, errors.Join(creditErr, fmt.Errorf("refund source account %d: %w", source.Number, storeErr(refundErr, ErrSourceNotFound)))
	}

	s.logger.Warn("transfer credit failed, source refunded",
		slog.Int("from_number", source.Number),
		slog.Any("error", err),
	)
	return TransferResult{}, creditErr
}
