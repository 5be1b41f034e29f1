package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/branch_ledger/internal/account"
	"github.com/congo-pay/branch_ledger/internal/notification"
)

const promotionLockKey = "ledger:promotion"

// PromoteToPrivate moves the richest account of every branch to
// PrivateBranch and returns the private branch ordered by account number.
// Ties go to the lowest account number. A branch that already has an account
// promoted out of it is skipped, so repeated calls leave membership unchanged.
func (s *Service) PromoteToPrivate(ctx context.Context) ([]account.Account, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var promoted []account.Account
	run := func(ctx context.Context, store account.Store) error {
		var err error
		promoted, err = s.promote(ctx, store)
		return err
	}
	err := s.locker.WithLock(ctx, []string{promotionLockKey}, func(ctx context.Context) error {
		if tx, ok := s.store.(account.Transactor); ok {
			return tx.WithinTx(ctx, run)
		}
		return run(ctx, s.store)
	})
	if err != nil {
		return nil, lockErr(err)
	}
	for _, a := range promoted {
		s.notify(ctx, notification.KindPromotion, a, fmt.Sprintf("moved from branch %d to private branch %d", *a.PromotedFrom, PrivateBranch))
	}

	private, err := s.store.FindMany(ctx, account.InBranch(PrivateBranch), account.FindOptions{
		Sort: []account.SortKey{{Field: account.SortByNumber}},
	})
	if err != nil {
		return nil, storeErr(err, ErrAccountNotFound)
	}
	return private, nil
}

func (s *Service) promote(ctx context.Context, store account.Store) ([]account.Account, error) {
	private, err := store.FindMany(ctx, account.InBranch(PrivateBranch), account.FindOptions{})
	if err != nil {
		return nil, storeErr(err, ErrAccountNotFound)
	}
	represented := make(map[int]bool, len(private))
	privateNumbers := make(map[int]bool, len(private))
	for _, a := range private {
		privateNumbers[a.Number] = true
		if a.PromotedFrom != nil {
			represented[*a.PromotedFrom] = true
		}
	}

	candidates, err := store.FindMany(ctx, account.OutsideBranch(PrivateBranch), account.FindOptions{
		Sort: []account.SortKey{
			{Field: account.SortByBranch},
			{Field: account.SortByBalance, Desc: true},
			{Field: account.SortByNumber},
		},
	})
	if err != nil {
		return nil, storeErr(err, ErrAccountNotFound)
	}

	var winners []account.Account
	for _, a := range candidates {
		if represented[a.Branch] {
			continue
		}
		represented[a.Branch] = true
		winners = append(winners, a)
	}
	if len(winners) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(winners))
	for _, w := range winners {
		keys = append(keys, accountLockKey(w.Number))
	}
	var promoted []account.Account
	err = s.locker.WithLock(ctx, keys, func(ctx context.Context) error {
		target := PrivateBranch
		for _, w := range winners {
			if privateNumbers[w.Number] {
				s.logger.Warn("promotion skipped, account number already used in private branch",
					slog.Int("branch", w.Branch),
					slog.Int("number", w.Number),
				)
				continue
			}
			from := w.Branch
			a, err := store.UpdateOne(ctx, account.Key(w.Branch, w.Number), account.Update{
				Branch:       &target,
				PromotedFrom: &from,
			})
			if errors.Is(err, account.ErrNotFound) {
				// Deleted or moved since the scan.
				continue
			}
			if err != nil {
				return storeErr(err, ErrAccountNotFound)
			}
			privateNumbers[a.Number] = true
			promoted = append(promoted, a)
			s.logger.Info("account promoted to private branch",
				slog.Int("from_branch", from),
				slog.Int("number", a.Number),
				slog.String("balance", a.Balance.String()),
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}
