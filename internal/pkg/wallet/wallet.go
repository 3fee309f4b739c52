// Package wallet is the sellers' prepaid balance ledger. Every debit is a
// conditional update that cannot take the balance below zero.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
)

const retryAttempts = 3

// Entry describes one ledger movement.
type Entry struct {
	SellerID uint
	Amount   decimal.Decimal
	Reason   string
	AdID     *uint
	// Reference is the idempotency key of the ledger row. Generated when empty.
	Reference string
}

// DebitResult reports the outcome of a debit. NewBalance is the balance after
// the debit, or the unchanged balance when OK is false.
type DebitResult struct {
	OK         bool
	NewBalance decimal.Decimal
}

// Service provides balance reads and atomic debits/credits.
type Service struct {
	repos *repository.Repositories
}

// NewService creates a wallet service from injected repositories.
func NewService(repos *repository.Repositories) *Service {
	return &Service{repos: repos}
}

// GetBalance returns the seller's spendable balance. A seller without a
// wallet has a zero balance.
func (s *Service) GetBalance(ctx context.Context, sellerID uint) (decimal.Decimal, error) {
	return balanceOf(ctx, s.repos, sellerID)
}

// Balances returns the balances of several sellers. Sellers without a wallet
// map to zero.
func (s *Service) Balances(ctx context.Context, sellerIDs []uint) (map[uint]decimal.Decimal, error) {
	found, err := s.repos.Wallet.Balances(ctx, sellerIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]decimal.Decimal, len(sellerIDs))
	for _, id := range sellerIDs {
		out[id] = found[id]
	}
	return out, nil
}

// Debit subtracts e.Amount in its own transaction. When the wallet cannot
// cover it, the result has OK=false, the error matches
// aderrors.ErrInsufficientFunds and nothing was written.
func (s *Service) Debit(ctx context.Context, e Entry) (DebitResult, error) {
	var res DebitResult
	err := aderrors.Retry(retryAttempts, func() error {
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			var err error
			res, err = DebitTx(ctx, tx, e)
			return err
		})
	})
	return res, err
}

// Credit adds e.Amount, creating the wallet when needed.
func (s *Service) Credit(ctx context.Context, e Entry) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := aderrors.Retry(retryAttempts, func() error {
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			var err error
			balance, err = CreditTx(ctx, tx, e)
			return err
		})
	})
	if err == nil {
		log.Infof("[Wallet] Credited %s to seller %d (%s)", e.Amount.StringFixed(2), e.SellerID, e.Reason)
	}
	return balance, err
}

// Transactions returns the newest ledger rows of a seller.
func (s *Service) Transactions(ctx context.Context, sellerID uint, limit int) ([]models.WalletTransaction, error) {
	return s.repos.Wallet.ListTransactions(ctx, sellerID, limit)
}

// DebitTx debits within the caller's transaction so the debit can be made
// atomic with other writes, e.g. eligibility checks and ad counters.
func DebitTx(ctx context.Context, tx *repository.Repositories, e Entry) (DebitResult, error) {
	if err := validate(e); err != nil {
		return DebitResult{}, err
	}
	ok, err := tx.Wallet.TryDebit(ctx, e.SellerID, e.Amount)
	if err != nil {
		return DebitResult{}, err
	}
	if !ok {
		balance, err := balanceOf(ctx, tx, e.SellerID)
		if err != nil {
			return DebitResult{}, err
		}
		return DebitResult{OK: false, NewBalance: balance}, aderrors.ErrInsufficientFunds
	}

	w, err := tx.Wallet.GetBySeller(ctx, e.SellerID)
	if err != nil {
		return DebitResult{}, fmt.Errorf("reload wallet after debit: %w", err)
	}
	if err := appendRecord(ctx, tx, e, models.WalletTxDebit, w.Balance); err != nil {
		return DebitResult{}, err
	}
	return DebitResult{OK: true, NewBalance: w.Balance}, nil
}

// CreditTx credits within the caller's transaction and returns the new balance.
func CreditTx(ctx context.Context, tx *repository.Repositories, e Entry) (decimal.Decimal, error) {
	if err := validate(e); err != nil {
		return decimal.Zero, err
	}
	if err := tx.Wallet.AddCredit(ctx, e.SellerID, e.Amount); err != nil {
		return decimal.Zero, err
	}
	w, err := tx.Wallet.GetBySeller(ctx, e.SellerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reload wallet after credit: %w", err)
	}
	if err := appendRecord(ctx, tx, e, models.WalletTxCredit, w.Balance); err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func validate(e Entry) error {
	ve := &aderrors.ValidationError{}
	if e.SellerID == 0 {
		ve.Add("seller_id", "is required")
	}
	if !e.Amount.IsPositive() {
		ve.Add("amount", "must be greater than zero")
	}
	return ve.OrNil()
}

func appendRecord(ctx context.Context, tx *repository.Repositories, e Entry, kind string, after decimal.Decimal) error {
	ref := e.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	return tx.Wallet.AppendTransaction(ctx, &models.WalletTransaction{
		Reference:    ref,
		SellerID:     e.SellerID,
		Type:         kind,
		Amount:       e.Amount,
		BalanceAfter: after,
		Reason:       e.Reason,
		AdID:         e.AdID,
	})
}

func balanceOf(ctx context.Context, repos *repository.Repositories, sellerID uint) (decimal.Decimal, error) {
	w, err := repos.Wallet.GetBySeller(ctx, sellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return w.Balance, nil
}
