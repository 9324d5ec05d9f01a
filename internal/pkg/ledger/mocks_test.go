package ledger

import (
	"context"
	"sync"

	"github.com/JonasWeigert/VowPix/app/models"
)

// fakeRepository mirrors the store semantics in memory: every verb runs under
// one mutex, matching the row-lock atomicity of the real implementation.
type fakeRepository struct {
	mu           sync.Mutex
	balances     map[uint]*models.CreditBalance
	transactions map[uint]*models.CreditTransaction
	paymentRefs  map[string]uint
	refunds      map[uint]uint
	nextTxID     uint

	failAll bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		balances:     make(map[uint]*models.CreditBalance),
		transactions: make(map[uint]*models.CreditTransaction),
		paymentRefs:  make(map[string]uint),
		refunds:      make(map[uint]uint),
	}
}

var errFakeStore = context.DeadlineExceeded

func (f *fakeRepository) balance(userID uint, today string) *models.CreditBalance {
	b, ok := f.balances[userID]
	if !ok {
		b = &models.CreditBalance{ID: userID, UserID: userID, DailyResetDate: today}
		f.balances[userID] = b
	}
	if b.NeedsDailyReset(today) {
		b.FreeCreditsUsedToday = 0
		b.DailyResetDate = today
	}
	return b
}

func (f *fakeRepository) record(tx *models.CreditTransaction) *models.CreditTransaction {
	f.nextTxID++
	tx.ID = f.nextTxID
	f.transactions[tx.ID] = tx
	return tx
}

func (f *fakeRepository) GetOrCreateBalance(_ context.Context, userID uint, today string) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errFakeStore
	}
	b := f.balance(userID, today)
	cp := *b
	return &cp, nil
}

func (f *fakeRepository) ConsumeCredit(_ context.Context, userID uint, today string, dailyFreeLimit int, description string) (*models.CreditBalance, *models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, nil, errFakeStore
	}
	b := f.balance(userID, today)

	var bucket string
	switch {
	case b.FreeRemaining(dailyFreeLimit) > 0:
		b.FreeCreditsUsedToday++
		bucket = models.CreditBucketFree
	case b.PaidCredits > 0:
		b.PaidCredits--
		bucket = models.CreditBucketPaid
	case b.BonusCredits > 0:
		b.BonusCredits--
		bucket = models.CreditBucketBonus
	default:
		return nil, nil, ErrInsufficientCredits
	}

	tx := f.record(&models.CreditTransaction{
		UserID:       userID,
		Kind:         models.CreditKindSpend,
		Amount:       1,
		Bucket:       bucket,
		BalanceAfter: b.TotalAvailable(dailyFreeLimit),
		Description:  description,
	})
	cp := *b
	return &cp, tx, nil
}

func (f *fakeRepository) AddCredits(_ context.Context, userID uint, amount int, paymentReference *string, description, kind, today string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, nil, nil, errFakeStore
	}
	if paymentReference != nil {
		if txID, ok := f.paymentRefs[*paymentReference]; ok {
			b := f.balance(userID, today)
			cp := *b
			return false, f.transactions[txID], &cp, nil
		}
	}

	b := f.balance(userID, today)
	bucket := models.CreditBucketPaid
	if kind == models.CreditKindBonus {
		bucket = models.CreditBucketBonus
		b.BonusCredits += amount
	} else {
		b.PaidCredits += amount
	}

	tx := f.record(&models.CreditTransaction{
		UserID:           userID,
		Kind:             kind,
		Amount:           amount,
		Bucket:           bucket,
		BalanceAfter:     b.TotalAvailable(dailyFreeLimit),
		PaymentReference: paymentReference,
		Description:      description,
	})
	if paymentReference != nil {
		f.paymentRefs[*paymentReference] = tx.ID
	}
	cp := *b
	return true, tx, &cp, nil
}

func (f *fakeRepository) Refund(_ context.Context, originalTransactionID uint, today string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, nil, nil, errFakeStore
	}
	original, ok := f.transactions[originalTransactionID]
	if !ok {
		return false, nil, nil, ErrTransactionNotFound
	}
	if txID, ok := f.refunds[originalTransactionID]; ok {
		b := f.balance(original.UserID, today)
		cp := *b
		return false, f.transactions[txID], &cp, nil
	}

	b := f.balance(original.UserID, today)
	switch original.Bucket {
	case models.CreditBucketFree:
		if b.FreeCreditsUsedToday > 0 {
			b.FreeCreditsUsedToday--
		}
	case models.CreditBucketPaid:
		b.PaidCredits++
	case models.CreditBucketBonus:
		b.BonusCredits++
	}

	origID := originalTransactionID
	tx := f.record(&models.CreditTransaction{
		UserID:                original.UserID,
		Kind:                  models.CreditKindRefund,
		Amount:                original.Amount,
		Bucket:                original.Bucket,
		BalanceAfter:          b.TotalAvailable(dailyFreeLimit),
		RefundedTransactionID: &origID,
		Description:           "refund: " + original.Description,
	})
	f.refunds[originalTransactionID] = tx.ID
	cp := *b
	return true, tx, &cp, nil
}

func (f *fakeRepository) FindTransaction(_ context.Context, id uint) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeRepository) ListTransactions(_ context.Context, userID uint, limit int) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CreditTransaction, 0)
	for id := f.nextTxID; id >= 1 && len(out) < limit; id-- {
		if tx, ok := f.transactions[id]; ok && tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}
