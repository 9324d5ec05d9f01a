package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/ledger"
)

// fakeRequestStore backs both the rate limit repository and the tracker
// repository with one request log, the way the real store does with the
// generation_requests table.
type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[string]*models.GenerationRequest
	byID     map[uint]*models.GenerationRequest
	nextID   uint
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{
		requests: make(map[string]*models.GenerationRequest),
		byID:     make(map[uint]*models.GenerationRequest),
	}
}

func (f *fakeRequestStore) count(identifier, identifierType string, hourStart, dayStart time.Time) (int64, int64) {
	var hourly, daily int64
	for _, req := range f.requests {
		if req.Identifier != identifier || req.IdentifierType != identifierType || !req.CountsAgainstQuota() {
			continue
		}
		if req.CreatedAt.After(hourStart) {
			hourly++
		}
		if req.CreatedAt.After(dayStart) {
			daily++
		}
	}
	return hourly, daily
}

func (f *fakeRequestStore) CountWindows(_ context.Context, identifier, identifierType string, hourStart, dayStart time.Time) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hourly, daily := f.count(identifier, identifierType, hourStart, dayStart)
	return hourly, daily, nil
}

func (f *fakeRequestStore) AdmitAndRecord(_ context.Context, req *models.GenerationRequest, hourStart, dayStart time.Time, hourlyLimit, dailyLimit int) (bool, int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hourly, daily := f.count(req.Identifier, req.IdentifierType, hourStart, dayStart)
	admitted := hourly < int64(hourlyLimit) && daily < int64(dailyLimit)
	if admitted {
		req.Status = models.GenerationStatusPending
	} else {
		req.Status = models.GenerationStatusRateLimited
	}
	f.nextID++
	req.ID = f.nextID
	req.CreatedAt = time.Now()
	f.requests[req.UUID] = req
	f.byID[req.ID] = req
	return admitted, hourly, daily, nil
}

func (f *fakeRequestStore) GetByUUID(_ context.Context, requestUUID string) (*models.GenerationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[requestUUID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRequestStore) AttachDebit(_ context.Context, requestID, creditTransactionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.byID[requestID]
	if !ok {
		return ErrRequestNotFound
	}
	req.CreditsConsumed = 1
	req.CreditTransactionID = &creditTransactionID
	return nil
}

func (f *fakeRequestStore) Transition(_ context.Context, requestID uint, from, to string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.byID[requestID]
	if !ok || req.Status != from {
		return ErrInvalidTransition
	}
	req.Status = to
	for k, v := range updates {
		switch k {
		case "processing_time_ms":
			req.ProcessingTimeMs = v.(int64)
		case "result_object_key":
			req.ResultObjectKey = v.(string)
		case "error_message":
			req.ErrorMessage = v.(string)
		case "completed_at":
			t := v.(time.Time)
			req.CompletedAt = &t
		}
	}
	return nil
}

// fakeLedgerStore is a minimal in-memory ledger repository. Only the verbs
// the tracker exercises carry full semantics.
type fakeLedgerStore struct {
	mu           sync.Mutex
	balances     map[uint]*models.CreditBalance
	transactions map[uint]*models.CreditTransaction
	refunds      map[uint]uint
	nextTxID     uint
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		balances:     make(map[uint]*models.CreditBalance),
		transactions: make(map[uint]*models.CreditTransaction),
		refunds:      make(map[uint]uint),
	}
}

func (f *fakeLedgerStore) balance(userID uint, today string) *models.CreditBalance {
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

func (f *fakeLedgerStore) record(tx *models.CreditTransaction) *models.CreditTransaction {
	f.nextTxID++
	tx.ID = f.nextTxID
	f.transactions[tx.ID] = tx
	return tx
}

func (f *fakeLedgerStore) GetOrCreateBalance(_ context.Context, userID uint, today string) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.balance(userID, today)
	return &cp, nil
}

func (f *fakeLedgerStore) ConsumeCredit(_ context.Context, userID uint, today string, dailyFreeLimit int, description string) (*models.CreditBalance, *models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
		return nil, nil, ledger.ErrInsufficientCredits
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

func (f *fakeLedgerStore) AddCredits(_ context.Context, userID uint, amount int, paymentReference *string, description, kind, today string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	cp := *b
	return true, tx, &cp, nil
}

func (f *fakeLedgerStore) Refund(_ context.Context, originalTransactionID uint, today string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	original, ok := f.transactions[originalTransactionID]
	if !ok {
		return false, nil, nil, ledger.ErrTransactionNotFound
	}
	if txID, ok := f.refunds[originalTransactionID]; ok {
		cp := *f.balance(original.UserID, today)
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

func (f *fakeLedgerStore) FindTransaction(_ context.Context, id uint) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeLedgerStore) ListTransactions(_ context.Context, userID uint, limit int) ([]models.CreditTransaction, error) {
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
