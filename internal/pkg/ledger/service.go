package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/env"
	"gorm.io/gorm"
)

// Service owns all credit balance mutation. No caller performs raw
// read-modify-write against the store; every change goes through one of the
// named verbs below, each executed atomically by the repository.
type Service struct {
	repo           Repository
	dailyFreeLimit int
	loc            *time.Location
	now            func() time.Time
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository, dailyFreeLimit int, loc *time.Location) *Service {
	if dailyFreeLimit <= 0 {
		dailyFreeLimit = 3
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, dailyFreeLimit: dailyFreeLimit, loc: loc, now: time.Now}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle with limits
// and the reference timezone taken from the environment.
func NewServiceFromDB(db *gorm.DB) *Service {
	limit, err := strconv.Atoi(env.GetEnv("DAILY_FREE_CREDITS", "3"))
	if err != nil || limit <= 0 {
		limit = 3
	}
	loc, err := time.LoadLocation(env.GetEnv("QUOTA_TIMEZONE", "UTC"))
	if err != nil {
		loc = time.UTC
	}
	return NewService(NewRepository(db), limit, loc)
}

// DailyFreeLimit returns the configured free allowance per calendar day.
func (s *Service) DailyFreeLimit() int {
	return s.dailyFreeLimit
}

// today returns the current calendar day in the fixed reference timezone.
// The stored reset date is compared against this value regardless of the
// wall-clock hour the check runs at.
func (s *Service) today() string {
	return s.now().In(s.loc).Format("2006-01-02")
}

// GetBalance reconciles the daily reset and returns the current balance.
func (s *Service) GetBalance(ctx context.Context, userID uint) (*Balance, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	b, err := s.repo.GetOrCreateBalance(ctx, userID, s.today())
	if err != nil {
		return nil, err
	}
	return s.view(b), nil
}

// ConsumeCredit atomically debits one credit in priority order free -> paid
// -> bonus and records the spend transaction. The decrement is performed by
// the store under a row lock, so two concurrent callers can never both spend
// the last remaining credit.
func (s *Service) ConsumeCredit(ctx context.Context, userID uint, description string) (*Balance, *models.CreditTransaction, error) {
	if userID == 0 {
		return nil, nil, errors.New("user_id is required")
	}
	b, tx, err := s.repo.ConsumeCredit(ctx, userID, s.today(), s.dailyFreeLimit, description)
	if err != nil {
		return nil, nil, err
	}
	return s.view(b), tx, nil
}

// AddCredits credits the account once per payment reference. A duplicate
// reference writes nothing and returns the prior transaction together with
// ErrPaymentAlreadyProcessed; callers report it as success.
func (s *Service) AddCredits(ctx context.Context, userID uint, amount int, paymentReference *string, description, kind string) (*Balance, *models.CreditTransaction, error) {
	if userID == 0 {
		return nil, nil, errors.New("user_id is required")
	}
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	switch kind {
	case models.CreditKindEarn, models.CreditKindBonus:
	default:
		return nil, nil, errors.New("kind must be earn or bonus")
	}

	created, tx, b, err := s.repo.AddCredits(ctx, userID, amount, paymentReference, description, kind, s.today(), s.dailyFreeLimit)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return s.view(b), tx, ErrPaymentAlreadyProcessed
	}
	return s.view(b), tx, nil
}

// Refund issues a compensating refund transaction restoring the bucket the
// original spend debited. Refunding the same transaction twice is a no-op
// reported as ErrAlreadyRefunded.
func (s *Service) Refund(ctx context.Context, originalTransactionID uint) (*Balance, *models.CreditTransaction, error) {
	if originalTransactionID == 0 {
		return nil, nil, errors.New("transaction id is required")
	}
	created, tx, b, err := s.repo.Refund(ctx, originalTransactionID, s.today(), s.dailyFreeLimit)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return s.view(b), tx, ErrAlreadyRefunded
	}
	return s.view(b), tx, nil
}

func (s *Service) view(b *models.CreditBalance) *Balance {
	return &Balance{
		FreeRemaining:  b.FreeRemaining(s.dailyFreeLimit),
		Paid:           b.PaidCredits,
		Bonus:          b.BonusCredits,
		TotalAvailable: b.TotalAvailable(s.dailyFreeLimit),
	}
}
