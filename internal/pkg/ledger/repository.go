package ledger

import (
	"context"
	"errors"

	"github.com/JonasWeigert/VowPix/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the atomic store operations used by the ledger service.
// Implementations must make each verb a single atomic unit against the
// backing store.
type Repository interface {
	GetOrCreateBalance(ctx context.Context, userID uint, today string) (*models.CreditBalance, error)
	ConsumeCredit(ctx context.Context, userID uint, today string, dailyFreeLimit int, description string) (*models.CreditBalance, *models.CreditTransaction, error)
	AddCredits(ctx context.Context, userID uint, amount int, paymentReference *string, description, kind, today string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error)
	Refund(ctx context.Context, originalTransactionID uint, today string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error)
	FindTransaction(ctx context.Context, id uint) (*models.CreditTransaction, error)
	ListTransactions(ctx context.Context, userID uint, limit int) ([]models.CreditTransaction, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// lockBalance loads the user's balance row FOR UPDATE inside tx, creating it
// on first use, and applies the daily reset when the stored date is stale.
func lockBalance(tx *gorm.DB, userID uint, today string) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seed := models.CreditBalance{UserID: userID, DailyResetDate: today}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return nil, err
		}
		// Re-select under the lock; a concurrent creator may have won.
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&balance).Error
	}
	if err != nil {
		return nil, err
	}

	if balance.NeedsDailyReset(today) {
		balance.FreeCreditsUsedToday = 0
		balance.DailyResetDate = today
		if err := tx.Model(&models.CreditBalance{}).
			Where("id = ?", balance.ID).
			Updates(map[string]interface{}{
				"free_credits_used_today": 0,
				"daily_reset_date":        today,
			}).Error; err != nil {
			return nil, err
		}
	}
	return &balance, nil
}

func (r *gormRepository) GetOrCreateBalance(ctx context.Context, userID uint, today string) (*models.CreditBalance, error) {
	var balance *models.CreditBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := lockBalance(tx, userID, today)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (r *gormRepository) ConsumeCredit(ctx context.Context, userID uint, today string, dailyFreeLimit int, description string) (*models.CreditBalance, *models.CreditTransaction, error) {
	var (
		balance *models.CreditBalance
		spend   *models.CreditTransaction
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := lockBalance(tx, userID, today)
		if err != nil {
			return err
		}

		var bucket string
		switch {
		case b.FreeRemaining(dailyFreeLimit) > 0:
			bucket = models.CreditBucketFree
			b.FreeCreditsUsedToday++
		case b.PaidCredits > 0:
			bucket = models.CreditBucketPaid
			b.PaidCredits--
		case b.BonusCredits > 0:
			bucket = models.CreditBucketBonus
			b.BonusCredits--
		default:
			return ErrInsufficientCredits
		}

		if err := tx.Model(&models.CreditBalance{}).
			Where("id = ?", b.ID).
			Updates(map[string]interface{}{
				"free_credits_used_today": b.FreeCreditsUsedToday,
				"paid_credits":            b.PaidCredits,
				"bonus_credits":           b.BonusCredits,
			}).Error; err != nil {
			return err
		}

		entry := models.CreditTransaction{
			UserID:       userID,
			Kind:         models.CreditKindSpend,
			Amount:       1,
			Bucket:       bucket,
			BalanceAfter: b.TotalAvailable(dailyFreeLimit),
			Description:  description,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		balance = b
		spend = &entry
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return balance, spend, nil
}

func (r *gormRepository) AddCredits(ctx context.Context, userID uint, amount int, paymentReference *string, description, kind, today string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error) {
	var (
		created bool
		entry   *models.CreditTransaction
		balance *models.CreditBalance
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bucket := models.CreditBucketPaid
		if kind == models.CreditKindBonus {
			bucket = models.CreditBucketBonus
		}

		// Claim the payment reference first. The unique index on
		// payment_reference is what makes duplicate deliveries a no-op;
		// an application-level existence check alone would race.
		claim := models.CreditTransaction{
			UserID:           userID,
			Kind:             kind,
			Amount:           amount,
			Bucket:           bucket,
			PaymentReference: paymentReference,
			Description:      description,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_reference"}},
			DoNothing: true,
		}).Create(&claim)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 && paymentReference != nil {
			var prior models.CreditTransaction
			if err := tx.Where("payment_reference = ?", *paymentReference).
				First(&prior).Error; err != nil {
				return err
			}
			b, err := lockBalance(tx, prior.UserID, today)
			if err != nil {
				return err
			}
			created = false
			entry = &prior
			balance = b
			return nil
		}

		b, err := lockBalance(tx, userID, today)
		if err != nil {
			return err
		}
		if bucket == models.CreditBucketBonus {
			b.BonusCredits += amount
		} else {
			b.PaidCredits += amount
		}
		if err := tx.Model(&models.CreditBalance{}).
			Where("id = ?", b.ID).
			Updates(map[string]interface{}{
				"paid_credits":  b.PaidCredits,
				"bonus_credits": b.BonusCredits,
			}).Error; err != nil {
			return err
		}

		// Balance-after is only known once the balance row is locked.
		after := b.TotalAvailable(dailyFreeLimit)
		if err := tx.Model(&models.CreditTransaction{}).
			Where("id = ?", claim.ID).
			Update("balance_after", after).Error; err != nil {
			return err
		}
		claim.BalanceAfter = after

		created = true
		entry = &claim
		balance = b
		return nil
	})
	if err != nil {
		return false, nil, nil, err
	}
	return created, entry, balance, nil
}

func (r *gormRepository) Refund(ctx context.Context, originalTransactionID uint, today string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error) {
	var (
		created bool
		entry   *models.CreditTransaction
		balance *models.CreditBalance
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original models.CreditTransaction
		if err := tx.First(&original, originalTransactionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if original.Kind != models.CreditKindSpend {
			return ErrTransactionNotFound
		}

		origID := original.ID
		refund := models.CreditTransaction{
			UserID:                original.UserID,
			Kind:                  models.CreditKindRefund,
			Amount:                original.Amount,
			Bucket:                original.Bucket,
			RefundedTransactionID: &origID,
			Description:           "refund: " + original.Description,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "refunded_transaction_id"}},
			DoNothing: true,
		}).Create(&refund)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var prior models.CreditTransaction
			if err := tx.Where("refunded_transaction_id = ?", origID).
				First(&prior).Error; err != nil {
				return err
			}
			b, err := lockBalance(tx, original.UserID, today)
			if err != nil {
				return err
			}
			created = false
			entry = &prior
			balance = b
			return nil
		}

		b, err := lockBalance(tx, original.UserID, today)
		if err != nil {
			return err
		}
		switch original.Bucket {
		case models.CreditBucketFree:
			if b.FreeCreditsUsedToday >= original.Amount {
				b.FreeCreditsUsedToday -= original.Amount
			} else {
				b.FreeCreditsUsedToday = 0
			}
		case models.CreditBucketBonus:
			b.BonusCredits += original.Amount
		default:
			b.PaidCredits += original.Amount
		}
		if err := tx.Model(&models.CreditBalance{}).
			Where("id = ?", b.ID).
			Updates(map[string]interface{}{
				"free_credits_used_today": b.FreeCreditsUsedToday,
				"paid_credits":            b.PaidCredits,
				"bonus_credits":           b.BonusCredits,
			}).Error; err != nil {
			return err
		}

		after := b.TotalAvailable(dailyFreeLimit)
		if err := tx.Model(&models.CreditTransaction{}).
			Where("id = ?", refund.ID).
			Update("balance_after", after).Error; err != nil {
			return err
		}
		refund.BalanceAfter = after

		created = true
		entry = &refund
		balance = b
		return nil
	})
	if err != nil {
		return false, nil, nil, err
	}
	return created, entry, balance, nil
}

func (r *gormRepository) FindTransaction(ctx context.Context, id uint) (*models.CreditTransaction, error) {
	var entry models.CreditTransaction
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) ListTransactions(ctx context.Context, userID uint, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var entries []models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
