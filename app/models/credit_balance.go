package models

import (
	"time"
)

// CreditBalance holds the per-user credit buckets. All mutation goes through
// the ledger package; nothing else writes these rows.
type CreditBalance struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	FreeCreditsUsedToday int       `gorm:"not null;default:0" json:"free_credits_used_today"`
	PaidCredits          int       `gorm:"not null;default:0" json:"paid_credits"`
	BonusCredits         int       `gorm:"not null;default:0" json:"bonus_credits"`
	DailyResetDate       string    `gorm:"type:varchar(10);not null;default:''" json:"daily_reset_date"` // YYYY-MM-DD in the reference timezone
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FreeRemaining returns how many free credits are left today for the given
// daily limit. Never negative.
func (b *CreditBalance) FreeRemaining(dailyFreeLimit int) int {
	remaining := dailyFreeLimit - b.FreeCreditsUsedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TotalAvailable returns the spendable credit total across all buckets.
func (b *CreditBalance) TotalAvailable(dailyFreeLimit int) int {
	return b.FreeRemaining(dailyFreeLimit) + b.PaidCredits + b.BonusCredits
}

// NeedsDailyReset reports whether the stored reset date is stale relative to
// the given calendar day (YYYY-MM-DD in the reference timezone).
func (b *CreditBalance) NeedsDailyReset(today string) bool {
	return b.DailyResetDate != today
}
