package models

import "time"

// Credit transaction kinds.
const (
	CreditKindEarn   = "earn"
	CreditKindSpend  = "spend"
	CreditKindRefund = "refund"
	CreditKindBonus  = "bonus"
)

// Credit buckets a spend can debit. Refunds restore the same bucket.
const (
	CreditBucketFree  = "free"
	CreditBucketPaid  = "paid"
	CreditBucketBonus = "bonus"
)

// CreditTransaction is one ledger entry. PaymentReference carries the
// idempotency key for purchases: the unique index guarantees a given external
// payment is applied at most once, at the storage level.
type CreditTransaction struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"not null;index" json:"user_id"`
	Kind                  string    `gorm:"type:varchar(10);not null;index" json:"kind"`
	Amount                int       `gorm:"not null" json:"amount"`
	Bucket                string    `gorm:"type:varchar(10);not null;default:''" json:"bucket"`
	BalanceAfter          int       `gorm:"not null;default:0" json:"balance_after"`
	PaymentReference      *string   `gorm:"type:varchar(191);uniqueIndex:ux_credit_transactions_payment_ref" json:"payment_reference,omitempty"`
	RefundedTransactionID *uint     `gorm:"uniqueIndex:ux_credit_transactions_refunded_tx" json:"refunded_transaction_id,omitempty"`
	Description           string    `gorm:"type:varchar(255);not null;default:''" json:"description"`
	CreatedAt             time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// IsCredit reports whether the transaction adds value to the balance.
func (t *CreditTransaction) IsCredit() bool {
	switch t.Kind {
	case CreditKindEarn, CreditKindRefund, CreditKindBonus:
		return true
	default:
		return false
	}
}
