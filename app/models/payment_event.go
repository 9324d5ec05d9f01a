package models

import "time"

// PaymentEvent stores payment-completed webhook deliveries with deduplication
// metadata for idempotent processing. CreditsGranted is snapshotted from the
// price table at ingestion time so later tier changes never alter the effect
// of an already-recorded payment on redelivery.
type PaymentEvent struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ExternalPaymentID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_events_external_id" json:"external_payment_id"`
	AmountCents       int        `gorm:"not null" json:"amount_cents"`
	CustomerReference string     `gorm:"type:varchar(191);not null;default:'';index" json:"customer_reference"`
	CreditsGranted    int        `gorm:"not null;default:0" json:"credits_granted"`
	PayloadJSON       string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid    bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError   string     `gorm:"type:text" json:"processing_error"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsProcessed reports whether the event has already been applied to a ledger.
func (e *PaymentEvent) IsProcessed() bool {
	return e.ProcessedAt != nil
}
