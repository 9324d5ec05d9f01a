package models

import "time"

// Generation request lifecycle states.
const (
	GenerationStatusPending     = "pending"
	GenerationStatusProcessing  = "processing"
	GenerationStatusCompleted   = "completed"
	GenerationStatusFailed      = "failed"
	GenerationStatusRateLimited = "rate_limited"
)

// GenerationRequest records one portrait generation attempt. Rows double as
// the rate-limit request log: the sliding windows are counted directly from
// this table so the quota and the history cannot drift apart.
type GenerationRequest struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UUID                string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	UserID              *uint      `gorm:"index" json:"user_id,omitempty"`
	SessionID           string     `gorm:"type:varchar(64);not null;default:'';index" json:"session_id"`
	Identifier          string     `gorm:"type:varchar(191);not null;index:idx_generation_requests_identity,priority:1" json:"identifier"`
	IdentifierType      string     `gorm:"type:varchar(20);not null;index:idx_generation_requests_identity,priority:2" json:"identifier_type"`
	IPAddress           string     `gorm:"type:varchar(45);not null;default:''" json:"ip_address"`
	PayloadHash         string     `gorm:"type:varchar(64);not null;default:''" json:"payload_hash"`
	StylesRequested     string     `gorm:"type:varchar(255);not null;default:''" json:"styles_requested"`
	Status              string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreditsConsumed     int        `gorm:"not null;default:0" json:"credits_consumed"`
	CreditTransactionID *uint      `json:"credit_transaction_id,omitempty"`
	ResultObjectKey     string     `gorm:"type:varchar(255);not null;default:''" json:"result_object_key"`
	ProcessingTimeMs    int64      `gorm:"not null;default:0" json:"processing_time_ms"`
	ErrorMessage        string     `gorm:"type:text" json:"error_message"`
	CreatedAt           time.Time  `gorm:"autoCreateTime;index:idx_generation_requests_identity,priority:3" json:"created_at"`
	CompletedAt         *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the request can no longer change state.
func (g *GenerationRequest) IsTerminal() bool {
	switch g.Status {
	case GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusRateLimited:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving to the given status is a legal step of
// the lifecycle state machine.
func (g *GenerationRequest) CanTransition(to string) bool {
	switch g.Status {
	case GenerationStatusPending:
		return to == GenerationStatusProcessing || to == GenerationStatusFailed
	case GenerationStatusProcessing:
		return to == GenerationStatusCompleted || to == GenerationStatusFailed
	default:
		return false
	}
}

// CountsAgainstQuota reports whether the row occupies a sliding-window slot.
// Rejected attempts do not, otherwise a throttled client could extend its own
// lockout forever.
func (g *GenerationRequest) CountsAgainstQuota() bool {
	return g.Status != GenerationStatusRateLimited
}
