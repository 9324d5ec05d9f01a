package models

import "time"

// Identifier types a quota decision can be keyed on.
const (
	IdentifierTypeIP               = "ip"
	IdentifierTypeAuthenticated    = "authenticated_user"
	IdentifierTypeAnonymousSession = "anonymous_session"
)

// QuotaIdentity is the lock anchor for rate-limit decisions. The row for an
// identity is selected FOR UPDATE inside the check-and-record transaction so
// two concurrent requests cannot both be admitted into the last window slot.
type QuotaIdentity struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Identifier     string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_quota_identities_identity,priority:1" json:"identifier"`
	IdentifierType string    `gorm:"type:varchar(20);not null;uniqueIndex:ux_quota_identities_identity,priority:2" json:"identifier_type"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidIdentifierType reports whether the given type is one we rate limit.
func ValidIdentifierType(t string) bool {
	switch t {
	case IdentifierTypeIP, IdentifierTypeAuthenticated, IdentifierTypeAnonymousSession:
		return true
	default:
		return false
	}
}
