package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/tiers"
	"gorm.io/gorm"
)

// ErrStoreUnavailable wraps storage failures. The authority fails closed:
// when the request log cannot be consulted, the request is denied rather
// than waved through.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Status is the outcome of a quota check.
type Status struct {
	CanProceed      bool      `json:"can_proceed"`
	HourlyRemaining int       `json:"hourly_remaining"`
	DailyRemaining  int       `json:"daily_remaining"`
	ResetAt         time.Time `json:"reset_at"`
}

// Input describes one generation attempt to admit or reject.
type Input struct {
	Identifier      string
	IdentifierType  string
	Tier            tiers.Tier
	UserID          *uint
	SessionID       string
	IPAddress       string
	PayloadHash     string
	StylesRequested string
	RequestUUID     string
}

// Authority computes sliding-window quota decisions from the generation
// request log. The windows are derived by counting rows, not from a separate
// counter, so the quota can never drift from the recorded history.
type Authority struct {
	repo Repository
	now  func() time.Time
}

// NewAuthority creates a rate limit authority from an injected repository.
func NewAuthority(repo Repository) *Authority {
	return &Authority{repo: repo, now: time.Now}
}

// NewAuthorityFromDB creates a rate limit authority from a GORM DB handle.
func NewAuthorityFromDB(db *gorm.DB) *Authority {
	return NewAuthority(NewRepository(db))
}

// Check reports the current quota state for an identity without recording
// anything. Used for status endpoints; admission must go through
// CheckAndRecord.
func (a *Authority) Check(ctx context.Context, identifier, identifierType string, tier tiers.Tier) (*Status, error) {
	if identifier == "" || !models.ValidIdentifierType(identifierType) {
		return nil, errors.New("identifier and a valid identifier_type are required")
	}

	now := a.now()
	limits := tiers.LimitsFor(tier)
	hourly, daily, err := a.repo.CountWindows(ctx, identifier, identifierType, now.Add(-time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return a.status(now, limits, hourly, daily, hourly < int64(limits.Hourly) && daily < int64(limits.Daily)), nil
}

// CheckAndRecord admits or rejects one attempt and writes the request row in
// the same atomic unit. The repository serializes concurrent calls for one
// identity, so two requests racing for the last window slot cannot both be
// admitted. Rejected attempts are recorded as rate_limited and consume no
// credits and no window slot.
func (a *Authority) CheckAndRecord(ctx context.Context, in Input) (*Status, *models.GenerationRequest, error) {
	if in.Identifier == "" || !models.ValidIdentifierType(in.IdentifierType) {
		return nil, nil, errors.New("identifier and a valid identifier_type are required")
	}
	if in.RequestUUID == "" {
		return nil, nil, errors.New("request uuid is required")
	}

	now := a.now()
	limits := tiers.LimitsFor(in.Tier)
	req := &models.GenerationRequest{
		UUID:            in.RequestUUID,
		UserID:          in.UserID,
		SessionID:       in.SessionID,
		Identifier:      in.Identifier,
		IdentifierType:  in.IdentifierType,
		IPAddress:       in.IPAddress,
		PayloadHash:     in.PayloadHash,
		StylesRequested: in.StylesRequested,
	}

	admitted, hourly, daily, err := a.repo.AdmitAndRecord(ctx, req, now.Add(-time.Hour), now.Add(-24*time.Hour), limits.Hourly, limits.Daily)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if admitted {
		// The freshly recorded request occupies a slot of its own.
		hourly++
		daily++
	}
	return a.status(now, limits, hourly, daily, admitted), req, nil
}

func (a *Authority) status(now time.Time, limits tiers.Limits, hourly, daily int64, canProceed bool) *Status {
	return &Status{
		CanProceed:      canProceed,
		HourlyRemaining: remaining(limits.Hourly, hourly),
		DailyRemaining:  remaining(limits.Daily, daily),
		ResetAt:         now.Truncate(time.Hour).Add(time.Hour),
	}
}

func remaining(limit int, used int64) int {
	r := limit - int(used)
	if r < 0 {
		return 0
	}
	return r
}
