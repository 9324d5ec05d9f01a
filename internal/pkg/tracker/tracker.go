package tracker

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/ledger"
	"github.com/JonasWeigert/VowPix/internal/pkg/ratelimit"
	"github.com/JonasWeigert/VowPix/internal/pkg/tiers"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrRateLimited is returned by Begin when the quota window is full.
	// The returned BeginResult still carries the rate limit status so the
	// caller can report remaining counts and the reset time.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrRequestNotFound is returned for transitions on unknown requests.
	ErrRequestNotFound = errors.New("generation request not found")

	// ErrInvalidTransition is returned when a lifecycle step is not legal
	// from the request's current state.
	ErrInvalidTransition = errors.New("invalid generation request transition")
)

// Service drives the generation request lifecycle:
// pending -> processing -> {completed, failed}, with rate_limited as a
// terminal intake outcome. It is the join point between the rate limit
// authority and the credit ledger.
//
// A request stuck in processing stays there until the caller resolves it;
// there is no timeout-driven rollback. Resolving to failed is the only
// trigger for a refund.
type Service struct {
	authority *ratelimit.Authority
	ledger    *ledger.Service
	repo      Repository
}

// NewService creates a tracker from its collaborators.
func NewService(authority *ratelimit.Authority, ledgerSvc *ledger.Service, repo Repository) *Service {
	return &Service{authority: authority, ledger: ledgerSvc, repo: repo}
}

// NewServiceFromDB wires the tracker and its collaborators from one DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(ratelimit.NewAuthorityFromDB(db), ledger.NewServiceFromDB(db), NewRepository(db))
}

// BeginInput describes one generation attempt at intake time. Identity and
// tier are derived server-side by the caller, never from client input.
type BeginInput struct {
	UserID          *uint
	SessionID       string
	IPAddress       string
	Identifier      string
	IdentifierType  string
	Tier            tiers.Tier
	PayloadHash     string
	StylesRequested []string
	RequestUUID     string // optional idempotent request id
}

// BeginResult carries the recorded request plus the quota and balance state
// observed at intake.
type BeginResult struct {
	Request   *models.GenerationRequest
	RateLimit *ratelimit.Status
	Balance   *ledger.Balance
}

// Begin admits one attempt. The quota check and the pending record are one
// atomic unit in the store; afterwards a credit is consumed for
// authenticated identities. Anonymous sessions carry no ledger account and
// are bounded by the anonymous tier windows alone.
func (s *Service) Begin(ctx context.Context, in BeginInput) (*BeginResult, error) {
	requestUUID := strings.TrimSpace(in.RequestUUID)
	if requestUUID == "" {
		requestUUID = uuid.New().String()
	}

	status, req, err := s.authority.CheckAndRecord(ctx, ratelimit.Input{
		Identifier:      in.Identifier,
		IdentifierType:  in.IdentifierType,
		Tier:            in.Tier,
		UserID:          in.UserID,
		SessionID:       in.SessionID,
		IPAddress:       in.IPAddress,
		PayloadHash:     in.PayloadHash,
		StylesRequested: strings.Join(in.StylesRequested, ","),
		RequestUUID:     requestUUID,
	})
	if err != nil {
		return nil, err
	}

	result := &BeginResult{Request: req, RateLimit: status}
	if !status.CanProceed {
		setStatusMirror(req.UUID, models.GenerationStatusRateLimited)
		return result, ErrRateLimited
	}
	setStatusMirror(req.UUID, models.GenerationStatusPending)

	if in.UserID == nil {
		return result, nil
	}

	balance, spend, err := s.ledger.ConsumeCredit(ctx, *in.UserID, "portrait generation "+req.UUID)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			// Nothing was debited; fail the pending row without a refund.
			if failErr := s.repo.Transition(ctx, req.ID, models.GenerationStatusPending, models.GenerationStatusFailed, map[string]interface{}{
				"error_message": "insufficient credits",
				"completed_at":  time.Now(),
			}); failErr != nil {
				log.Printf("tracker: failed to close request %s after credit rejection: %v", req.UUID, failErr)
			}
			setStatusMirror(req.UUID, models.GenerationStatusFailed)
		}
		return result, err
	}

	if err := s.repo.AttachDebit(ctx, req.ID, spend.ID); err != nil {
		return nil, err
	}
	req.CreditsConsumed = 1
	req.CreditTransactionID = &spend.ID
	result.Balance = balance
	return result, nil
}

// MarkProcessing records the start of the downstream generation call.
func (s *Service) MarkProcessing(ctx context.Context, requestUUID string) error {
	req, err := s.repo.GetByUUID(ctx, requestUUID)
	if err != nil {
		return err
	}
	if !req.CanTransition(models.GenerationStatusProcessing) {
		return ErrInvalidTransition
	}
	if err := s.repo.Transition(ctx, req.ID, req.Status, models.GenerationStatusProcessing, nil); err != nil {
		return err
	}
	setStatusMirror(requestUUID, models.GenerationStatusProcessing)
	return nil
}

// Complete resolves a request successfully. The debit stays on the books.
func (s *Service) Complete(ctx context.Context, requestUUID string, processingTime time.Duration, resultObjectKey string) error {
	req, err := s.repo.GetByUUID(ctx, requestUUID)
	if err != nil {
		return err
	}
	if !req.CanTransition(models.GenerationStatusCompleted) {
		return ErrInvalidTransition
	}
	err = s.repo.Transition(ctx, req.ID, req.Status, models.GenerationStatusCompleted, map[string]interface{}{
		"processing_time_ms": processingTime.Milliseconds(),
		"result_object_key":  resultObjectKey,
		"completed_at":       time.Now(),
	})
	if err != nil {
		return err
	}
	setStatusMirror(requestUUID, models.GenerationStatusCompleted)
	return nil
}

// Fail resolves a request as failed and refunds any credit it consumed, so a
// failed request never leaves a net deficit. Fail is safe to retry: the
// refund is idempotent per original spend transaction.
func (s *Service) Fail(ctx context.Context, requestUUID string, processingTime time.Duration, errorMessage string) error {
	req, err := s.repo.GetByUUID(ctx, requestUUID)
	if err != nil {
		return err
	}
	if req.Status == models.GenerationStatusFailed {
		return nil
	}
	if !req.CanTransition(models.GenerationStatusFailed) {
		return ErrInvalidTransition
	}

	if req.CreditsConsumed > 0 && req.CreditTransactionID != nil {
		if _, _, err := s.ledger.Refund(ctx, *req.CreditTransactionID); err != nil && !errors.Is(err, ledger.ErrAlreadyRefunded) {
			return err
		}
	}

	err = s.repo.Transition(ctx, req.ID, req.Status, models.GenerationStatusFailed, map[string]interface{}{
		"processing_time_ms": processingTime.Milliseconds(),
		"error_message":      errorMessage,
		"completed_at":       time.Now(),
	})
	if err != nil {
		return err
	}
	setStatusMirror(requestUUID, models.GenerationStatusFailed)
	return nil
}

// Get returns the request by its public UUID.
func (s *Service) Get(ctx context.Context, requestUUID string) (*models.GenerationRequest, error) {
	return s.repo.GetByUUID(ctx, requestUUID)
}
