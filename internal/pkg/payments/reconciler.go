package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/ledger"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// ErrUnknownCustomer is returned when the customer reference cannot be
// resolved to a local account.
var ErrUnknownCustomer = errors.New("unknown customer reference")

// EventInput is the normalized payment-completed event received from the
// payment provider. Delivery is at-least-once; processing must tolerate
// redelivery of the same external payment id.
type EventInput struct {
	ExternalPaymentID string `validate:"required,max=191"`
	AmountCents       int    `validate:"required,gt=0"`
	CustomerReference string `validate:"required,max=191"`
	PayloadJSON       string
	SignatureValid    bool
}

// Result reports the effect of one event delivery.
type Result struct {
	Event            *models.PaymentEvent
	UserID           uint
	CreditsGranted   int
	AlreadyProcessed bool
	Balance          *ledger.Balance
}

// Service converts payment-completed events into ledger credits exactly once.
// The hard guarantee lives in the ledger's unique payment_reference index;
// the reconciler's own event dedup only short-circuits the common case.
type Service struct {
	repo   Repository
	ledger *ledger.Service
}

// NewService creates a payment reconciler from its collaborators.
func NewService(repo Repository, ledgerSvc *ledger.Service) *Service {
	return &Service{repo: repo, ledger: ledgerSvc}
}

// NewServiceFromDB creates a payment reconciler from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), ledger.NewServiceFromDB(db))
}

// Process applies one delivery. On transient ledger failure the event stays
// unprocessed so the provider's retry reattempts it; on success or permanent
// rejection the event is marked processed and redelivery becomes a no-op.
func (s *Service) Process(ctx context.Context, in EventInput) (*Result, error) {
	in.ExternalPaymentID = strings.TrimSpace(in.ExternalPaymentID)
	in.CustomerReference = strings.TrimSpace(in.CustomerReference)
	if err := validator.New().Struct(in); err != nil {
		return nil, err
	}

	// Snapshot the credit grant at ingestion time. A replayed delivery uses
	// the stored snapshot, so later price table changes cannot change what
	// an already-recorded payment is worth.
	credits, tierErr := CreditsForAmount(in.AmountCents)

	event := &models.PaymentEvent{
		ExternalPaymentID: in.ExternalPaymentID,
		AmountCents:       in.AmountCents,
		CustomerReference: in.CustomerReference,
		CreditsGranted:    credits,
		PayloadJSON:       in.PayloadJSON,
		SignatureValid:    in.SignatureValid,
	}
	created, stored, err := s.repo.CreatePaymentEventIfNotExists(ctx, event)
	if err != nil {
		return nil, err
	}
	if !created && stored.IsProcessed() {
		return &Result{Event: stored, AlreadyProcessed: true}, nil
	}
	if !created {
		// Redelivery of an event whose first processing attempt did not
		// finish. Continue with the stored snapshot.
		credits = stored.CreditsGranted
		tierErr = nil
		if credits == 0 {
			tierErr = ErrUnknownPriceTier
		}
	}

	if tierErr != nil {
		log.Printf("payments: rejecting event %s: amount %d cents matches no price tier", stored.ExternalPaymentID, stored.AmountCents)
		if err := s.repo.MarkProcessed(ctx, stored.ID, tierErr.Error()); err != nil {
			return nil, err
		}
		return &Result{Event: stored}, ErrUnknownPriceTier
	}

	userID, err := s.repo.ResolveCustomer(ctx, stored.CustomerReference)
	if err != nil {
		if errors.Is(err, ErrUnknownCustomer) {
			log.Printf("payments: event %s references unknown customer %q", stored.ExternalPaymentID, stored.CustomerReference)
			if markErr := s.repo.MarkProcessed(ctx, stored.ID, err.Error()); markErr != nil {
				return nil, markErr
			}
			return &Result{Event: stored}, ErrUnknownCustomer
		}
		return nil, err
	}

	ref := stored.ExternalPaymentID
	description := fmt.Sprintf("purchase of %d credits (%d cents)", credits, stored.AmountCents)
	balance, _, err := s.ledger.AddCredits(ctx, userID, credits, &ref, description, models.CreditKindEarn)
	alreadyProcessed := false
	if err != nil {
		if !errors.Is(err, ledger.ErrPaymentAlreadyProcessed) {
			// Transient ledger failure: leave the event unprocessed so the
			// delivery mechanism retries it.
			return nil, err
		}
		alreadyProcessed = true
	}

	if err := s.repo.MarkProcessed(ctx, stored.ID, ""); err != nil {
		return nil, err
	}

	granted := credits
	if alreadyProcessed {
		granted = 0
	}
	return &Result{
		Event:            stored,
		UserID:           userID,
		CreditsGranted:   granted,
		AlreadyProcessed: alreadyProcessed,
		Balance:          balance,
	}, nil
}
