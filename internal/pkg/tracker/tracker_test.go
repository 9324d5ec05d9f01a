package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/ledger"
	"github.com/JonasWeigert/VowPix/internal/pkg/ratelimit"
	"github.com/JonasWeigert/VowPix/internal/pkg/tiers"
)

type trackerFixture struct {
	svc      *Service
	requests *fakeRequestStore
	ledger   *ledger.Service
}

func newTrackerFixture() *trackerFixture {
	requests := newFakeRequestStore()
	ledgerSvc := ledger.NewService(newFakeLedgerStore(), 3, time.UTC)
	return &trackerFixture{
		svc:      NewService(ratelimit.NewAuthority(requests), ledgerSvc, requests),
		requests: requests,
		ledger:   ledgerSvc,
	}
}

func authenticatedInput(userID uint) BeginInput {
	uid := userID
	return BeginInput{
		UserID:          &uid,
		SessionID:       "sess-1",
		IPAddress:       "203.0.113.7",
		Identifier:      "user:1",
		IdentifierType:  models.IdentifierTypeAuthenticated,
		Tier:            tiers.TierAuthenticated,
		PayloadHash:     "cafe1234",
		StylesRequested: []string{"classic", "vintage"},
	}
}

func TestBeginDebitsAuthenticatedIdentity(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	result, err := f.svc.Begin(ctx, authenticatedInput(1))
	require.NoError(t, err)

	req := result.Request
	assert.NotEmpty(t, req.UUID)
	assert.Equal(t, models.GenerationStatusPending, req.Status)
	assert.Equal(t, 1, req.CreditsConsumed)
	require.NotNil(t, req.CreditTransactionID)
	assert.Equal(t, "classic,vintage", req.StylesRequested)

	require.NotNil(t, result.Balance)
	assert.Equal(t, 2, result.Balance.FreeRemaining)

	assert.True(t, result.RateLimit.CanProceed)
	assert.Equal(t, tiers.LimitsFor(tiers.TierAuthenticated).Hourly-1, result.RateLimit.HourlyRemaining)
}

func TestBeginAnonymousConsumesNoCredit(t *testing.T) {
	f := newTrackerFixture()

	result, err := f.svc.Begin(context.Background(), BeginInput{
		SessionID:       "sess-anon",
		Identifier:      "anon:4f2a",
		IdentifierType:  models.IdentifierTypeAnonymousSession,
		Tier:            tiers.TierAnonymous,
		StylesRequested: []string{"classic"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.GenerationStatusPending, result.Request.Status)
	assert.Equal(t, 0, result.Request.CreditsConsumed)
	assert.Nil(t, result.Request.CreditTransactionID)
	assert.Nil(t, result.Balance)
}

func TestBeginRateLimitedIsTerminal(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	in := BeginInput{
		SessionID:       "sess-anon",
		Identifier:      "anon:4f2a",
		IdentifierType:  models.IdentifierTypeAnonymousSession,
		Tier:            tiers.TierAnonymous,
		StylesRequested: []string{"classic"},
	}
	for i := 0; i < 3; i++ {
		_, err := f.svc.Begin(ctx, in)
		require.NoError(t, err)
	}

	result, err := f.svc.Begin(ctx, in)
	assert.ErrorIs(t, err, ErrRateLimited)
	require.NotNil(t, result)
	assert.Equal(t, models.GenerationStatusRateLimited, result.Request.Status)
	assert.Equal(t, 0, result.RateLimit.HourlyRemaining)
	assert.False(t, result.RateLimit.ResetAt.IsZero())

	// rate_limited is terminal, no lifecycle step may move it
	err = f.svc.MarkProcessing(ctx, result.Request.UUID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBeginInsufficientCreditsFailsRequest(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	// Burn the 3 free dailies; the account holds nothing else
	for i := 0; i < 3; i++ {
		_, err := f.svc.Begin(ctx, authenticatedInput(1))
		require.NoError(t, err)
	}

	result, err := f.svc.Begin(ctx, authenticatedInput(1))
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	require.NotNil(t, result)

	// The pending row was closed as failed without a refund
	req, getErr := f.svc.Get(ctx, result.Request.UUID)
	require.NoError(t, getErr)
	assert.Equal(t, models.GenerationStatusFailed, req.Status)
	assert.Equal(t, 0, req.CreditsConsumed)

	balance, err := f.ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, balance.TotalAvailable)
}

func TestCompleteLifecycle(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	result, err := f.svc.Begin(ctx, authenticatedInput(1))
	require.NoError(t, err)
	uuid := result.Request.UUID

	require.NoError(t, f.svc.MarkProcessing(ctx, uuid))
	require.NoError(t, f.svc.Complete(ctx, uuid, 1500*time.Millisecond, "portraits/"+uuid+".jpg"))

	req, err := f.svc.Get(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusCompleted, req.Status)
	assert.Equal(t, int64(1500), req.ProcessingTimeMs)
	assert.Equal(t, "portraits/"+uuid+".jpg", req.ResultObjectKey)
	assert.NotNil(t, req.CompletedAt)
	assert.True(t, req.IsTerminal())

	// Completed requests keep their debit
	balance, err := f.ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, balance.FreeRemaining)
}

func TestFailRefundsConsumedCredit(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	result, err := f.svc.Begin(ctx, authenticatedInput(1))
	require.NoError(t, err)
	uuid := result.Request.UUID
	require.NoError(t, f.svc.MarkProcessing(ctx, uuid))

	require.NoError(t, f.svc.Fail(ctx, uuid, 900*time.Millisecond, "upstream generation error"))

	req, err := f.svc.Get(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusFailed, req.Status)
	assert.Equal(t, "upstream generation error", req.ErrorMessage)

	// The debit came back
	balance, err := f.ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, balance.FreeRemaining)

	// Retrying Fail is a no-op and refunds nothing further
	require.NoError(t, f.svc.Fail(ctx, uuid, 900*time.Millisecond, "upstream generation error"))
	balance, err = f.ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, balance.FreeRemaining)
}

func TestInvalidLifecycleSteps(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	result, err := f.svc.Begin(ctx, authenticatedInput(1))
	require.NoError(t, err)
	uuid := result.Request.UUID

	// pending -> completed skips processing
	err = f.svc.Complete(ctx, uuid, time.Second, "portraits/x.jpg")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, f.svc.MarkProcessing(ctx, uuid))
	require.NoError(t, f.svc.Complete(ctx, uuid, time.Second, "portraits/x.jpg"))

	// terminal states reject further steps
	err = f.svc.MarkProcessing(ctx, uuid)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = f.svc.Fail(ctx, uuid, time.Second, "late failure")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetUnknownRequest(t *testing.T) {
	f := newTrackerFixture()
	_, err := f.svc.Get(context.Background(), "no-such-uuid")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestBeginHonorsCallerRequestUUID(t *testing.T) {
	f := newTrackerFixture()

	result, err := f.svc.Begin(context.Background(), BeginInput{
		SessionID:      "sess-anon",
		Identifier:     "anon:4f2a",
		IdentifierType: models.IdentifierTypeAnonymousSession,
		Tier:           tiers.TierAnonymous,
		RequestUUID:    "11111111-2222-3333-4444-555555555555",
	})
	require.NoError(t, err)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", result.Request.UUID)
}
