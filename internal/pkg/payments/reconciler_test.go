package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/ledger"
)

// fakeEventStore holds payment events in memory with the same unique
// external_payment_id semantics the real table enforces.
type fakeEventStore struct {
	mu         sync.Mutex
	byExternal map[string]*models.PaymentEvent
	byID       map[uint]*models.PaymentEvent
	customers  map[string]uint
	nextID     uint
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		byExternal: make(map[string]*models.PaymentEvent),
		byID:       make(map[uint]*models.PaymentEvent),
		customers:  map[string]uint{"42": 42},
	}
}

func (f *fakeEventStore) CreatePaymentEventIfNotExists(_ context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byExternal[event.ExternalPaymentID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	f.nextID++
	event.ID = f.nextID
	event.CreatedAt = time.Now()
	f.byExternal[event.ExternalPaymentID] = event
	f.byID[event.ID] = event
	cp := *event
	return true, &cp, nil
}

func (f *fakeEventStore) MarkProcessed(_ context.Context, eventID uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.byID[eventID]
	if !ok {
		return errors.New("event not found")
	}
	now := time.Now()
	event.ProcessedAt = &now
	event.ProcessingError = processingError
	return nil
}

func (f *fakeEventStore) ResolveCustomer(_ context.Context, customerReference string) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.customers[customerReference]
	if !ok {
		return 0, ErrUnknownCustomer
	}
	return id, nil
}

func (f *fakeEventStore) stored(externalID string) *models.PaymentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byExternal[externalID]
}

// flakyLedgerStore wraps the minimal ledger verbs the reconciler touches and
// can be switched into failure mode to simulate a store outage.
type flakyLedgerStore struct {
	mu          sync.Mutex
	balances    map[uint]*models.CreditBalance
	paymentRefs map[string]*models.CreditTransaction
	nextTxID    uint
	failAll     bool
}

func newFlakyLedgerStore() *flakyLedgerStore {
	return &flakyLedgerStore{
		balances:    make(map[uint]*models.CreditBalance),
		paymentRefs: make(map[string]*models.CreditTransaction),
	}
}

var errLedgerDown = errors.New("ledger store down")

func (f *flakyLedgerStore) balance(userID uint) *models.CreditBalance {
	b, ok := f.balances[userID]
	if !ok {
		b = &models.CreditBalance{ID: userID, UserID: userID}
		f.balances[userID] = b
	}
	return b
}

func (f *flakyLedgerStore) GetOrCreateBalance(_ context.Context, userID uint, _ string) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errLedgerDown
	}
	cp := *f.balance(userID)
	return &cp, nil
}

func (f *flakyLedgerStore) ConsumeCredit(_ context.Context, _ uint, _ string, _ int, _ string) (*models.CreditBalance, *models.CreditTransaction, error) {
	return nil, nil, errors.New("not used by the reconciler")
}

func (f *flakyLedgerStore) AddCredits(_ context.Context, userID uint, amount int, paymentReference *string, description, kind, _ string, dailyFreeLimit int) (bool, *models.CreditTransaction, *models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, nil, nil, errLedgerDown
	}
	if paymentReference != nil {
		if tx, ok := f.paymentRefs[*paymentReference]; ok {
			cp := *f.balance(userID)
			return false, tx, &cp, nil
		}
	}
	b := f.balance(userID)
	b.PaidCredits += amount
	f.nextTxID++
	tx := &models.CreditTransaction{
		ID:               f.nextTxID,
		UserID:           userID,
		Kind:             kind,
		Amount:           amount,
		Bucket:           models.CreditBucketPaid,
		BalanceAfter:     b.TotalAvailable(dailyFreeLimit),
		PaymentReference: paymentReference,
		Description:      description,
	}
	if paymentReference != nil {
		f.paymentRefs[*paymentReference] = tx
	}
	cp := *b
	return true, tx, &cp, nil
}

func (f *flakyLedgerStore) Refund(_ context.Context, _ uint, _ string, _ int) (bool, *models.CreditTransaction, *models.CreditBalance, error) {
	return false, nil, nil, errors.New("not used by the reconciler")
}

func (f *flakyLedgerStore) FindTransaction(_ context.Context, _ uint) (*models.CreditTransaction, error) {
	return nil, ledger.ErrTransactionNotFound
}

func (f *flakyLedgerStore) ListTransactions(_ context.Context, _ uint, _ int) ([]models.CreditTransaction, error) {
	return nil, nil
}

func newReconcilerFixture() (*Service, *fakeEventStore, *flakyLedgerStore) {
	events := newFakeEventStore()
	store := newFlakyLedgerStore()
	svc := NewService(events, ledger.NewService(store, 3, time.UTC))
	return svc, events, store
}

func completedEvent(paymentID string, amountCents int) EventInput {
	return EventInput{
		ExternalPaymentID: paymentID,
		AmountCents:       amountCents,
		CustomerReference: "42",
		PayloadJSON:       `{"id":"` + paymentID + `"}`,
		SignatureValid:    true,
	}
}

func TestProcessGrantsCreditsForKnownTier(t *testing.T) {
	svc, events, _ := newReconcilerFixture()

	result, err := svc.Process(context.Background(), completedEvent("pay_001", 999))
	require.NoError(t, err)

	assert.Equal(t, uint(42), result.UserID)
	assert.Equal(t, 25, result.CreditsGranted)
	assert.False(t, result.AlreadyProcessed)
	require.NotNil(t, result.Balance)
	assert.Equal(t, 25, result.Balance.Paid)

	stored := events.stored("pay_001")
	require.NotNil(t, stored)
	assert.True(t, stored.IsProcessed())
	assert.Empty(t, stored.ProcessingError)
	assert.Equal(t, 25, stored.CreditsGranted)
}

func TestProcessRedeliveryGrantsNothing(t *testing.T) {
	svc, _, store := newReconcilerFixture()
	ctx := context.Background()

	_, err := svc.Process(ctx, completedEvent("pay_002", 499))
	require.NoError(t, err)

	result, err := svc.Process(ctx, completedEvent("pay_002", 499))
	require.NoError(t, err)
	assert.True(t, result.AlreadyProcessed)
	assert.Equal(t, 0, result.CreditsGranted)

	store.mu.Lock()
	paid := store.balance(42).PaidCredits
	store.mu.Unlock()
	assert.Equal(t, 10, paid)
}

func TestProcessRejectsUnknownPriceTier(t *testing.T) {
	svc, events, store := newReconcilerFixture()

	_, err := svc.Process(context.Background(), completedEvent("pay_003", 777))
	assert.ErrorIs(t, err, ErrUnknownPriceTier)

	// Rejected permanently: the event is processed so redelivery stops, and
	// no credits moved.
	stored := events.stored("pay_003")
	require.NotNil(t, stored)
	assert.True(t, stored.IsProcessed())
	assert.Equal(t, ErrUnknownPriceTier.Error(), stored.ProcessingError)

	store.mu.Lock()
	paid := store.balance(42).PaidCredits
	store.mu.Unlock()
	assert.Equal(t, 0, paid)
}

func TestProcessRejectsUnknownCustomer(t *testing.T) {
	svc, events, _ := newReconcilerFixture()

	in := completedEvent("pay_004", 2499)
	in.CustomerReference = "9999"
	_, err := svc.Process(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnknownCustomer)

	stored := events.stored("pay_004")
	require.NotNil(t, stored)
	assert.True(t, stored.IsProcessed())
	assert.Equal(t, ErrUnknownCustomer.Error(), stored.ProcessingError)
}

func TestProcessRetriesAfterTransientLedgerFailure(t *testing.T) {
	svc, events, store := newReconcilerFixture()
	ctx := context.Background()

	store.failAll = true
	_, err := svc.Process(ctx, completedEvent("pay_005", 2499))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownPriceTier)

	// The event stays unprocessed so the provider's redelivery reattempts it
	stored := events.stored("pay_005")
	require.NotNil(t, stored)
	assert.False(t, stored.IsProcessed())

	store.failAll = false
	result, err := svc.Process(ctx, completedEvent("pay_005", 2499))
	require.NoError(t, err)
	assert.Equal(t, 75, result.CreditsGranted)
	assert.True(t, events.stored("pay_005").IsProcessed())
}

func TestProcessValidatesInput(t *testing.T) {
	svc, _, _ := newReconcilerFixture()
	ctx := context.Background()

	_, err := svc.Process(ctx, EventInput{AmountCents: 999, CustomerReference: "42"})
	assert.Error(t, err)

	_, err = svc.Process(ctx, EventInput{ExternalPaymentID: "pay_006", AmountCents: -5, CustomerReference: "42"})
	assert.Error(t, err)

	_, err = svc.Process(ctx, EventInput{ExternalPaymentID: "pay_007", AmountCents: 999})
	assert.Error(t, err)
}
