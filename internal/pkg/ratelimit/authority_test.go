package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/tiers"
)

// fakeWindowRepository keeps the request log in memory. AdmitAndRecord runs
// under one mutex, matching the identity row lock of the real store.
type fakeWindowRepository struct {
	mu       sync.Mutex
	requests []*models.GenerationRequest
	clock    func() time.Time
	failAll  bool
}

func newFakeWindowRepository(clock func() time.Time) *fakeWindowRepository {
	return &fakeWindowRepository{clock: clock}
}

func (f *fakeWindowRepository) count(identifier, identifierType string, hourStart, dayStart time.Time) (int64, int64) {
	var hourly, daily int64
	for _, req := range f.requests {
		if req.Identifier != identifier || req.IdentifierType != identifierType {
			continue
		}
		if !req.CountsAgainstQuota() {
			continue
		}
		if req.CreatedAt.After(hourStart) {
			hourly++
		}
		if req.CreatedAt.After(dayStart) {
			daily++
		}
	}
	return hourly, daily
}

func (f *fakeWindowRepository) CountWindows(_ context.Context, identifier, identifierType string, hourStart, dayStart time.Time) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, 0, errors.New("connection refused")
	}
	hourly, daily := f.count(identifier, identifierType, hourStart, dayStart)
	return hourly, daily, nil
}

func (f *fakeWindowRepository) AdmitAndRecord(_ context.Context, req *models.GenerationRequest, hourStart, dayStart time.Time, hourlyLimit, dailyLimit int) (bool, int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, 0, 0, errors.New("connection refused")
	}

	hourly, daily := f.count(req.Identifier, req.IdentifierType, hourStart, dayStart)
	admitted := hourly < int64(hourlyLimit) && daily < int64(dailyLimit)
	if admitted {
		req.Status = models.GenerationStatusPending
	} else {
		req.Status = models.GenerationStatusRateLimited
	}
	req.CreatedAt = f.clock()
	f.requests = append(f.requests, req)
	return admitted, hourly, daily, nil
}

func testInput(uuid string) Input {
	return Input{
		Identifier:     "anon:abc",
		IdentifierType: models.IdentifierTypeAnonymousSession,
		Tier:           tiers.TierAnonymous,
		RequestUUID:    uuid,
	}
}

func TestCheckAndRecordAnonymousWindow(t *testing.T) {
	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := newFakeWindowRepository(func() time.Time { return current })
	authority := NewAuthority(repo)
	authority.now = func() time.Time { return current }
	ctx := context.Background()

	// Anonymous tier: 3 per hour. First three pass, the fourth is rejected.
	for i := 0; i < 3; i++ {
		status, req, err := authority.CheckAndRecord(ctx, testInput(uuidN(i)))
		require.NoError(t, err)
		assert.True(t, status.CanProceed, "request %d", i)
		assert.Equal(t, models.GenerationStatusPending, req.Status)
		assert.Equal(t, 2-i, status.HourlyRemaining)
	}

	status, req, err := authority.CheckAndRecord(ctx, testInput("uuid-overflow"))
	require.NoError(t, err)
	assert.False(t, status.CanProceed)
	assert.Equal(t, models.GenerationStatusRateLimited, req.Status)
	assert.Equal(t, 0, status.HourlyRemaining)
	assert.Equal(t, 0, status.DailyRemaining)
}

func TestRateLimitedRowsDoNotConsumeSlots(t *testing.T) {
	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := newFakeWindowRepository(func() time.Time { return current })
	authority := NewAuthority(repo)
	authority.now = func() time.Time { return current }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := authority.CheckAndRecord(ctx, testInput(uuidN(i)))
		require.NoError(t, err)
	}

	// 3 admitted + 2 rejected rows exist; only admitted ones count, so the
	// window state is unchanged by the rejections.
	status, err := authority.Check(ctx, "anon:abc", models.IdentifierTypeAnonymousSession, tiers.TierAnonymous)
	require.NoError(t, err)
	assert.Equal(t, 0, status.HourlyRemaining)

	// An hour later the window is clear again
	current = current.Add(61 * time.Minute)
	status, _, err = authority.CheckAndRecord(ctx, testInput("uuid-later"))
	require.NoError(t, err)
	assert.True(t, status.CanProceed)
}

func TestHourlyWindowSlides(t *testing.T) {
	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := newFakeWindowRepository(func() time.Time { return current })
	authority := NewAuthority(repo)
	authority.now = func() time.Time { return current }
	ctx := context.Background()

	in := Input{
		Identifier:     "user:9",
		IdentifierType: models.IdentifierTypeAuthenticated,
		Tier:           tiers.TierAuthenticated,
	}

	// Fill the hourly window (30 for authenticated)
	for i := 0; i < 30; i++ {
		in.RequestUUID = uuidN(i)
		status, _, err := authority.CheckAndRecord(ctx, in)
		require.NoError(t, err)
		require.True(t, status.CanProceed, "request %d", i)
	}
	in.RequestUUID = "uuid-hour-full"
	status, _, err := authority.CheckAndRecord(ctx, in)
	require.NoError(t, err)
	assert.False(t, status.CanProceed)
	// Daily window still has room; only the hour is exhausted
	assert.Equal(t, 0, status.HourlyRemaining)
	assert.Greater(t, status.DailyRemaining, 0)

	// 61 minutes later the hourly window has slid past those requests
	current = current.Add(61 * time.Minute)
	in.RequestUUID = "uuid-next-hour"
	status, _, err = authority.CheckAndRecord(ctx, in)
	require.NoError(t, err)
	assert.True(t, status.CanProceed)
}

func TestConcurrentAdmissionNeverExceedsLimit(t *testing.T) {
	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := newFakeWindowRepository(func() time.Time { return current })
	authority := NewAuthority(repo)
	authority.now = func() time.Time { return current }
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	admitted := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			status, _, err := authority.CheckAndRecord(ctx, testInput(uuidN(n)))
			if err != nil {
				t.Error(err)
				return
			}
			admitted <- status.CanProceed
		}(i)
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestCheckFailsClosedOnStoreError(t *testing.T) {
	repo := newFakeWindowRepository(time.Now)
	repo.failAll = true
	authority := NewAuthority(repo)
	ctx := context.Background()

	_, err := authority.Check(ctx, "anon:abc", models.IdentifierTypeAnonymousSession, tiers.TierAnonymous)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, _, err = authority.CheckAndRecord(ctx, testInput("uuid-err"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestResetAtIsNextHourBoundary(t *testing.T) {
	current := time.Date(2026, 3, 14, 10, 42, 17, 0, time.UTC)
	repo := newFakeWindowRepository(func() time.Time { return current })
	authority := NewAuthority(repo)
	authority.now = func() time.Time { return current }

	status, err := authority.Check(context.Background(), "anon:abc", models.IdentifierTypeAnonymousSession, tiers.TierAnonymous)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC), status.ResetAt)
}

func TestCheckRejectsBadIdentity(t *testing.T) {
	authority := NewAuthority(newFakeWindowRepository(time.Now))
	_, err := authority.Check(context.Background(), "", models.IdentifierTypeIP, tiers.TierAnonymous)
	assert.Error(t, err)
	_, err = authority.Check(context.Background(), "x", "martian", tiers.TierAnonymous)
	assert.Error(t, err)
}

func uuidN(n int) string {
	return "uuid-" + string(rune('a'+n%26)) + "-" + time.Duration(n).String()
}
