package quotacache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/JonasWeigert/VowPix/internal/pkg/cache"
	"github.com/JonasWeigert/VowPix/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

// The quota cache mirrors the free-tier daily counter for optimistic UI
// responses. It is never authoritative: admission always goes through the
// rate limit authority and the ledger, and any server-derived value
// overwrites the mirror. Keys embed the calendar day in the reference
// timezone, so the daily reset is plain key rotation evaluated lazily on
// read; there is no cleanup scheduler.
const (
	freeCounterKeyFormat = "quota:free:%s:%s" // Format: quota:free:<identity>:<YYYY-MM-DD>
	freeCounterTTL       = 48 * time.Hour
)

var ctx = context.Background()

// referenceLocation returns the fixed timezone all daily quota days are
// computed in.
func referenceLocation() *time.Location {
	loc, err := time.LoadLocation(env.GetEnv("QUOTA_TIMEZONE", "UTC"))
	if err != nil {
		return time.UTC
	}
	return loc
}

func freeCounterKey(identity string, day string) string {
	return fmt.Sprintf(freeCounterKeyFormat, identity, day)
}

func today() string {
	return time.Now().In(referenceLocation()).Format("2006-01-02")
}

// GetFreeUsedToday returns the mirrored used count for the identity's
// current day. A missing key reads as zero.
func GetFreeUsedToday(identity string) int {
	val, err := cache.GetInt(freeCounterKey(identity, today()))
	if err != nil {
		return 0
	}
	return val
}

// IncrementFreeUsed optimistically bumps the mirrored counter after an
// admitted generation. Errors are ignored; the mirror may lag and will be
// corrected by the next server sync.
func IncrementFreeUsed(identity string) {
	key := freeCounterKey(identity, today())
	rdb := cache.GetClient()
	if err := rdb.Incr(ctx, key).Err(); err != nil {
		return
	}
	rdb.Expire(ctx, key, freeCounterTTL)
}

// SyncFromServer overwrites the mirror with the server-derived used count.
// On any conflict the server value wins.
func SyncFromServer(identity string, usedToday int) {
	_ = cache.Set(freeCounterKey(identity, today()), strconv.Itoa(usedToday), freeCounterTTL)
}

// Invalidate drops the mirrored counter for the identity's current day.
func Invalidate(identity string) {
	_ = cache.Delete(freeCounterKey(identity, today()))
}

// client returns the raw Redis client; used by the auth limiter.
func client() *redis.Client {
	return cache.GetClient()
}
