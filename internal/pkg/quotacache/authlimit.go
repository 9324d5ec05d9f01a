package quotacache

import (
	"fmt"
	"log"
	"time"
)

// Auth actions throttled independently of generation credits.
const (
	AuthActionLogin         = "login"
	AuthActionSignup        = "signup"
	AuthActionPasswordReset = "password_reset"
)

const (
	authAttemptCeiling = 5
	authAttemptWindow  = 15 * time.Minute
	authLockoutPeriod  = 30 * time.Minute

	authAttemptsKeyFormat = "auth:attempts:%s:%s" // Format: auth:attempts:<action>:<identifier>
	authLockoutKeyFormat  = "auth:lockout:%s:%s"  // Format: auth:lockout:<action>:<identifier>
)

// AuthAttemptResult reports a throttle decision for one auth attempt.
type AuthAttemptResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RegisterAuthAttempt counts one attempt for (identifier, action) and
// reports whether it may proceed. Hitting the ceiling starts a temporary
// lockout; both the window and the lockout expire via key TTLs, lazily.
// When Redis is unreachable the attempt is allowed: this throttle is a
// convenience layer, not the credential check itself.
func RegisterAuthAttempt(identifier, action string) AuthAttemptResult {
	rdb := client()
	lockoutKey := fmt.Sprintf(authLockoutKeyFormat, action, identifier)

	if ttl, err := rdb.TTL(ctx, lockoutKey).Result(); err == nil && ttl > 0 {
		return AuthAttemptResult{Allowed: false, RetryAfter: ttl}
	}

	attemptsKey := fmt.Sprintf(authAttemptsKeyFormat, action, identifier)
	count, err := rdb.Incr(ctx, attemptsKey).Result()
	if err != nil {
		log.Printf("quotacache: auth throttle unavailable for %s/%s: %v", action, identifier, err)
		return AuthAttemptResult{Allowed: true, Remaining: authAttemptCeiling}
	}
	if count == 1 {
		rdb.Expire(ctx, attemptsKey, authAttemptWindow)
	}

	if count > authAttemptCeiling {
		rdb.Set(ctx, lockoutKey, "1", authLockoutPeriod)
		return AuthAttemptResult{Allowed: false, RetryAfter: authLockoutPeriod}
	}

	remaining := authAttemptCeiling - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return AuthAttemptResult{Allowed: true, Remaining: remaining}
}

// ClearAuthAttempts resets the window after a successful auth action.
func ClearAuthAttempts(identifier, action string) {
	rdb := client()
	rdb.Del(ctx, fmt.Sprintf(authAttemptsKeyFormat, action, identifier))
	rdb.Del(ctx, fmt.Sprintf(authLockoutKeyFormat, action, identifier))
}
