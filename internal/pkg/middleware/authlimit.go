package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/JonasWeigert/VowPix/internal/pkg/quotacache"
)

// AuthAttemptLimiter throttles repeated auth attempts per client IP for one
// action (login, signup, password reset). The throttle lives in Redis and
// fails open; credential verification stays authoritative behind it.
func AuthAttemptLimiter(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result := quotacache.RegisterAuthAttempt(c.IP(), action)
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":               "too_many_attempts",
				"message":             "Too many attempts, please try again later",
				"retry_after_seconds": retryAfter,
			})
		}
		return c.Next()
	}
}
