package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasWeigert/VowPix/internal/pkg/database"
	"github.com/JonasWeigert/VowPix/internal/pkg/ledger"
	"github.com/JonasWeigert/VowPix/internal/pkg/quotacache"
	"github.com/JonasWeigert/VowPix/internal/pkg/ratelimit"
	"github.com/JonasWeigert/VowPix/internal/pkg/tiers"
	"github.com/JonasWeigert/VowPix/internal/pkg/usercontext"
)

// HandleGetCredits returns the authenticated user's credit balance.
func HandleGetCredits(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	svc := ledger.NewServiceFromDB(database.GetDB())
	balance, err := svc.GetBalance(context.Background(), userCtx.UserID)
	if err != nil {
		log.Errorf("credits: balance lookup for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load balance"})
	}

	return c.JSON(fiber.Map{
		"free_remaining_today": balance.FreeRemaining,
		"paid":                 balance.Paid,
		"bonus":                balance.Bonus,
		"total_available":      balance.TotalAvailable,
		"daily_free_limit":     svc.DailyFreeLimit(),
	})
}

// HandleGetQuota reports the caller's current rate-limit window state without
// consuming a slot. The response also refreshes the client-visible quota
// mirror so optimistic UI counters reconverge on the server's numbers.
func HandleGetQuota(c *fiber.Ctx) error {
	identity := resolveIdentity(c)

	authority := ratelimit.NewAuthorityFromDB(database.GetDB())
	status, err := authority.Check(context.Background(), identity.Identifier, identity.IdentifierType, identity.Tier)
	if err != nil {
		log.Errorf("quota: check for %s failed: %v", identity.Identifier, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Quota check unavailable"})
	}

	limits := tiers.LimitsFor(identity.Tier)
	usedToday := limits.Daily - status.DailyRemaining
	if usedToday < 0 {
		usedToday = 0
	}
	quotacache.SyncFromServer(identity.Identifier, usedToday)

	return c.JSON(fiber.Map{
		"tier":             string(identity.Tier),
		"hourly_limit":     limits.Hourly,
		"daily_limit":      limits.Daily,
		"hourly_remaining": status.HourlyRemaining,
		"daily_remaining":  status.DailyRemaining,
		"reset_at":         status.ResetAt.UTC().Format(time.RFC3339),
	})
}
