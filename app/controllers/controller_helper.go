package controllers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/session"
	"github.com/JonasWeigert/VowPix/internal/pkg/tiers"
	"github.com/JonasWeigert/VowPix/internal/pkg/usercontext"
)

// requestIdentity is the server-derived identity one request is billed and
// rate limited under. Clients never choose their own identifier or tier.
type requestIdentity struct {
	Identifier     string
	IdentifierType string
	UserID         *uint
	SessionID      string
	Tier           tiers.Tier
}

// resolveIdentity derives the quota identity for the current request.
// Logged-in users anchor on their account id; visitors anchor on a session
// scoped id, falling back to the client IP when no session can be stored.
func resolveIdentity(c *fiber.Ctx) requestIdentity {
	userCtx := usercontext.GetUserContext(c)
	if userCtx.IsLoggedIn {
		uid := userCtx.UserID
		return requestIdentity{
			Identifier:     "user:" + strconv.FormatUint(uint64(uid), 10),
			IdentifierType: models.IdentifierTypeAuthenticated,
			UserID:         &uid,
			Tier:           tiers.FromPlan(true, userCtx.Plan),
		}
	}

	if anonID := session.AnonymousID(c); anonID != "" {
		return requestIdentity{
			Identifier:     "anon:" + anonID,
			IdentifierType: models.IdentifierTypeAnonymousSession,
			SessionID:      anonID,
			Tier:           tiers.TierAnonymous,
		}
	}

	ipv4, ipv6 := GetClientIP(c)
	ip := ipv4
	if ip == "" {
		ip = ipv6
	}
	return requestIdentity{
		Identifier:     "ip:" + ip,
		IdentifierType: models.IdentifierTypeIP,
		Tier:           tiers.TierAnonymous,
	}
}

// GetClientIP determines the actual client IP address considering proxies.
// Returns both IPv4 and IPv6 addresses if available.
func GetClientIP(c *fiber.Ctx) (string, string) {
	ipv4 := ""
	ipv6 := ""

	// Cloudflare provides the original client IP in this header
	if cfIP := c.Get("CF-Connecting-IP"); cfIP != "" {
		if strings.Contains(cfIP, ":") {
			ipv6 = cfIP
		} else {
			ipv4 = cfIP
		}
		return ipv4, ipv6
	}

	// X-Forwarded-For can contain a list of IPs - the first one is the client
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
		if strings.Contains(clientIP, ":") {
			ipv6 = clientIP
		} else {
			ipv4 = clientIP
		}
		return ipv4, ipv6
	}

	ipAddr := c.IP()
	if strings.Contains(ipAddr, ":") {
		// ::ffff: prefixed addresses are IPv4 in IPv6 mapping
		if strings.Contains(ipAddr, ".") && strings.HasPrefix(ipAddr, "::ffff:") {
			ipv4 = strings.TrimPrefix(ipAddr, "::ffff:")
		} else {
			ipv6 = ipAddr
		}
	} else {
		ipv4 = ipAddr
	}

	return ipv4, ipv6
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
