package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong is the ping endpoint response body.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the public v1 API operations. The route table in
// RegisterHandlers mirrors public/docs/v1/openapi.yml.
type ServerInterface interface {
	// GET /ping
	GetPing(c *fiber.Ctx) error
	// POST /generate
	PostGenerate(c *fiber.Ctx) error
	// GET /generate/:uuid/status
	GetGenerationStatus(c *fiber.Ctx, uuid string) error
	// GET /credits
	GetCredits(c *fiber.Ctx) error
	// GET /quota
	GetQuota(c *fiber.Ctx) error
	// GET /user/profile
	GetUserProfile(c *fiber.Ctx) error
	// GET /user/generations
	GetUserGenerations(c *fiber.Ctx) error
	// POST /user/api-keys
	PostUserAPIKey(c *fiber.Ctx) error
	// DELETE /user/api-keys
	DeleteUserAPIKey(c *fiber.Ctx) error
}

// RegisterHandlers attaches all v1 operations to the given router group.
// Security middleware (session context, API keys) is attached by the caller
// before registration.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	router.Get("/ping", si.GetPing)
	router.Post("/generate", si.PostGenerate)
	router.Get("/generate/:uuid/status", func(c *fiber.Ctx) error {
		return si.GetGenerationStatus(c, c.Params("uuid"))
	})
	router.Get("/credits", si.GetCredits)
	router.Get("/quota", si.GetQuota)
	router.Get("/user/profile", si.GetUserProfile)
	router.Get("/user/generations", si.GetUserGenerations)
	router.Post("/user/api-keys", si.PostUserAPIKey)
	router.Delete("/user/api-keys", si.DeleteUserAPIKey)
}
