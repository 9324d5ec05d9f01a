package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/JonasWeigert/VowPix/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostGenerate runs one portrait generation for the current identity.
// Anonymous callers are admitted under the anonymous tier windows.
func (s *APIServer) PostGenerate(c *fiber.Ctx) error {
	return controllers.HandleGenerate(c)
}

// GetGenerationStatus returns the lifecycle state of one request (JSON)
func (s *APIServer) GetGenerationStatus(c *fiber.Ctx, uuid string) error {
	if uuid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "uuid missing"})
	}
	// Controller reads uuid from route params; wrapper already set it.
	return controllers.HandleGenerationStatus(c)
}

// GetCredits returns the credit balance for the authenticated user.
// Security is enforced via session/user-context middleware attached in the router.
func (s *APIServer) GetCredits(c *fiber.Ctx) error {
	return controllers.HandleGetCredits(c)
}

// GetQuota reports the rate-limit window state for the current identity.
func (s *APIServer) GetQuota(c *fiber.Ctx) error {
	return controllers.HandleGetQuota(c)
}

// GetUserProfile returns account information for the authenticated user (API key).
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// GetUserGenerations returns the authenticated user's request history.
func (s *APIServer) GetUserGenerations(c *fiber.Ctx) error {
	return controllers.HandleGetUserGenerations(c)
}

// PostUserAPIKey issues a fresh API key for the authenticated user.
func (s *APIServer) PostUserAPIKey(c *fiber.Ctx) error {
	return controllers.HandleIssueAPIKey(c)
}

// DeleteUserAPIKey revokes the user's active API key.
func (s *APIServer) DeleteUserAPIKey(c *fiber.Ctx) error {
	return controllers.HandleRevokeAPIKey(c)
}
