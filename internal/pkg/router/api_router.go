package router

import (
	apiv1 "github.com/JonasWeigert/VowPix/internal/api/v1"
	"github.com/JonasWeigert/VowPix/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes. The credits and user surfaces require authentication;
	// generate and quota work for anonymous identities too.
	v1 := api.Group("/v1")
	v1.Use("/credits", middleware.RequireAPIKeyOrSession())
	v1.Use("/user", middleware.RequireAPIKeyOrSession())

	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
