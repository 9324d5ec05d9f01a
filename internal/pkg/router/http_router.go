package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JonasWeigert/VowPix/app/controllers"
	"github.com/JonasWeigert/VowPix/internal/pkg/middleware"
	"github.com/JonasWeigert/VowPix/internal/pkg/quotacache"
	"github.com/JonasWeigert/VowPix/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerAuthRoutes(app)
	h.registerWebhookRoutes(app)
}

func (h HttpRouter) registerAuthRoutes(app *fiber.App) {
	auth := app.Group("/auth")
	auth.Post("/register", middleware.AuthAttemptLimiter(quotacache.AuthActionSignup), controllers.HandleAuthRegister)
	auth.Get("/activate", controllers.HandleAuthActivate)
	auth.Post("/login", middleware.AuthAttemptLimiter(quotacache.AuthActionLogin), controllers.HandleAuthLogin)
	auth.Post("/logout", controllers.HandleAuthLogout)
	auth.Post("/password-reset", middleware.AuthAttemptLimiter(quotacache.AuthActionPasswordReset), controllers.HandlePasswordResetRequest)
	auth.Post("/password-reset/confirm", middleware.AuthAttemptLimiter(quotacache.AuthActionPasswordReset), controllers.HandlePasswordResetConfirm)
}

func (h HttpRouter) registerWebhookRoutes(app *fiber.App) {
	// Signature verification happens inside the handler so the raw body is
	// checked before any parsing.
	app.Post("/webhooks/payments", controllers.HandlePaymentWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
