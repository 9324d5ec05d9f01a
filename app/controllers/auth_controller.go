package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/app/repository"
	"github.com/JonasWeigert/VowPix/internal/pkg/database"
	"github.com/JonasWeigert/VowPix/internal/pkg/env"
	"github.com/JonasWeigert/VowPix/internal/pkg/hcaptcha"
	"github.com/JonasWeigert/VowPix/internal/pkg/mail"
	"github.com/JonasWeigert/VowPix/internal/pkg/quotacache"
	"github.com/JonasWeigert/VowPix/internal/pkg/session"
	"github.com/JonasWeigert/VowPix/internal/pkg/usercontext"
)

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates a new account. In production the account starts
// inactive until the emailed activation token is redeemed; in development it
// is activated immediately.
func HandleAuthRegister(c *fiber.Ctx) error {
	var body registerRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	if hcaptcha.Enabled() {
		if valid, err := hcaptcha.Verify(body.CaptchaToken); err != nil || !valid {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "captcha_failed", "message": "Captcha validation failed, please try again"})
		}
	}

	user, err := models.CreateUser(body.Username, body.Email, body.Password)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	if env.IsDev() {
		user.Status = models.STATUS_ACTIVE
	} else if err := user.GenerateActivationToken(); err != nil {
		log.Errorf("register: activation token generation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if err := repo.Create(user); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "An account with this email already exists"})
	}

	if user.ActivationToken != "" {
		go func(email, token string) {
			if err := mail.SendActivationMail(email, token); err != nil {
				log.Errorf("register: activation mail to %s failed: %v", email, err)
			}
		}(user.Email, user.ActivationToken)
	}

	quotacache.ClearAuthAttempts(c.IP(), quotacache.AuthActionSignup)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":                  user.ID,
		"username":            user.Name,
		"email":               user.Email,
		"status":              user.Status,
		"activation_required": user.Status != models.STATUS_ACTIVE,
	})
}

// HandleAuthActivate redeems an activation token.
func HandleAuthActivate(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Activation token missing"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByActivationToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown activation token"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Activation failed"})
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := repo.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Activation failed"})
	}

	return c.JSON(fiber.Map{"ok": true, "status": user.Status})
}

// HandleAuthLogin verifies credentials and opens a session. Failures stay
// deliberately vague so the endpoint does not leak which part was wrong.
func HandleAuthLogin(c *fiber.Ctx) error {
	var body loginRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	failed := func() error {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid email or password"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(body.Email)
	if err != nil {
		return failed()
	}
	if !user.CheckPassword(body.Password) {
		return failed()
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account is not activated"})
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		log.Errorf("login: session unavailable: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	if err := sess.Save(); err != nil {
		log.Errorf("login: session save failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}

	database.GetDB().Model(user).Update("last_login_at", time.Now())
	quotacache.ClearAuthAttempts(c.IP(), quotacache.AuthActionLogin)

	return c.JSON(fiber.Map{
		"id":       user.ID,
		"username": user.Name,
		"email":    user.Email,
	})
}

// HandleAuthLogout destroys the current session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			log.Warnf("logout: session destroy failed: %v", err)
		}
	}
	c.Locals(usercontext.KeyFromProtected, false)
	return c.JSON(fiber.Map{"ok": true})
}

// HandlePasswordResetRequest issues a reset token for the given email. The
// response is identical whether or not the account exists.
func HandlePasswordResetRequest(c *fiber.Ctx) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	accepted := func() error {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"ok": true, "message": "If the account exists, a reset link has been sent"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(body.Email)
	if err != nil {
		return accepted()
	}

	// The activation token doubles as the reset token; redeeming it goes
	// through HandlePasswordResetConfirm.
	if err := user.GenerateActivationToken(); err != nil {
		log.Errorf("password reset: token generation failed: %v", err)
		return accepted()
	}
	if err := repo.Update(user); err != nil {
		log.Errorf("password reset: token persist failed for user %d: %v", user.ID, err)
		return accepted()
	}

	go func(email, token string) {
		if err := mail.SendPasswordResetMail(email, token); err != nil {
			log.Errorf("password reset: mail to %s failed: %v", email, err)
		}
	}(user.Email, user.ActivationToken)

	return accepted()
}

// HandlePasswordResetConfirm sets a new password for a valid reset token.
func HandlePasswordResetConfirm(c *fiber.Ctx) error {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if len(body.Password) < 6 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "Password must be at least 6 characters"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByActivationToken(body.Token)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown or expired reset token"})
	}

	if err := user.SetPassword(body.Password); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Password reset failed"})
	}
	user.ActivationToken = ""
	if err := repo.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Password reset failed"})
	}

	quotacache.ClearAuthAttempts(c.IP(), quotacache.AuthActionPasswordReset)

	return c.JSON(fiber.Map{"ok": true})
}
