package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasWeigert/VowPix/internal/pkg/database"
	"github.com/JonasWeigert/VowPix/internal/pkg/env"
	"github.com/JonasWeigert/VowPix/internal/pkg/payments"
	"github.com/JonasWeigert/VowPix/internal/pkg/quotacache"
)

// paymentWebhookBody is the provider's payment-completed payload.
type paymentWebhookBody struct {
	PaymentID          string `json:"payment_id"`
	AmountCents        int    `json:"amount_cents"`
	CustomerReference  string `json:"customer_reference"`
	EventType          string `json:"event_type"`
	OccurredAtRFC3339  string `json:"occurred_at"`
	ProviderTestEvent  bool   `json:"test_event"`
	ProviderRetryCount int    `json:"retry_count"`
}

// HandlePaymentWebhook ingests payment-completed events. Delivery is
// at-least-once, so the handler answers 200 for duplicates and only signals
// retryable failure (5xx) when processing genuinely could not finish.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Webhook-Signature"))
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")

	signatureValid := payments.VerifyWebhookSignature(rawBody, signature, secret)
	if !signatureValid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	var body paymentWebhookBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if body.EventType != "" && !strings.EqualFold(body.EventType, "payment.completed") {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	svc := payments.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := svc.Process(ctx, payments.EventInput{
		ExternalPaymentID: body.PaymentID,
		AmountCents:       body.AmountCents,
		CustomerReference: body.CustomerReference,
		PayloadJSON:       string(rawBody),
		SignatureValid:    signatureValid,
	})
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrUnknownPriceTier):
			// Permanently rejected; acknowledging stops pointless redelivery.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "rejected": "unknown_price_tier"})
		case errors.Is(err, payments.ErrUnknownCustomer):
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "rejected": "unknown_customer"})
		default:
			log.Errorf("payment webhook: event %s failed: %v", body.PaymentID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
		}
	}

	if result.AlreadyProcessed {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	// Paid credits change what the client may show for this user.
	quotacache.Invalidate("user:" + strings.TrimSpace(body.CustomerReference))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":              true,
		"credits_granted": result.CreditsGranted,
	})
}
