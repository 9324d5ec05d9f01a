package controllers

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasWeigert/VowPix/app/models"
	"github.com/JonasWeigert/VowPix/internal/pkg/database"
	"github.com/JonasWeigert/VowPix/internal/pkg/generation"
	"github.com/JonasWeigert/VowPix/internal/pkg/ledger"
	"github.com/JonasWeigert/VowPix/internal/pkg/metrics/counter"
	"github.com/JonasWeigert/VowPix/internal/pkg/objectstore"
	"github.com/JonasWeigert/VowPix/internal/pkg/quotacache"
	"github.com/JonasWeigert/VowPix/internal/pkg/ratelimit"
	"github.com/JonasWeigert/VowPix/internal/pkg/tracker"
	"github.com/JonasWeigert/VowPix/internal/pkg/upload"
)

var (
	generationProvider generation.Provider
	portraitStore      *objectstore.Client
)

// ConfigureGeneration injects the portrait provider and object store used by
// the generate endpoint. Called once at startup.
func ConfigureGeneration(provider generation.Provider, store *objectstore.Client) {
	generationProvider = provider
	portraitStore = store
}

// HandleGenerate accepts a source photo plus style list, admits the attempt
// against the caller's quota, debits one credit for account holders and runs
// the generation synchronously. The response carries the request UUID so the
// result can be re-fetched via the status endpoint.
func HandleGenerate(c *fiber.Ctx) error {
	if generationProvider == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Generation backend is not configured"})
	}

	styles, err := generation.ValidateStyles(strings.Split(c.FormValue("styles"), ","))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "A source photo is required"})
	}
	if fileHeader.Size > upload.MaxPhotoBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "payload_too_large", "message": upload.ErrPhotoTooLarge.Error()})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Could not read the uploaded photo"})
	}
	data, err := io.ReadAll(io.LimitReader(file, upload.MaxPhotoBytes+1))
	file.Close()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Could not read the uploaded photo"})
	}
	if int64(len(data)) > upload.MaxPhotoBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "payload_too_large", "message": upload.ErrPhotoTooLarge.Error()})
	}

	if _, err := upload.ValidatePhotoBySniff(fileHeader.Filename, data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	photo, err := upload.NormalizePhoto(data)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	identity := resolveIdentity(c)
	ipv4, ipv6 := GetClientIP(c)
	ip := ipv4
	if ip == "" {
		ip = ipv6
	}

	svc := tracker.NewServiceFromDB(database.GetDB())
	ctx := context.Background()

	begin, err := svc.Begin(ctx, tracker.BeginInput{
		UserID:          identity.UserID,
		SessionID:       identity.SessionID,
		IPAddress:       ip,
		Identifier:      identity.Identifier,
		IdentifierType:  identity.IdentifierType,
		Tier:            identity.Tier,
		PayloadHash:     upload.PayloadHash(photo, styles),
		StylesRequested: styles,
	})
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrRateLimited):
			return rateLimitedResponse(c, begin.Request.UUID, begin.RateLimit)
		case errors.Is(err, ledger.ErrInsufficientCredits):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":        "insufficient_credits",
				"message":      "No credits remaining, purchase credits to continue",
				"request_uuid": begin.Request.UUID,
			})
		case errors.Is(err, ratelimit.ErrStoreUnavailable):
			// Fail closed: no quota decision means no generation.
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Quota check unavailable, please retry"})
		default:
			log.Errorf("generate: intake failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not start generation"})
		}
	}

	req := begin.Request
	quotacache.IncrementFreeUsed(identity.Identifier)
	for _, style := range styles {
		if err := counter.AddStyleGeneration(style); err != nil {
			log.Warnf("generate: style counter for %s: %v", style, err)
		}
	}

	if err := svc.MarkProcessing(ctx, req.UUID); err != nil {
		log.Errorf("generate: request %s could not enter processing: %v", req.UUID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not start generation"})
	}

	started := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	result, genErr := generationProvider.GeneratePortrait(genCtx, photo, styles)
	elapsed := time.Since(started)
	if genErr != nil {
		log.Errorf("generate: request %s failed after %s: %v", req.UUID, elapsed, genErr)
		if failErr := svc.Fail(ctx, req.UUID, elapsed, genErr.Error()); failErr != nil {
			log.Errorf("generate: request %s could not be failed: %v", req.UUID, failErr)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":            "generation_failed",
			"message":          "Portrait generation failed, any consumed credit was refunded",
			"request_uuid":     req.UUID,
			"status":           models.GenerationStatusFailed,
			"credits_refunded": req.CreditsConsumed,
		})
	}

	objectKey := ""
	if portraitStore != nil {
		key, storeErr := portraitStore.StorePortrait(genCtx, req.UUID, result.ImageData, result.ContentType)
		if storeErr != nil {
			log.Errorf("generate: request %s result could not be stored: %v", req.UUID, storeErr)
			if failErr := svc.Fail(ctx, req.UUID, time.Since(started), "result storage failed"); failErr != nil {
				log.Errorf("generate: request %s could not be failed: %v", req.UUID, failErr)
			}
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":            "generation_failed",
				"message":          "Portrait could not be stored, any consumed credit was refunded",
				"request_uuid":     req.UUID,
				"status":           models.GenerationStatusFailed,
				"credits_refunded": req.CreditsConsumed,
			})
		}
		objectKey = key
	}

	if err := svc.Complete(ctx, req.UUID, time.Since(started), objectKey); err != nil {
		log.Errorf("generate: request %s could not be completed: %v", req.UUID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not finalize generation"})
	}

	response := fiber.Map{
		"request_uuid":       req.UUID,
		"status":             models.GenerationStatusCompleted,
		"styles":             styles,
		"processing_time_ms": time.Since(started).Milliseconds(),
		"result_object_key":  objectKey,
		"quota": fiber.Map{
			"hourly_remaining": begin.RateLimit.HourlyRemaining,
			"daily_remaining":  begin.RateLimit.DailyRemaining,
			"reset_at":         begin.RateLimit.ResetAt.UTC().Format(time.RFC3339),
		},
	}
	if begin.Balance != nil {
		response["credits"] = begin.Balance
	}
	return c.Status(fiber.StatusCreated).JSON(response)
}

// HandleGenerationStatus reports the lifecycle state of one request. The hot
// path reads the Redis mirror; the database stays authoritative.
func HandleGenerationStatus(c *fiber.Ctx) error {
	requestUUID := strings.TrimSpace(c.Params("uuid"))
	if requestUUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "uuid missing"})
	}

	svc := tracker.NewServiceFromDB(database.GetDB())
	req, err := svc.Get(context.Background(), requestUUID)
	if err != nil {
		if errors.Is(err, tracker.ErrRequestNotFound) {
			// The mirror may still know a request the reader beat to the DB.
			if status, mErr := tracker.GetMirroredStatus(requestUUID); mErr == nil && status != "" {
				return c.JSON(fiber.Map{"request_uuid": requestUUID, "status": status})
			}
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown generation request"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load request"})
	}

	response := fiber.Map{
		"request_uuid":     req.UUID,
		"status":           req.Status,
		"styles":           req.StylesRequested,
		"credits_consumed": req.CreditsConsumed,
		"created_at":       req.CreatedAt.UTC().Format(time.RFC3339),
		"completed_at":     formatTimePtr(req.CompletedAt),
	}
	switch req.Status {
	case models.GenerationStatusCompleted:
		response["result_object_key"] = req.ResultObjectKey
		response["processing_time_ms"] = req.ProcessingTimeMs
	case models.GenerationStatusFailed:
		response["error_message"] = req.ErrorMessage
	}
	return c.JSON(response)
}

func rateLimitedResponse(c *fiber.Ctx, requestUUID string, status *ratelimit.Status) error {
	retryAfter := int(time.Until(status.ResetAt).Seconds())
	if retryAfter < 0 {
		retryAfter = 0
	}
	c.Set("Retry-After", strconv.Itoa(retryAfter))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":            "rate_limited",
		"message":          "Generation limit reached, please try again later",
		"request_uuid":     requestUUID,
		"status":           models.GenerationStatusRateLimited,
		"hourly_remaining": status.HourlyRemaining,
		"daily_remaining":  status.DailyRemaining,
		"reset_at":         status.ResetAt.UTC().Format(time.RFC3339),
	})
}
