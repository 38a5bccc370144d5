package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idem:v1:"
	inProgressMarker     = "__in_progress__"

	idempotencyStoreTimeout = 2 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// Idempotency replays the recorded response for a repeated Idempotency-Key
// instead of re-executing the handler. Keys are scoped to method and path so
// the same key cannot replay across endpoints. Requests without a key, and
// safe methods, pass straight through. Only successful responses are
// recorded; a failed attempt releases its reservation so the client can
// retry with the same key.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" || cache == nil {
			return c.Next()
		}

		cacheKey := fmt.Sprintf("%s%s:%s:%s", idempotencyPrefix, c.Method(), c.Path(), key)

		ctx, cancel := context.WithTimeout(c.UserContext(), idempotencyStoreTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", keyFingerprint(key)), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		if !reserved {
			cached, err := cache.Get(ctx, cacheKey).Result()
			if err != nil {
				logger.Error("idempotency lookup failed", slog.String("key", keyFingerprint(key)), slog.Any("error", err))
				return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
			}
			if cached == inProgressMarker {
				return fiber.NewError(fiber.StatusConflict, "request with this key is still processing")
			}

			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("stored idempotent response is corrupt", slog.String("key", keyFingerprint(key)), slog.Any("error", err))
				return fiber.NewError(fiber.StatusConflict, "duplicate request")
			}
			if stored.ContentType != "" {
				c.Set(fiber.HeaderContentType, stored.ContentType)
			}
			c.Set("Idempotency-Replayed", "true")
			return c.Status(stored.Status).SendString(stored.Body)
		}

		release := func() {
			cleanupCtx, cleanup := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
			defer cleanup()
			if err := cache.Del(cleanupCtx, cacheKey).Err(); err != nil {
				logger.Warn("idempotency release failed", slog.String("key", keyFingerprint(key)), slog.Any("error", err))
			}
		}

		if err := c.Next(); err != nil {
			release()
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status > 299 {
			release()
			return nil
		}

		stored := storedResponse{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
		}
		payload, err := json.Marshal(stored)
		if err != nil {
			release()
			return nil
		}

		persistCtx, persist := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
		defer persist()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Warn("idempotent response not persisted", slog.String("key", keyFingerprint(key)), slog.Any("error", err))
			release()
		}

		return nil
	}
}

// keyFingerprint is used in logs to avoid echoing raw client keys.
func keyFingerprint(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + strings.Repeat("*", 4)
}
