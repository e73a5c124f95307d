package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "rl:charge:"

// ChargeRateLimit caps charge attempts per account per minute using a Redis
// counter. A nil cache or non-positive limit disables it; cache errors fail open.
func ChargeRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}
		var req struct {
			Account string `json:"account"`
		}
		_ = c.BodyParser(&req)
		account := strings.TrimSpace(req.Account)
		if account == "" {
			account = "account"
		}

		key := rateLimitPrefix + account
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many charge attempts for account, try again later")
		}
		return c.Next()
	}
}
