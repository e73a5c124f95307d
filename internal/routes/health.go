package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
)

const statusDisabled = "disabled"

// RegisterHealthRoutes adds a readiness endpoint covering every configured backend.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		redisStatus, dbStatus, busStatus := "ok", statusDisabled, statusDisabled

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := d.Cache.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
		}
		if d.DB != nil {
			dbStatus = "ok"
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Bus != nil {
			busStatus = "ok"
			if s := d.Bus.Status(); s != nats.CONNECTED {
				busStatus = s.String()
			}
		}

		status := http.StatusOK
		for _, s := range []string{redisStatus, dbStatus, busStatus} {
			if s != "ok" && s != statusDisabled {
				status = http.StatusServiceUnavailable
			}
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"redis": redisStatus, "postgres": dbStatus, "nats": busStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
