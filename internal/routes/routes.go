package routes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/charge_auth/internal/charge"
	"github.com/congo-pay/charge_auth/internal/config"
	"github.com/congo-pay/charge_auth/internal/journal"
	"github.com/congo-pay/charge_auth/internal/middleware"
	"github.com/congo-pay/charge_auth/internal/notification"
	"github.com/congo-pay/charge_auth/internal/store"
)

// Deps aggregates shared dependencies required to wire routes. DB and Bus are optional.
type Deps struct {
	Cfg    config.Config
	Cache  *redis.Client
	DB     *pgxpool.Pool
	Bus    *nats.Conn
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Cache == nil {
		return fmt.Errorf("redis is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))

	RegisterHealthRoutes(app, d)

	var chargeJournal journal.Journal
	if d.DB != nil {
		pg := journal.NewPostgres(d.DB)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return err
		}
		chargeJournal = pg
	} else {
		chargeJournal = journal.NewMemory()
	}

	var notifier notification.Notifier
	if d.Bus != nil {
		notifier = notification.NewNATSNotifier(d.Bus)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	chargeSvc := charge.NewService(store.NewRedisConnector(d.Cache), chargeJournal, notifier, d.Logger, charge.Options{
		DefaultBalance: d.Cfg.DefaultBalance,
		LockTTL:        d.Cfg.LockTTL,
	})
	chargeHandler := charge.NewHandler(chargeSvc)

	RegisterChargeRoutes(app, chargeHandler, middleware.ChargeRateLimit(d.Cache, d.Cfg.ChargeRateLimit))
	return nil
}
