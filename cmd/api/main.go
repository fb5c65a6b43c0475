package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lacosecha/despacho-api/internal/application/fulfillment"
	"github.com/lacosecha/despacho-api/internal/application/inventory"
	infraamqp "github.com/lacosecha/despacho-api/internal/infrastructure/amqp"
	"github.com/lacosecha/despacho-api/internal/infrastructure/postgres"
	httpRouter "github.com/lacosecha/despacho-api/internal/interfaces/http"
	"github.com/lacosecha/despacho-api/pkg/config"
	"github.com/lacosecha/despacho-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()

	if err := postgres.Migrate(cfg.DB.ConnectionString()); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	lotRepo := postgres.NewLotRepository(pool)
	jobRepo := postgres.NewJobRepository(pool)
	movementRepo := postgres.NewStockMovementRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	ledger := inventory.NewReservationLedger()
	registerMovementUC := inventory.NewRegisterMovementUseCase(txRunner)
	stockQueryUC := inventory.NewStockQueryUseCase(lotRepo, movementRepo)
	jobUC := fulfillment.NewJobUseCase(txRunner, jobRepo, lotRepo, ledger, registerMovementUC)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Despacho API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})
	if cfg.Metrics.Enabled {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	httpRouter.Router(app, httpRouter.RouterDeps{
		RegisterMovement: registerMovementUC,
		StockQueries:     stockQueryUC,
		JobUC:            jobUC,
		JWTSecret:        cfg.JWT.Secret,
	})

	// Consumidor de pedidos del e-commerce. Sin AMQP_URL los trabajos solo
	// entran por la API HTTP.
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.AMQP.URL != "" {
		consumer := infraamqp.NewConsumer(cfg.AMQP, jobUC, log)
		go consumer.Run(consumerCtx)
	} else {
		log.Warn().Msg("AMQP_URL vacío: consumidor de pedidos deshabilitado")
	}

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stopConsumer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
