package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/errlog/internal/config"
	"github.com/tuncerburak97/errlog/internal/logger"
	"github.com/tuncerburak97/errlog/internal/metrics"
	"github.com/tuncerburak97/errlog/pkg/errlog"
	"github.com/tuncerburak97/errlog/pkg/errlog/fibermw"
)

var errItemNotFound = errors.New("missing item")

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	opts := []errlog.Option{errlog.WithLogger(log.With().Str("component", "errlog").Logger())}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.GetCollector(cfg.Metrics.Namespace, cfg.Metrics.AppName)
		opts = append(opts, errlog.WithObserver(collector))
	}

	rec, err := errlog.New(cfg.Capture.Recorder(), opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize error recorder")
	}

	app := newApp(cfg, rec, collector, log)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info().
			Str("addr", addr).
			Str("log_file", rec.Config().LogFilePath).
			Msg("Starting server")
		if err := app.Listen(addr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Fatal().Err(err).Msg("Failed to shutdown server")
	}
}

func newApp(cfg *config.Config, rec *errlog.Recorder, collector *metrics.Collector, log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: true,
	})

	if collector != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
		app.Get("/metrics/json", func(c *fiber.Ctx) error {
			body, err := collector.GetMetricsJSON()
			if err != nil {
				return err
			}
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(body)
		})
	}

	app.Use(recover.New())
	app.Use(fibermw.New(rec))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	items := map[string]string{"1": "first", "2": "second"}
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		item, ok := items[c.Params("id")]
		if !ok {
			return fmt.Errorf("item %s: %w", c.Params("id"), errItemNotFound)
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "name": item})
	})

	app.Post("/items", func(c *fiber.Ctx) error {
		if len(c.Body()) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "empty body")
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	app.Get("/panic", func(c *fiber.Ctx) error {
		log.Warn().Msg("Panic route hit")
		panic("demo panic")
	})

	return app
}
