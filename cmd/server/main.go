package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/hyrox-registration/internal/booking"
	"github.com/iliyamo/hyrox-registration/internal/config"
	"github.com/iliyamo/hyrox-registration/internal/database"
	"github.com/iliyamo/hyrox-registration/internal/handler"
	"github.com/iliyamo/hyrox-registration/internal/logger"
	"github.com/iliyamo/hyrox-registration/internal/middleware"
	"github.com/iliyamo/hyrox-registration/internal/model"
	"github.com/iliyamo/hyrox-registration/internal/queue"
	"github.com/iliyamo/hyrox-registration/internal/repository"
	"github.com/iliyamo/hyrox-registration/internal/router"
	"github.com/iliyamo/hyrox-registration/internal/utils"
)

const serviceName = "hyrox-registration"

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Service: serviceName}).Fatal("invalid configuration", "error", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: serviceName})

	db, err := database.Open(database.Options{
		Driver: cfg.DBDriver,
		User:   cfg.DBUser,
		Pass:   cfg.DBPass,
		Host:   cfg.DBHost,
		Port:   cfg.DBPort,
		Name:   cfg.DBName,
		URL:    cfg.DatabaseURL,
		Path:   cfg.DBPath,
	})
	if err != nil {
		log.Fatal("open database", "driver", cfg.DBDriver, "error", err)
	}
	defer db.Close()
	log.Info("database ready", "driver", cfg.DBDriver)

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable, cache and rate limiting disabled", "addr", cfg.Redis.Address())
	} else {
		defer rdb.Close()
	}

	adminHash, err := utils.AdminPasswordHash(cfg.AdminPasswordHash, cfg.AdminPassword, cfg.BcryptCost)
	if err != nil {
		log.Fatal("hash admin password", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pairs := model.NewPairPolicy(cfg.PairCategories)
	slots := repository.NewSlotRepo(db, pairs)
	regs := repository.NewRegistrationRepo(db, pairs)

	var notifier booking.Notifier
	if cfg.QueueEnabled {
		notifier = queue.NewPublisher(cfg.RabbitURL)
		log.Info("publishing registration events", "queue", queue.RegistrationConfirmedQueue)
	}
	if cfg.QueueConsumerEnabled {
		consumer := &queue.Consumer{URL: cfg.RabbitURL, LogDir: cfg.QueueLogDir, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("consumer stopped", "error", err)
			}
		}()
	}

	svc, err := booking.NewService(booking.Config{
		Slots:    slots,
		Store:    regs,
		Notifier: notifier,
		Pairs:    pairs,
		Logger:   log,
		Timeout:  cfg.BookingTimeout,
	})
	if err != nil {
		log.Fatal("init booking service", "error", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))

	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb, log)
	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, &handler.PublicHandler{Slots: slots, DefaultDate: cfg.EventDate, Log: log}, middleware.NewRedisCache(cfg.Cache, rdb))
	router.RegisterBooking(e, &handler.RegistrationHandler{Booker: svc}, limiter)
	router.RegisterAdmin(e, &handler.AdminHandler{
		PasswordHash:  adminHash,
		JWTSecret:     cfg.JWTSecret,
		TokenTTLMin:   cfg.AdminTokenTTLMin,
		Registrations: regs,
		DefaultDate:   cfg.EventDate,
		Log:           log,
	}, cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
