package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gamecatalog/backend/internal/app"
	"gamecatalog/backend/internal/auth"
	"gamecatalog/backend/internal/config"
	"gamecatalog/backend/internal/handler"
	"gamecatalog/backend/internal/hub"
	"gamecatalog/backend/internal/logging"
	"gamecatalog/backend/internal/server"
)

// @title           Game Catalog API
// @version         1.0
// @description     Video game catalog with a weekly digest of upcoming releases.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat, nil)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()

	covers, err := a.OpenCovers(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open cover storage")
	}
	authz, err := auth.NewAuthorizer(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load authorization policy")
	}

	events := hub.NewHub(logger)
	a.Job.AddObserver(events)

	router := server.NewRouter(server.RouterDeps{
		Handler: handler.New(handler.Deps{
			Store:     a.Store,
			Covers:    covers,
			Job:       a.Job,
			Hub:       events,
			JWTSecret: cfg.JWTSecret,
			Location:  a.Location,
			Logger:    logger,
		}),
		Authorizer: authz,
		Users:      a.Store,
		JWTSecret:  cfg.JWTSecret,
		Logger:     logger,
	})

	supervisor := server.NewSupervisor("gamecatalog", logger)
	supervisor.Add(server.NewHTTPService(&http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, server.DefaultShutdownTimeout, logger))

	if cfg.SchedulerEnabled {
		trigger, err := a.Trigger(nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build digest scheduler")
		}
		supervisor.Add(trigger)
	} else {
		logger.Info().Msg("digest scheduler disabled")
	}

	logger.Info().
		Str("addr", cfg.HTTPAddr).
		Str("swagger", "http://localhost"+cfg.HTTPAddr+"/swagger/index.html").
		Msg("server is running")

	if err := supervisor.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
	logger.Info().Msg("server stopped")
}
