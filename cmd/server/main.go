package main // Entry point package

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

	"github.com/iliyamo/movie-ticket-reservation/internal/config"
	"github.com/iliyamo/movie-ticket-reservation/internal/database"
	"github.com/iliyamo/movie-ticket-reservation/internal/handler"
	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
	"github.com/iliyamo/movie-ticket-reservation/internal/middleware"
	"github.com/iliyamo/movie-ticket-reservation/internal/queue"
	"github.com/iliyamo/movie-ticket-reservation/internal/repository"
	"github.com/iliyamo/movie-ticket-reservation/internal/reservation"
	"github.com/iliyamo/movie-ticket-reservation/internal/router"
	"github.com/iliyamo/movie-ticket-reservation/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database unavailable")
	}
	defer db.Close()

	rdb := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if rdb == nil {
		logging.Warn().Msg("redis unreachable, cache disabled and rate limiting is per-process")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	showtimes := repository.NewShowtimeRepo(db)
	records := repository.NewReservationRepo(db)
	movies := service.NewMovieCatalog(repository.NewMovieRepo(db), rdb, config.LoadCacheConfig())

	opts := []reservation.Option{
		reservation.WithPolicy(reservation.CutoffPolicy{Lead: cfg.CancellationLead}),
	}
	events := config.LoadEventsConfig()
	var pub *service.EventPublisher
	if events.Enabled {
		pub = service.NewEventPublisher(events)
		go pub.Run(ctx)
		go func() {
			if err := queue.StartReservationConsumer(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("reservation consumer stopped")
			}
		}()
		opts = append(opts, reservation.WithNotifier(pub))
	}
	coord := reservation.NewCoordinator(repository.NewSeatLedger(db), records, showtimes, db, opts...)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, cfg.JWTSecret))

	movieH := handler.NewMovieHandler(movies)
	showtimeH := handler.NewShowtimeHandler(showtimes, records)
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, movieH, showtimeH)
	router.RegisterAdmin(e, movieH, showtimeH, cfg.JWTSecret)
	router.RegisterReservations(e, handler.NewReservationHandler(coord), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		logging.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
	if pub != nil {
		if err := pub.Wait(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("event flush did not finish")
		}
	}
}

// openDB connects with the configured driver.  SQLite databases are always
// migrated; MySQL only when DB_AUTO_MIGRATE is set.
func openDB(ctx context.Context, cfg config.Config) (*database.DB, error) {
	var (
		db  *database.DB
		err error
	)
	if cfg.DBDriver == string(database.SQLite) {
		db, err = database.Open(ctx, database.SQLite, database.SQLiteDSN(cfg.DBPath))
	} else {
		db, err = database.Open(ctx, database.MySQL,
			database.MySQLDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	}
	if err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate || cfg.DBDriver == string(database.SQLite) {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}
