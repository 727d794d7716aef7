// Command create-admin provisions an ADMIN account.  Registration over
// HTTP only ever creates USER accounts, so the first administrator is
// created here.
//
//	create-admin -username root -password 's3cret!'
//
// ADMIN_USERNAME and ADMIN_PASSWORD are used when the flags are omitted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/movie-ticket-reservation/internal/config"
	"github.com/iliyamo/movie-ticket-reservation/internal/database"
	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
	"github.com/iliyamo/movie-ticket-reservation/internal/repository"
)

func main() {
	_ = godotenv.Load()
	username := flag.String("username", os.Getenv("ADMIN_USERNAME"), "admin username")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password (min 6 chars)")
	flag.Parse()

	if len(*username) < 3 || len(*password) < 6 {
		fmt.Fprintln(os.Stderr, "username (min 3) and password (min 6) are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var db *database.DB
	if cfg.DBDriver == string(database.SQLite) {
		db, err = database.Open(ctx, database.SQLite, database.SQLiteDSN(cfg.DBPath))
	} else {
		db, err = database.Open(ctx, database.MySQL,
			database.MySQLDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logging.Fatal().Err(err).Msg("migrate failed")
	}

	id, err := repository.NewUserRepo(db).Create(ctx, *username, *password, model.RoleAdmin, cfg.BcryptCost)
	if errors.Is(err, repository.ErrUsernameExists) {
		logging.Fatal().Str("username", *username).Msg("username already exists")
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("create admin failed")
	}
	logging.Info().Uint64("user_id", id).Str("username", *username).Msg("admin created")
}
