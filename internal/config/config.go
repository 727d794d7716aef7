package config // package config loads application configuration from environment variables

import (
	"fmt"     // error formatting for missing or malformed variables
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // durations for the cancellation lead
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database settings depend on DBDriver: mysql
// uses the DB_USER/DB_HOST family, sqlite3 uses DB_PATH.
type Config struct {
	Env              string        // application environment (e.g. "dev", "prod")
	Port             string        // HTTP port to listen on
	DBDriver         string        // mysql | sqlite3
	DBUser           string        // database username
	DBPass           string        // database password (optional)
	DBHost           string        // database host address
	DBPort           string        // database port number
	DBName           string        // database name
	DBPath           string        // sqlite3 file path or DSN
	DBAutoMigrate    bool          // create tables on startup
	JWTSecret        string        // secret used to sign JWTs
	AccessTTLMin     int           // access token time-to-live in minutes
	RefreshTTLDays   int           // refresh token time-to-live in days
	BcryptCost       int           // bcrypt cost for password hashing
	CancellationLead time.Duration // how long before start_time cancellation closes
	LogLevel         string        // zerolog level name
	LogFormat        string        // json | console
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables that are missing or malformed are reported
// as an error so main can log and exit.
func Load() (Config, error) {
	cfg := Config{
		Env:           envStr("APP_ENV", "dev"),
		Port:          envStr("APP_PORT", "8080"),
		DBDriver:      envStr("DB_DRIVER", "mysql"),
		DBPass:        os.Getenv("DB_PASS"),
		DBAutoMigrate: envBool("DB_AUTO_MIGRATE", false),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		LogFormat:     envStr("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.JWTSecret, err = must("JWT_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.AccessTTLMin, err = intOr("ACCESS_TOKEN_TTL_MIN", 120); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTLDays, err = intOr("REFRESH_TOKEN_TTL_DAYS", 7); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = intOr("BCRYPT_COST", 10); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("CANCELLATION_LEAD"); v != "" {
		d, perr := time.ParseDuration(v)
		if perr != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid duration for CANCELLATION_LEAD: %q", v)
		}
		cfg.CancellationLead = d
	}

	switch cfg.DBDriver {
	case "mysql":
		for _, f := range []struct {
			dst *string
			key string
		}{
			{&cfg.DBUser, "DB_USER"},
			{&cfg.DBHost, "DB_HOST"},
			{&cfg.DBPort, "DB_PORT"},
			{&cfg.DBName, "DB_NAME"},
		} {
			if *f.dst, err = must(f.key); err != nil {
				return Config{}, err
			}
		}
	case "sqlite3":
		cfg.DBPath = envStr("DB_PATH", "reservations.db")
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER: %q", cfg.DBDriver)
	}
	return cfg, nil
}

// must retrieves the value of a required environment variable.
func must(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return v, nil
}

// intOr is like envInt but rejects values that are present and not integers.
func intOr(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q", key, s)
	}
	return n, nil
}
