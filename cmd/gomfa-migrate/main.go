// Command gomfa-migrate applies or rolls back the embedded Postgres schema.
//
//	gomfa-migrate -direction up
//	gomfa-migrate -dsn postgres://... -direction down
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/MrEthical07/goMFA/internal/logging"
	"github.com/MrEthical07/goMFA/store/postgres"
)

func main() {
	var (
		envFile   = flag.String("env-file", ".env", "optional dotenv file")
		dsn       = flag.String("dsn", "", "postgres DSN; defaults to DATABASE_URL")
		direction = flag.String("direction", "up", "up or down")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *envFile, err)
		os.Exit(1)
	}
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}

	logger, err := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"), "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := postgres.Migrate(*dsn, *direction); err != nil {
		logger.Error("migration failed", zap.String("direction", *direction), zap.Error(err))
		os.Exit(1)
	}
	logger.Info("migration complete", zap.String("direction", *direction))
}
