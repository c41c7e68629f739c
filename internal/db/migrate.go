package db

import (
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies all pending migrations from the migrations directory.
func RunMigrations(config Config, migrationsPath string) error {
	dsn := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(config.User, config.Password),
		Host:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Path:     config.DBName,
		RawQuery: "sslmode=" + config.SSLMode,
	}

	m, err := migrate.New("file://"+migrationsPath, dsn.String())
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("Failed to close migration source: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("Failed to close migration database: %v", dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("Migrations already up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Migrations applied")
	return nil
}
