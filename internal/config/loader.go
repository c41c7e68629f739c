package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rpattn/recordport/internal/db"
	"github.com/rpattn/recordport/internal/importer"
)

// Config is everything the server reads at startup.
type Config struct {
	Database       db.Config
	ImportDefaults importer.Options
	ListenAddr     string
	AllowedOrigins []string
	MigrationsPath string
}

// Load reads config.yaml from configPath with environment overrides
// (APP_DATABASE_HOST, APP_IMPORT_CHUNK_SIZE and so on).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database:       db.DefaultConfig(),
		ListenAddr:     ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		MigrationsPath: "./migrations",
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("import.chunk_size")
	v.BindEnv("import.max_error_rows")
	v.BindEnv("server.listen_addr")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("import.chunk_size") {
		cfg.ImportDefaults.ChunkSize = v.GetInt("import.chunk_size")
	}
	if v.IsSet("import.max_error_rows") {
		cfg.ImportDefaults.MaxErrorRows = v.GetInt("import.max_error_rows")
	}
	if v.IsSet("import.skip_existing") {
		cfg.ImportDefaults.SkipExisting = v.GetBool("import.skip_existing")
	}
	if v.IsSet("import.dedup_priority") {
		priority, err := importer.ParseDedupPriority(v.GetString("import.dedup_priority"))
		if err != nil {
			return cfg, err
		}
		cfg.ImportDefaults.DedupPriority = priority
	}

	if v.IsSet("server.listen_addr") {
		cfg.ListenAddr = v.GetString("server.listen_addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.migrations_path") {
		cfg.MigrationsPath = v.GetString("server.migrations_path")
	}

	return cfg, nil
}
