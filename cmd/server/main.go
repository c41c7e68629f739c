package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/rpattn/recordport/internal/auth"
	"github.com/rpattn/recordport/internal/config"
	"github.com/rpattn/recordport/internal/db"
	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/export"
	"github.com/rpattn/recordport/internal/importer"
	"github.com/rpattn/recordport/internal/middleware"
	"github.com/rpattn/recordport/internal/repository"
	"github.com/rpattn/recordport/internal/schema"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	orgRepo := repository.NewOrganizationRepository(conn.Pool)
	schemaRepo := repository.NewSchemaRepository(conn)
	recordStore := repository.NewRecordStore(conn)
	importLogRepo := repository.NewImportLogRepository(conn.Pool)

	driver := importer.NewDriver(recordStore, importLogRepo, auditHooks())
	exportService := export.NewService(schemaRepo, recordStore)

	importHandler := importer.NewHTTPHandler(driver, schemaRepo, importLogRepo, cfg.ImportDefaults)
	exportHandler := export.NewHTTPHandler(exportService)
	schemaHandler := schema.NewHTTPHandler(schemaRepo, orgRepo)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	wrap := func(h http.Handler) http.Handler {
		return corsHandler.Handler(middleware.LoggingMiddleware(middleware.OrganizationScopeMiddleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("/imports", wrap(importHandler))
	mux.Handle("/imports/", wrap(importHandler))
	mux.Handle("/exports", wrap(exportHandler))
	mux.Handle("/schemas", wrap(schemaHandler))
	mux.Handle("/schemas/", wrap(schemaHandler))
	mux.Handle("/organizations", wrap(schemaHandler))

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Minute,
		// Imports and exports stream; generous write timeout.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// auditHooks stamps the acting user onto imported records when the request
// carried an identity.
func auditHooks() importer.Hooks {
	return importer.Hooks{
		InsertDefaults: func(ctx context.Context) map[string]any {
			if actor, ok := auth.ActorFromContext(ctx); ok {
				return map[string]any{"created_by": actor, "updated_by": actor}
			}
			return nil
		},
		BeforeUpdate: func(ctx context.Context, record *domain.Record) {
			if actor, ok := auth.ActorFromContext(ctx); ok {
				*record = record.WithField("updated_by", actor)
			}
		},
	}
}
