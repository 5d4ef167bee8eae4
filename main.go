package main

import (
	"context"
	"log"

	"gofactor/adapters/excel"
	"gofactor/adapters/logsink"
	"gofactor/adapters/memory"
	"gofactor/adapters/postgres"
	"gofactor/adapters/rng"
	"gofactor/app"
	"gofactor/domain/survey"
	"gofactor/internal"
	"gofactor/internal/config"
	"gofactor/internal/errors"
	"gofactor/ports"
	"gofactor/ui"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase connects to PostgreSQL and prepares the results schema.
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := postgres.EnsureSchema(context.Background(), db); err != nil {
		return nil, errors.Wrap(err, "failed to prepare results schema")
	}

	return db, nil
}

// loadTable reads the survey matrix configured for startup. A missing file is
// not fatal since every run request may carry its table inline.
func loadTable(appConfig *config.Config) *survey.Table {
	if appConfig.Survey.File == "" {
		log.Printf("[Main] No survey file configured, runs must post their table inline")
		return nil
	}

	reader := excel.NewDataReader(appConfig.Survey.File)
	if appConfig.Survey.Sheet != "" {
		reader = reader.WithSheet(appConfig.Survey.Sheet)
	}

	table, err := reader.ReadTable()
	if err != nil {
		log.Printf("[Main] Could not load survey file %s: %v", appConfig.Survey.File, err)
		log.Printf("[Main] Runs must post their table inline until a file is provided")
		return nil
	}

	log.Printf("[Main] Loaded survey table: %d rows, %d columns", table.RowCount(), len(table.Columns))
	return table
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Results go to PostgreSQL when configured, otherwise stay in memory.
	var store ports.ResultStore
	if appConfig.Database.URL != "" {
		db, err := initDatabase(appConfig)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		store = postgres.NewResultStore(db)
		log.Printf("[Main] Persisting results to PostgreSQL")
	} else {
		store = memory.NewResultStore()
		log.Printf("[Main] No DATABASE_URL set, keeping results in memory")
	}

	sink := logsink.New(internal.DefaultLogger)
	service := app.NewAnalysisService(rng.New(), store, sink)

	table := loadTable(appConfig)

	// The ops sidecar carries diagnostics and pprof on its own port so the
	// study API surface stays clean.
	if appConfig.Server.OpsEnabled {
		ops := ui.NewOpsServer(store)
		go func() {
			if err := ops.Start(":" + appConfig.Server.OpsPort); err != nil {
				log.Printf("[Ops] Server stopped: %v", err)
			}
		}()
	}

	server := ui.NewServer(appConfig, service, store, table)
	log.Fatal(server.Start(":" + appConfig.Server.Port))
}
