package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"goboot/adapters/postgres"
	"goboot/domain/boot"
	"goboot/internal/bootstrap"
	"goboot/internal/migration"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate <database_url> [run_export_dir]")
	}

	databaseURL := os.Args[1]

	// Connect to database
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Schema is current (version %s)", runner.Version())

	if len(os.Args) < 3 {
		return
	}

	// Optional second argument: import previously exported replicate
	// sets into the freshly migrated ledger.
	exportDir := os.Args[2]
	ledger := postgres.NewRunLedger(db)

	files, err := findRunExports(exportDir)
	if err != nil {
		log.Fatalf("Failed to scan %s: %v", exportDir, err)
	}
	log.Printf("Found %d run exports to import", len(files))

	imported := 0
	skipped := 0

	for _, file := range files {
		set, err := loadRunExport(file)
		if err != nil {
			log.Printf("Failed to load run from %s: %v", file, err)
			skipped++
			continue
		}

		if err := ledger.StoreRun(ctx, set); err != nil {
			log.Printf("Failed to store run %s: %v", set.RunID, err)
			skipped++
			continue
		}

		// Cache a default summary table so listings have rows to show.
		summaries, err := bootstrap.Summarize(set, 0.95, boot.MethodStudentT)
		if err != nil {
			log.Printf("Could not summarize run %s: %v", set.RunID, err)
		} else if err := ledger.StoreSummaries(ctx, set.RunID, summaries); err != nil {
			log.Printf("Failed to store summaries for %s: %v", set.RunID, err)
		}

		imported++
		log.Printf("Imported run %s from %s", set.RunID, filepath.Base(file))
	}

	log.Printf("Import complete: %d imported, %d skipped", imported, skipped)
}

func findRunExports(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

func loadRunExport(path string) (*boot.ReplicateSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var set boot.ReplicateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	return &set, nil
}
