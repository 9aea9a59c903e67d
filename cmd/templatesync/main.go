package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"stylegen/internal/adapter/repo"
	"stylegen/internal/infra"
	"stylegen/internal/templates"
)

// templatesync copies a YAML template catalog into the templates table.
func main() {
	_ = godotenv.Load()

	var (
		fileFlag string
		dryRun   bool
	)
	flag.StringVar(&fileFlag, "file", os.Getenv("TEMPLATE_CATALOG_PATH"), "Path to the YAML template catalog")
	flag.BoolVar(&dryRun, "dry-run", false, "Validate the catalog without writing")
	flag.Parse()

	path := strings.TrimSpace(fileFlag)
	if path == "" {
		fmt.Fprintln(os.Stderr, "catalog path is required via -file or TEMPLATE_CATALOG_PATH")
		os.Exit(1)
	}
	catalog, err := templates.LoadCatalogFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if dryRun {
		fmt.Printf("%d templates valid\n", len(catalog.Templates))
		return
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "templatesync").Logger()
	repository := repo.NewTemplateRepository(infra.NewSQLRunner(pool, logger))

	for _, tpl := range catalog.Templates {
		if err := repository.Upsert(ctx, tpl); err != nil {
			fmt.Fprintf(os.Stderr, "failed to upsert %s: %v\n", tpl.ID, err)
			os.Exit(1)
		}
		logger.Info().Str("template_id", tpl.ID).Str("provider", tpl.Provider.Kind).Msg("template synced")
	}
	fmt.Printf("%d templates synced\n", len(catalog.Templates))
}
