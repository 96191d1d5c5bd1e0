package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"blankcanvas-be/internal/config"
	"blankcanvas-be/internal/db"
	"blankcanvas-be/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
`

var openDBFunc = openDB

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("APP_ENV"))
	defer logger.Sync()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var migrationsDir string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or roll back the order and payment schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&migrationsDir, "dir", "d", "./migrations", "directory holding *.sql migrations")

	root.AddCommand(
		modeCmd("up", "Apply every pending migration", &migrationsDir),
		modeCmd("down", "Roll back the most recently applied migration", &migrationsDir),
	)
	return root
}

func modeCmd(mode, short string, migrationsDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDBFunc()
			if err != nil {
				return err
			}
			defer database.Close()

			return run(database, mode, *migrationsDir)
		},
	}
}

// openDB prefers DB_URL and falls back to the DB_* settings the server uses.
func openDB() (*sql.DB, error) {
	if dbURL := os.Getenv("DB_URL"); dbURL != "" {
		database, err := sql.Open("postgres", dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect db: %w", err)
		}
		return database, nil
	}
	return db.NewDatabase(config.LoadConfig())
}

func run(database *sql.DB, mode, migrationsDir string) error {
	if _, err := database.Exec(schemaMigrationsDDL); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Strings(files)

	switch mode {
	case "up":
		return runMigrationsUp(database, files)
	case "down":
		return runMigrationsDown(database, files)
	default:
		return fmt.Errorf("unknown mode: %s (use 'up' or 'down')", mode)
	}
}

func runMigrationsUp(database *sql.DB, files []string) error {
	log := logger.L()

	for _, file := range files {
		version := filepath.Base(file)

		var exists bool
		err := database.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			log.Info("skipping applied migration", zap.String("version", version))
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		log.Info("applying migration", zap.String("version", version))
		if err := applyInTx(database, extractMigrationPart(string(content), "Up"),
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("migration %s: %w", version, err)
		}
	}

	log.Info("all pending migrations applied")
	return nil
}

func runMigrationsDown(database *sql.DB, files []string) error {
	log := logger.L()

	var lastVersion string
	err := database.QueryRow(`SELECT version FROM schema_migrations ORDER BY applied_at DESC, version DESC LIMIT 1`).Scan(&lastVersion)
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}

	filePath := ""
	for _, f := range files {
		if filepath.Base(f) == lastVersion {
			filePath = f
			break
		}
	}
	if filePath == "" {
		return fmt.Errorf("migration file not found for version: %s", lastVersion)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	log.Info("rolling back migration", zap.String("version", lastVersion))
	if err := applyInTx(database, extractMigrationPart(string(content), "Down"),
		`DELETE FROM schema_migrations WHERE version = $1`, lastVersion); err != nil {
		return fmt.Errorf("rollback %s: %w", lastVersion, err)
	}

	log.Info("rollback successful", zap.String("version", lastVersion))
	return nil
}

// applyInTx runs the migration body and its bookkeeping statement together,
// so a failed migration is never recorded as applied.
func applyInTx(database *sql.DB, body, bookkeeping, version string) error {
	tx, err := database.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if strings.TrimSpace(body) != "" {
		if _, err := tx.Exec(body); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(bookkeeping, version); err != nil {
		return fmt.Errorf("failed to update schema_migrations: %w", err)
	}
	return tx.Commit()
}

func extractMigrationPart(content string, section string) string {
	var part strings.Builder
	inPart := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-- +migrate ") {
			if inPart {
				break
			}
			inPart = strings.TrimSpace(strings.TrimPrefix(trimmed, "-- +migrate ")) == section
			continue
		}
		if inPart {
			part.WriteString(line)
			part.WriteByte('\n')
		}
	}
	return part.String()
}
