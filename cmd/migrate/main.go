package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"bulksender/internal/config"
	"bulksender/internal/repository"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func main() {
	// Load .env file (ignore error if not present)
	_ = godotenv.Load()

	printInfo(os.Stdout, "=== Bulksender Migration Runner ===\n")

	command := "help"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command != "up" && command != "down" && command != "status" && command != "reset" {
		printUsage()
		if command != "help" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}

	printInfo(os.Stdout, fmt.Sprintf("Connecting to %s database...", cfg.Storage.Backend))
	db, dialect, err := openDatabase(cfg)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	defer db.Close()
	printSuccess(os.Stdout, "✓ Connected to database\n")

	if err := runCommand(os.Stdout, db, dialect, command); err != nil {
		printError(fmt.Sprintf("%s failed: %v", command, err))
		os.Exit(1)
	}

	printInfo(os.Stdout, "\n✨ Operation completed successfully!")
}

func openDatabase(cfg *config.Config) (*sql.DB, repository.Dialect, error) {
	var (
		db      *sql.DB
		dialect repository.Dialect
		err     error
	)

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		dialect = repository.DialectPostgres
		db, err = sql.Open("postgres", cfg.GetDatabaseDSN())
	case config.BackendSQLite:
		dialect = repository.DialectSQLite
		db, err = sql.Open("sqlite", cfg.Storage.SQLitePath)
	default:
		return nil, "", fmt.Errorf("storage backend %q has no schema to migrate", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}
	if err := repository.CreateMigrationTable(db); err != nil {
		db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}

func runCommand(w io.Writer, db *sql.DB, dialect repository.Dialect, command string) error {
	switch command {
	case "up":
		return runUp(w, db, dialect)
	case "down":
		return runDown(w, db, dialect)
	case "status":
		return showMigrationStatus(w, db, dialect)
	case "reset":
		return runReset(w, db, dialect)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// runUp applies all pending migrations
func runUp(w io.Writer, db *sql.DB, dialect repository.Dialect) error {
	printInfo(w, "Running pending migrations...\n")

	count, err := repository.MigrateUp(db, dialect)
	if err != nil {
		return err
	}
	if count == 0 {
		printSuccess(w, "✓ All migrations are up to date")
		return nil
	}

	printSuccess(w, fmt.Sprintf("✓ Successfully applied %d migration(s)", count))
	return nil
}

// runDown rolls back the last applied migration
func runDown(w io.Writer, db *sql.DB, dialect repository.Dialect) error {
	printInfo(w, "Rolling back last migration...\n")

	version, err := repository.MigrateDown(db, dialect)
	if err != nil {
		return err
	}
	if version == 0 {
		printWarning(w, "No migrations to rollback")
		return nil
	}

	printSuccess(w, fmt.Sprintf("✓ Successfully rolled back migration %03d", version))
	return nil
}

// runReset rolls back all migrations and reapplies them
func runReset(w io.Writer, db *sql.DB, dialect repository.Dialect) error {
	printWarning(w, "Resetting database (rollback all + reapply all)...\n")

	for {
		version, err := repository.MigrateDown(db, dialect)
		if err != nil {
			return err
		}
		if version == 0 {
			break
		}
		printSuccess(w, fmt.Sprintf("  ✓ Migration %03d rolled back", version))
	}

	return runUp(w, db, dialect)
}

// showMigrationStatus displays the current migration status
func showMigrationStatus(w io.Writer, db *sql.DB, dialect repository.Dialect) error {
	printInfo(w, "Migration Status:\n")

	migrations, err := repository.Migrations(dialect)
	if err != nil {
		return err
	}
	applied, err := repository.AppliedVersions(db)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s%-10s %-40s %-12s%s\n", colorBold, "VERSION", "NAME", "STATUS", colorReset)
	fmt.Fprintln(w, strings.Repeat("-", 64))

	appliedCount := 0
	for _, m := range migrations {
		status := "pending"
		statusColor := colorYellow
		if applied[m.Version] {
			status = "applied"
			statusColor = colorGreen
			appliedCount++
		}
		fmt.Fprintf(w, "%-10s %-40s %s%-12s%s\n",
			fmt.Sprintf("%03d", m.Version), m.Name, statusColor, status, colorReset)
	}

	fmt.Fprintln(w, strings.Repeat("-", 64))
	printInfo(w, fmt.Sprintf("\nSummary: %d/%d migrations applied", appliedCount, len(migrations)))
	return nil
}

// Helper functions for colored output

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s%s%s\n", colorGreen, msg, colorReset)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, msg, colorReset)
}

func printInfo(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s%s%s\n", colorCyan, msg, colorReset)
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s%s%s\n", colorYellow, msg, colorReset)
}

func printUsage() {
	fmt.Println("Usage: migrate [command]")
	fmt.Println("\nCommands:")
	fmt.Println("  up       - Apply all pending migrations")
	fmt.Println("  down     - Rollback the last applied migration")
	fmt.Println("  status   - Show current migration status")
	fmt.Println("  reset    - Rollback all migrations and reapply them")
	fmt.Println("  help     - Show this help message")
	fmt.Println("\nThe target database follows STORAGE_BACKEND (postgres or sqlite).")
	fmt.Println("Migrations are tracked in the 'schema_migrations' table and each runs in a transaction.")
}
