package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty runs the set embedded in the binary")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on source files and need neither config nor a database.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create", nil)
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			fail("failed to create migration", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		if err := migrate.Validate(migrate.Source(*dir)); err != nil {
			fail("migration validation failed", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.ForService("migrate", cfg.App)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir))
	requireResource(ctx, logg, "goose provider", err)

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			fail("goose up failed", err)
		}
		fmt.Printf("applied %d migration(s): %v\n", len(applied), applied)

	case "down":
		rolled, err := runner.Down(ctx)
		if err != nil {
			fail("goose down failed", err)
		}
		fmt.Println("rolled back:", rolled)

	case "status":
		lines, err := runner.Status(ctx)
		if err != nil {
			fail("goose status failed", err)
		}
		for _, line := range lines {
			fmt.Println(line)
		}

	case "version":
		if *version == "" {
			fail("missing -version for version command", nil)
		}
		moved, err := runner.To(ctx, *version)
		if err != nil {
			fail("goose version migrate failed", err)
		}
		fmt.Printf("migrated through %v\n", moved)

	default:
		fail("unknown -cmd value: "+*cmd, nil)
	}
}

func fail(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
