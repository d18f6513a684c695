package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun/migrate"

	"github.com/vouchnet/settlement-middleware/pkg/config"
	"github.com/vouchnet/settlement-middleware/pkg/migrations/agentdb"
	"github.com/vouchnet/settlement-middleware/pkg/pgutil"
	migrations "github.com/vouchnet/settlement-middleware/pkg/pgutil/migrations"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = migrations.Usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		migrations.Exitf("failed to load config: %v", err)
	}

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		migrations.Exitf("failed to connect to database: %v", err)
	}
	defer db.Close()

	migrator := migrate.NewMigrator(db, agentdb.Migrations)
	if err := migrations.RunMigrations(migrator, flag.Args()...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
