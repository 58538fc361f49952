package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/config"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/db/migrations"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/logging"
)

const usage = `usage: dbtool [-config path] <command>

commands:
  up             apply pending migrations (default)
  status         print the current schema version
  force <ver>    set the version without running migrations
  fix            clear the dirty flag left by a failed migration`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}
	switch cmd {
	case "up":
		err = migrations.Up(db, logger)
	case "status":
		var st migrations.State
		if st, err = migrations.Status(ctx, db); err == nil {
			fmt.Printf("version=%d dirty=%t\n", st.Version, st.Dirty)
		}
	case "force":
		var v uint64
		if v, err = strconv.ParseUint(flag.Arg(1), 10, 32); err != nil {
			err = fmt.Errorf("force: version must be a non-negative integer: %w", err)
			break
		}
		err = migrations.ForceVersion(ctx, db, uint(v))
	case "fix":
		var st migrations.State
		if st, err = migrations.FixDirtyDatabase(ctx, db); err == nil {
			fmt.Printf("version=%d dirty=%t\n", st.Version, st.Dirty)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("dbtool")
	}
}
