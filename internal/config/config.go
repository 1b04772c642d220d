package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // health service; empty disables

	// DB
	Env      string // "dev" | "prod"
	DBPath   string // e.g. "./data/presence.db"
	SeedFile string // dev only; empty uses the built-in seed

	AdminToken string // bearer token for key rotation; empty disables the route

	BlockExitOnLoan bool

	// Audit retention
	EventRetentionDays int // 0 = keep forever
	PruneIntervalHours int // how often the pruner runs (default 6)
}

func FromEnv() Config {
	addr := getenvDefault("PRESENCE_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("PRESENCE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		HTTPAddr: addr,
		GRPCAddr: strings.TrimSpace(os.Getenv("PRESENCE_GRPC_ADDR")),

		Env:      env,
		DBPath:   getenvDefault("PRESENCE_DB_PATH", "./data/presence.db"),
		SeedFile: strings.TrimSpace(os.Getenv("PRESENCE_SEED_FILE")),

		AdminToken: strings.TrimSpace(os.Getenv("PRESENCE_ADMIN_TOKEN")),

		BlockExitOnLoan: getenvBool("PRESENCE_BLOCK_EXIT_ON_LOAN"),

		EventRetentionDays: getenvInt("PRESENCE_EVENT_RETENTION_DAYS", 90),
		PruneIntervalHours: getenvInt("PRESENCE_PRUNE_INTERVAL_HOURS", 6),
	}
}

// Load reads the environment and then applies command-line flags on top.
// Flags left unset keep the environment value.
func Load(args []string) (Config, error) {
	cfg := FromEnv()

	fs := pflag.NewFlagSet("presence-server", pflag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.Env, "env", cfg.Env, `"dev" or "prod"`)
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database file")
	fs.StringVar(&cfg.SeedFile, "seed-file", cfg.SeedFile, "YAML seed applied in dev")
	fs.BoolVar(&cfg.BlockExitOnLoan, "block-exit-on-loan", cfg.BlockExitOnLoan, "refuse exits while a loan is outstanding")
	fs.IntVar(&cfg.EventRetentionDays, "event-retention-days", cfg.EventRetentionDays, "days of audit events to keep (0 keeps all)")
	fs.IntVar(&cfg.PruneIntervalHours, "prune-interval-hours", cfg.PruneIntervalHours, "hours between audit prunes")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg.Env = strings.ToLower(cfg.Env)
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return Config{}, fmt.Errorf("--env must be dev or prod, got %q", cfg.Env)
	}
	if cfg.EventRetentionDays < 0 || cfg.PruneIntervalHours < 0 {
		return Config{}, fmt.Errorf("retention and prune interval must not be negative")
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return strings.EqualFold(v, "true") || v == "1"
}
