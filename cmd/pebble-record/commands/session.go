package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/marshallshelly/pebble-record/cmd/pebble-record/output"
	"github.com/marshallshelly/pebble-record/pkg/builder"
	"github.com/marshallshelly/pebble-record/pkg/loader"
	"github.com/marshallshelly/pebble-record/pkg/registry"
	"github.com/marshallshelly/pebble-record/pkg/runtime"
)

// session holds the connection and models for one command invocation.
type session struct {
	rt       *runtime.DB
	db       *builder.DB
	registry *registry.Registry
}

// loadRegistry registers every model found under --models.
func loadRegistry() (*registry.Registry, error) {
	reg := registry.NewRegistry()
	n, err := loader.LoadModelsFromPath(modelsPath, reg)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("no models found in %s", modelsPath)
	}
	slog.Debug("models loaded", "count", n, "path", modelsPath)
	return reg, nil
}

// loadConfig resolves the connection settings: config file, then
// environment, then flags.
func loadConfig() (*runtime.Config, error) {
	cfg, err := runtime.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.URL = dbURL
	}
	if debug {
		cfg.Debug = true
	}
	if cfg.URL == "" && configPath == "" {
		return nil, fmt.Errorf("--db flag, --config or $%s is required", runtime.EnvDatabaseURL)
	}
	return cfg, nil
}

func openSession(ctx context.Context) (*session, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	rt, err := runtime.Connect(ctx, cfg, runtime.WithLogger(slog.Default()), runtime.WithDebug(cfg.Debug))
	if err != nil {
		return nil, err
	}
	slog.Debug("connected", "max_conns", cfg.MaxConns, "statement_timeout", cfg.StatementTimeout)

	return &session{rt: rt, db: builder.New(rt, reg), registry: reg}, nil
}

// model returns the model for table or a helpful error listing the known tables.
func (s *session) model(table string) (*builder.Model, error) {
	if !s.registry.Has(table) {
		return nil, fmt.Errorf("unknown table %q (known: %v)", table, s.registry.Names())
	}
	return s.db.Model(table)
}

// Close prints the query log when --debug is set and releases the pool.
func (s *session) Close() {
	if s.rt.Debug() {
		printQueryLog(os.Stderr, s.rt.QueryLog())
	}
	s.rt.Close()
}

func printQueryLog(w io.Writer, entries []runtime.QueryLogEntry) {
	if len(entries) == 0 {
		return
	}
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			fmt.Sprint(i + 1),
			e.Time.Format("15:04:05.000"),
			e.SQL,
			output.Cell(e.Params),
		}
	}
	fmt.Fprintln(w, output.Table([]string{"#", "time", "query", "params"}, rows))
}
