package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olaflaitinen/Rhenium/internal/adapter/mcp"
	"github.com/olaflaitinen/Rhenium/internal/adapter/policy"
	"github.com/olaflaitinen/Rhenium/internal/adapter/postgres"
	"github.com/olaflaitinen/Rhenium/internal/audit"
	"github.com/olaflaitinen/Rhenium/internal/config"
	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"github.com/olaflaitinen/Rhenium/internal/core/port"
	"github.com/olaflaitinen/Rhenium/internal/core/service"
	"github.com/olaflaitinen/Rhenium/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	overrides := parseFlags()

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr — stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting rhenium",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("safety_mode", cfg.SafetyMode),
		slog.Bool("allow_dangerous", cfg.AllowDangerous),
		slog.Bool("validation_only", cfg.DatabaseURL == ""),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Observability: real providers when enabled, noops otherwise.
	tracer := telemetry.NoopTracer()
	instruments := telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "rhenium", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", slog.String("error.message", err.Error()))
			}
		}()
		tracer = otel.Tracer("rhenium")
		instruments = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	// Policy: a file wins over the built-in roles shaped by the env knobs.
	store, err := buildPolicyStore(cfg)
	if err != nil {
		return err
	}
	if cfg.PolicyFile != "" {
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
		go watchReload(ctx, store, logger)
	}

	// Audit sink.
	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fileAuditor.Close() }()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Database adapters. Without DATABASE_URL the server still validates;
	// it just cannot execute or resolve against a live schema.
	var schemaSource port.SchemaSource = staticSchema{}
	var executor port.QueryExecutor
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolSettings{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		logger.Info("database pool connected", slog.String("db.system", "postgresql"))

		schemaSource = postgres.NewSchemaFetcher(pool, cfg.Schemas, cfg.SchemaRefreshInterval)
		executor = postgres.NewExecutor(pool, cfg.ReadOnly, cfg.MaxRows, cfg.QueryTimeout)
		if cfg.ExplainOnly {
			executor = postgres.NewExplainOnlyExecutor(executor)
			logger.Info("explain-only mode: statements run under EXPLAIN")
		}
	}

	// Domain engine and services.
	engine := domain.NewEngine()
	validationSvc := service.NewValidationService(engine, store, schemaSource, auditor, logger, tracer, instruments)

	var querySvc *service.QueryService
	if executor != nil {
		querySvc = service.NewQueryService(validationSvc, executor, auditor, logger, tracer, instruments)
	}

	var listSchema port.SchemaSource
	if cfg.DatabaseURL != "" {
		listSchema = schemaSource
	}

	mcpServer := mcp.NewServer(version, validationSvc, querySvc, listSchema, logger, tracerOrNil(cfg.OTelEnabled, tracer), instruments)

	// Run MCP over stdio (stdin/stdout).
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func parseFlags() config.Overrides {
	var o config.Overrides

	databaseURL := flag.String("database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	maxRows := flag.Int("max-rows", 0, "server-side row cap for query results")
	queryTimeout := flag.Duration("query-timeout", 0, "per-query statement timeout")
	policyFile := flag.String("policy", "", "path to a YAML policy file")
	safetyMode := flag.String("mode", "", "safety mode: strict, moderate, permissive")
	allowDangerous := flag.Bool("allow-dangerous", false, "permit UPDATE/DELETE in permissive mode")
	maxParseDepth := flag.Int("max-parse-depth", 0, "maximum statement nesting depth")
	defaultRole := flag.String("default-role", "", "role used when a request names none")
	flag.BoolVar(&o.OTelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
	flag.BoolVar(&o.ExplainOnly, "explain-only", false, "run every statement under EXPLAIN (dry-run)")
	flag.StringVar(&o.AuditLog, "audit-log", "", "path to the NDJSON verdict audit log")
	flag.Parse()

	setString := func(dst **string, v *string) {
		if *v != "" {
			*dst = v
		}
	}
	setString(&o.DatabaseURL, databaseURL)
	setString(&o.LogLevel, logLevel)
	setString(&o.PolicyFile, policyFile)
	setString(&o.SafetyMode, safetyMode)
	setString(&o.DefaultRole, defaultRole)
	if *maxRows > 0 {
		o.MaxRows = maxRows
	}
	if *queryTimeout > 0 {
		o.QueryTimeout = queryTimeout
	}
	if *allowDangerous {
		o.AllowDangerous = allowDangerous
	}
	if *maxParseDepth > 0 {
		o.MaxParseDepth = maxParseDepth
	}

	return o
}

// buildPolicyStore loads the policy file when one is configured, otherwise
// shapes the built-in policy with the config knobs.
func buildPolicyStore(cfg *config.Config) (*policy.Store, error) {
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("loading policy: %w", err)
		}
		return policy.NewStore(pol, cfg.PolicyFile), nil
	}

	pol := policy.Default()
	pol.Mode = cfg.SafetyMode
	pol.AllowDangerousQueries = cfg.AllowDangerous
	pol.MaxParseDepth = cfg.MaxParseDepth
	if cfg.DefaultRole != "" {
		pol.DefaultRole = cfg.DefaultRole
	}
	return policy.NewStore(pol, ""), nil
}

// watchReload swaps the policy snapshot on SIGHUP. A reload that fails to
// parse keeps the previous snapshot in place.
func watchReload(ctx context.Context, store *policy.Store, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(); err != nil {
				logger.Error("policy reload failed, keeping previous policy",
					slog.String("error.message", err.Error()),
				)
				continue
			}
			logger.Info("policy reloaded")
		}
	}
}

func tracerOrNil(enabled bool, tracer trace.Tracer) trace.Tracer {
	if !enabled {
		return nil
	}
	return tracer
}

// staticSchema is the schema source used in validation-only mode: an empty
// view, so table existence checks never produce unknown-table warnings.
type staticSchema struct{}

func (staticSchema) Snapshot(context.Context) (domain.SchemaView, error) {
	return domain.SchemaView{}, nil
}
