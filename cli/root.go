// Package cli provides the main command-line interface and HTTP server for
// the workflow engine. This package orchestrates the complete application
// lifecycle: configuration loading, component wiring, HTTP server setup and
// graceful shutdown, adapted from the teacher's own cli/root.go bootstrap
// (cobra root command + viper precedence + echo server + signal-driven
// graceful shutdown) but wired against this module's own components instead
// of RabbitMQ/CouchDB/JWT.
package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eve.evalgo.org/workflow/agents"
	"eve.evalgo.org/workflow/analysis"
	"eve.evalgo.org/workflow/anomaly"
	"eve.evalgo.org/workflow/audit"
	"eve.evalgo.org/workflow/config"
	"eve.evalgo.org/workflow/httpapi"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/notify"
	"eve.evalgo.org/workflow/prerequisite"
	redisq "eve.evalgo.org/workflow/queue/redis"
	"eve.evalgo.org/workflow/repository"
	"eve.evalgo.org/workflow/statemanager"
	"eve.evalgo.org/workflow/transition"
)

// cfgFile holds the path to the configuration file specified via the
// --config flag. Search order when unset matches the teacher's: home
// directory, then working directory.
var cfgFile string

// RootCmd is the workflow engine's single entry point: load configuration,
// wire every component (C1-C11), start the REST server, serve until a
// shutdown signal arrives.
var RootCmd = &cobra.Command{
	Use:   "workflow-engine",
	Short: "a kanban-driven workflow engine with prerequisite checks, multi-agent suggestions and notification dispatch",
	Long: `workflow-engine

A workflow/kanban process engine:
- loads kanban definitions and validates their structure
- tracks processes through a state machine with warn-not-block transitions
- evaluates field/time/external-API/script prerequisites before a transition
- runs heuristic/pattern/rule agents to suggest the next state
- detects stuck processes, duration outliers and transition loops
- dispatches email/webhook notifications on state changes
- exposes all of the above over a REST API

Configuration can be provided via command-line flags, environment variables
(WORKFLOW_* and the unprefixed SMTP_* vars), or a YAML configuration file,
with flag > env > file > default precedence.`,
	Run: runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.workflow-engine.yaml)")
	RootCmd.PersistentFlags().String("http-address", "", "HTTP server listen address")
	RootCmd.PersistentFlags().String("kanbans-dir", "", "directory of kanban JSON definitions")
	RootCmd.PersistentFlags().String("scripts-dir", "", "directory of custom_script prerequisite files")
	RootCmd.PersistentFlags().String("repository-kind", "", `process/audit backend: "flatfile" or "sql"`)
	RootCmd.PersistentFlags().String("data-dir", "", "flat-file backend data directory")
	RootCmd.PersistentFlags().String("database-url", "", "SQL backend DSN")
	RootCmd.PersistentFlags().String("api-key", "", "X-API-Key value accepted on state-changing endpoints")
	RootCmd.PersistentFlags().String("jwt-secret", "", "JWT signing secret for bearer auth")

	viper.BindPFlag("http_address", RootCmd.PersistentFlags().Lookup("http-address"))
	viper.BindPFlag("kanbans_dir", RootCmd.PersistentFlags().Lookup("kanbans-dir"))
	viper.BindPFlag("scripts_dir", RootCmd.PersistentFlags().Lookup("scripts-dir"))
	viper.BindPFlag("repository_kind", RootCmd.PersistentFlags().Lookup("repository-kind"))
	viper.BindPFlag("data_dir", RootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("database_url", RootCmd.PersistentFlags().Lookup("database-url"))
	viper.BindPFlag("api_key", RootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("jwt_secret", RootCmd.PersistentFlags().Lookup("jwt-secret"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".workflow-engine")
	}

	viper.SetEnvPrefix("WORKFLOW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// overrideFromFlags layers viper-bound flag/file/env values from initConfig
// on top of config.LoadEngineConfig()'s environment-only defaults, matching
// the teacher's flag > viper(env/file) > default precedence without
// duplicating EngineConfig's own env var names.
func overrideFromFlags(cfg config.EngineConfig) config.EngineConfig {
	if v := viper.GetString("http_address"); v != "" {
		cfg.HTTPAddress = v
	}
	if v := viper.GetString("kanbans_dir"); v != "" {
		cfg.KanbansDir = v
	}
	if v := viper.GetString("scripts_dir"); v != "" {
		cfg.ScriptsDir = v
	}
	if v := viper.GetString("repository_kind"); v != "" {
		cfg.RepositoryKind = v
	}
	if v := viper.GetString("data_dir"); v != "" {
		cfg.FlatFileDir = v
	}
	if v := viper.GetString("database_url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := viper.GetString("api_key"); v != "" {
		cfg.APIKey = v
	}
	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.JWTSecret = v
	}
	return cfg
}

// buildRepositoryDriver picks the flat-file or SQL driver per
// cfg.RepositoryKind, matching db/postgres.go's DSN-driven construction
// style.
func buildRepositoryDriver(cfg config.EngineConfig) (repository.Driver, error) {
	switch cfg.RepositoryKind {
	case "sql":
		return repository.NewSQLRepository(cfg.DatabaseURL)
	default:
		return repository.NewFlatFileRepository(cfg.FlatFileDir)
	}
}

// buildNotifier wires C11's dispatcher, preferring the durable Redis-backed
// queue when WORKFLOW_NOTIFY_REDIS_URL is set, falling back to the default
// in-memory queue otherwise.
func buildNotifier(cfg config.EngineConfig) *notify.Dispatcher {
	redisURL := os.Getenv("WORKFLOW_NOTIFY_REDIS_URL")
	if redisURL == "" {
		return notify.NewDispatcher(cfg.SMTP)
	}
	backend, err := redisq.NewQueue(context.Background(), redisq.Config{RedisURL: redisURL, KeyPrefix: "workflow:notify"})
	if err != nil {
		log.Printf("notify: failed to connect to durable queue, falling back to in-memory: %v", err)
		return notify.NewDispatcher(cfg.SMTP)
	}
	return notify.NewDurableDispatcher(cfg.SMTP, notify.NewRedisQueue(backend))
}

// buildDependencies assembles every C1-C11 component into the set the REST
// surface dispatches into.
func buildDependencies(cfg config.EngineConfig) (*httpapi.Dependencies, error) {
	registry := kanban.NewRegistry(cfg.KanbansDir)
	for _, loadErr := range registry.LoadAll() {
		log.Printf("kanban: %v", loadErr)
	}

	driver, err := buildRepositoryDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("cli: building repository driver: %w", err)
	}
	repo, err := repository.NewProcessRepository(driver)
	if err != nil {
		return nil, fmt.Errorf("cli: building process repository: %w", err)
	}

	checker := prerequisite.NewChecker(cfg.ScriptsDir)
	engine := transition.NewEngine(registry, repo, checker)
	analyzer := analysis.NewAnalyzer(repo)
	detector := anomaly.NewDetector(repo)
	feedback := agents.NewFeedbackLoop()
	orchestrator := agents.NewOrchestrator(repo, registry, analyzer, checker, feedback)
	dashboard := audit.NewDashboard(repo, registry, analyzer, detector, orchestrator)
	trail := audit.NewTrail(repo)
	exporter := audit.NewExporter(repo, registry)
	notifier := buildNotifier(cfg)
	ops := statemanager.New(statemanager.Config{ServiceName: "workflow-engine"})

	return &httpapi.Dependencies{
		Registry:     registry,
		Repo:         repo,
		Checker:      checker,
		Engine:       engine,
		Analyzer:     analyzer,
		Detector:     detector,
		Orchestrator: orchestrator,
		Feedback:     feedback,
		Dashboard:    dashboard,
		Trail:        trail,
		Exporter:     exporter,
		Notifier:     notifier,
		Ops:          ops,
		APIKey:       cfg.APIKey,
		JWTSecret:    cfg.JWTSecret,
	}, nil
}

// runServer loads configuration, wires every component, starts the REST
// server, and blocks until SIGINT/SIGTERM, then drains in-flight requests
// and stops the notification dispatcher's worker pool.
func runServer(cmd *cobra.Command, args []string) {
	cfg := overrideFromFlags(config.LoadEngineConfig())

	deps, err := buildDependencies(cfg)
	if err != nil {
		log.Fatalf("failed to wire workflow engine: %v", err)
	}
	defer deps.Notifier.Stop()

	e := httpapi.NewServer(deps)

	go func() {
		log.Printf("workflow engine listening on %s", cfg.HTTPAddress)
		if err := e.Start(cfg.HTTPAddress); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
