package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mfujita/kabuto/internal/config"
	"github.com/mfujita/kabuto/internal/jquants"
	"github.com/mfujita/kabuto/internal/llm"
	"github.com/mfujita/kabuto/internal/natsbus"
	"github.com/mfujita/kabuto/internal/research"
	"github.com/mfujita/kabuto/internal/scheduler"
	"github.com/mfujita/kabuto/internal/store"
	"github.com/mfujita/kabuto/internal/tools"
	"github.com/mfujita/kabuto/internal/vault"
	"github.com/mfujita/kabuto/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("kabuto %s\n", version)
	case "gateway":
		err = runGateway()
	case "research":
		err = runResearch(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	case "vault":
		err = runVault(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: kabuto <command>

Commands:
  gateway    Start the Kabuto gateway service
  research   Run a single research request and print the report
  export     Export research runs to a zstd tar archive
  import     Import research runs from an archive
  vault      Manage encrypted secrets
  version    Print version
`)
}

// buildPipeline assembles the research pipeline from configuration,
// resolving credentials from the vault when the config leaves them
// blank.
func buildPipeline(cfg *config.Config, db *store.Store, opts ...research.Option) (*research.Pipeline, error) {
	if cfg.Vault.Passphrase != "" {
		applyVaultSecrets(cfg, vault.NewSecrets(cfg.Vault.Passphrase, db))
	}

	var api *jquants.Client
	if cfg.JQuants.RefreshToken != "" {
		api = jquants.NewClient(cfg.JQuants, jquants.NewIntervalLimiter(cfg.JQuants.MinInterval))
	}

	set, err := tools.Resolve(cfg, api)
	if err != nil {
		return nil, err
	}

	client := llm.NewHTTPClient(cfg.LLM)
	return research.New(client, cfg, set, opts...), nil
}

// applyVaultSecrets fills credentials the config file and environment
// left empty. Vault lookups are best effort; a missing secret just
// leaves the field blank.
func applyVaultSecrets(cfg *config.Config, secrets *vault.Secrets) {
	fill := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if v, err := secrets.Get(name); err == nil {
			*dst = v
		}
	}
	fill(&cfg.LLM.APIKey, "openai_api_key")
	fill(&cfg.Search.APIKey, "tavily_api_key")
	fill(&cfg.JQuants.RefreshToken, "jquants_refresh_token")
	fill(&cfg.Web.Auth, "web_password")
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting kabuto gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	nc, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	// Research pipeline publishing lifecycle events onto the bus
	pipeline, err := buildPipeline(cfg, db, research.WithListener(natsbus.NewEventPublisher(nc)))
	if err != nil {
		return fmt.Errorf("init research pipeline: %w", err)
	}

	svc := newResearchService(pipeline, db)

	// Scheduler
	sched := scheduler.New(db, svc, nc, cfg.Scheduler)
	go sched.Start(ctx)
	slog.Info("scheduler started")

	// Web UI
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, svc, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown; SIGHUP reloads the config in place
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		sig := <-sigCh
		if sig == syscall.SIGHUP {
			reloadConfig(cfg, sched)
			continue
		}
		slog.Info("shutting down", "signal", sig)
		break
	}
	cancel()

	svc.Wait()
	return nil
}

// reloadConfig re-reads the config file and applies the reloadable
// sections. New values take effect on the next run or poll.
func reloadConfig(cfg *config.Config, sched *scheduler.Scheduler) {
	fresh, err := config.Load()
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return
	}

	// Credentials resolved from the vault at startup are not in the
	// file; keep them unless the file now sets its own.
	if fresh.LLM.APIKey == "" {
		fresh.LLM.APIKey = cfg.LLM.APIKey
	}
	if fresh.Search.APIKey == "" {
		fresh.Search.APIKey = cfg.Search.APIKey
	}

	d := config.Diff(cfg, fresh)
	for _, name := range d.NonReloadable {
		slog.Warn("config field requires restart", "field", name)
	}
	if !d.HasChanges() {
		slog.Info("config reloaded, no reloadable changes")
		return
	}

	if d.ResearchChanged {
		cfg.Research = d.NewResearch
		slog.Info("research limits updated")
	}
	if d.ModelsChanged {
		cfg.LLM = d.NewLLM
		slog.Info("model configuration updated")
	}
	if d.SearchChanged {
		cfg.Search = d.NewSearch
		slog.Info("search configuration updated")
	}
	if d.SchedulerChanged {
		cfg.Scheduler = d.NewScheduler
		sched.UpdateConfig(d.NewScheduler.PollInterval)
		slog.Info("scheduler poll interval updated", "interval", d.NewScheduler.PollInterval)
	}
}

func runResearch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: kabuto research \"<request>\"")
	}
	request := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	pipeline, err := buildPipeline(cfg, db)
	if err != nil {
		return fmt.Errorf("init research pipeline: %w", err)
	}

	svc := newResearchService(pipeline, db)

	run, err := svc.StartResearch(context.Background(), request)
	if err != nil {
		return err
	}
	svc.Wait()

	final, err := db.GetResearchRun(run.ID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if final.Status != "completed" {
		return fmt.Errorf("research run %s %s: %s", final.ID, final.Status, final.Report)
	}
	fmt.Println(final.Report)
	return nil
}
