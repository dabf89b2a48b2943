// Command kgbench runs the benchmark engine: a long-lived server for the
// dashboard, plus one-shot subcommands for scripted runs, diagnostics, and
// report generation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/api"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/benchmark"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/catalog"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/config"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/model"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/storage"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "serve":
		return cmdServe(args[1:])
	case "run":
		return cmdRun(args[1:])
	case "diagnose":
		return cmdDiagnose(args[1:])
	case "models":
		return cmdModels(args[1:])
	case "report":
		return cmdReport(args[1:])
	case "reconcile":
		return cmdReconcile(args[1:])
	case "version", "-v", "--version":
		fmt.Printf("kgbench %s (commit %s, built %s)\n", version, commit, buildDate)
		return 0
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: kgbench <command> [flags]

Commands:
  serve      start the engine with its HTTP API and background workers
  run        execute a benchmark run against a profile and wait for it
  diagnose   run a handshake or readiness check against a profile
  models     list the models an endpoint currently serves
  report     render a finished run as markdown or xlsx
  reconcile  repair run state after an unclean shutdown
  version    print version information

Run "kgbench <command> -h" for command flags.
`)
}

// engineRuntime bundles everything a subcommand needs once config is loaded.
type engineRuntime struct {
	cfg         *config.Config
	db          *storage.Store
	store       *benchmark.Store
	questions   *question.Repository
	catalog     *catalog.Catalog
	hub         *telemetry.Hub
	engine      *benchmark.Engine
	scheduler   *benchmark.Scheduler
	diagnostics *benchmark.DiagnosticsRunner
}

func openRuntime(configPath string) (*engineRuntime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	questions, err := question.Load(cfg.Dataset.QuestionsPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	topology, err := catalog.Load(cfg.Dataset.CatalogPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	store := benchmark.NewStore(db.DB())
	hub := telemetry.NewHub()
	engine := benchmark.NewEngine(benchmark.Dependencies{
		Store:              store,
		Questions:          questions,
		Catalog:            topology,
		Hub:                hub,
		LogDir:             cfg.Logging.Dir,
		ExcerptLimit:       cfg.Dataset.ExcerptLimit,
		NetworkLogsEnabled: cfg.Diagnostics.NetworkLogsEnabled,
		NetworkLogDir:      cfg.Logging.Dir,
	})
	scheduler := benchmark.NewScheduler(store, engine, hub)
	diagnostics := benchmark.NewDiagnosticsRunner(store, topology, hub, cfg.Dataset.ExcerptLimit, nil)

	return &engineRuntime{
		cfg:         cfg,
		db:          db,
		store:       store,
		questions:   questions,
		catalog:     topology,
		hub:         hub,
		engine:      engine,
		scheduler:   scheduler,
		diagnostics: diagnostics,
	}, nil
}

func (rt *engineRuntime) close() {
	rt.scheduler.Stop()
	rt.hub.Close()
	rt.db.Close()
}

func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	bind := fs.String("bind", "", "override the API bind address")
	fs.Parse(args)

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	if *bind != "" {
		rt.cfg.API.Bind = *bind
	}

	var tracerProvider *telemetry.TracerProvider
	if rt.cfg.Tracing.Enabled {
		tracerProvider, err = telemetry.NewTracerProvider("kgbench")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(ctx)
		}()
	}

	var relay *telemetry.Relay
	if rt.cfg.Relay.Enabled {
		relay, err = telemetry.NewRelay(rt.cfg.Relay.NATS, rt.hub)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer relay.Close()
	}

	// Runs left over from an unclean shutdown are resolved before the queue
	// accepts new work.
	if err := rt.scheduler.Reconcile(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: reconcile: %v\n", err)
		return 1
	}

	server := api.NewServer(api.Options{
		Store:       rt.store,
		Scheduler:   rt.scheduler,
		Diagnostics: rt.diagnostics,
		Questions:   rt.questions,
		Catalog:     rt.catalog,
		Hub:         rt.hub,
		Defaults:    rt.cfg.Defaults,
	})
	httpServer := &http.Server{
		Addr:              rt.cfg.API.Bind,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		fmt.Printf("kgbench %s serving on http://%s\n", version, rt.cfg.API.Bind)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if rt.cfg.Discovery.Enabled {
		poller := benchmark.NewDiscoveryPoller(rt.store, rt.hub, rt.cfg.Discovery.PollInterval, nil)
		group.Go(func() error {
			poller.Run(ctx)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	profileRef := fs.String("profile", "", "profile id or name (required)")
	label := fs.String("label", "", "run label")
	types := fs.String("types", "", "comma-separated question types to include")
	tags := fs.String("tags", "", "comma-separated tags to include")
	difficulties := fs.String("difficulty", "", "comma-separated difficulties to include")
	limit := fs.Int("limit", 0, "cap the number of questions")
	fs.Parse(args)

	if *profileRef == "" {
		fmt.Fprintln(os.Stderr, "Error: -profile is required")
		return 2
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	profile, err := findProfile(rt.store, *profileRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	filter := question.Filter{
		Tags:         splitList(*tags),
		Difficulties: splitList(*difficulties),
		Limit:        *limit,
	}
	for _, t := range splitList(*types) {
		filter.Types = append(filter.Types, question.Type(t))
	}
	questions, summary := rt.questions.Select(filter)

	run, err := rt.scheduler.CreateRun(benchmark.RunSpec{
		Label:     *label,
		Profile:   profile,
		Questions: questions,
		Dataset:   summary,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	events, unsubscribe := rt.hub.Subscribe()
	defer unsubscribe()

	if _, err := rt.scheduler.Enqueue(run.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("run %s: %d questions against %s (%s)\n", run.ID, len(questions), profile.Name, profile.ModelID)

	final := waitForRun(rt, run.ID, events)
	printRunSummary(final)
	if final.Status != benchmark.StatusCompleted {
		return 1
	}
	return 0
}

// waitForRun watches hub events for progress and polls the store until the
// run reaches a terminal status.
func waitForRun(rt *engineRuntime, runID string, events <-chan telemetry.Event) *benchmark.BenchmarkRun {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.RunID != runID {
				continue
			}
			if ev.Type == telemetry.EventAttemptRecorded {
				if qid, ok := ev.Data["questionId"].(string); ok {
					fmt.Printf("  attempt recorded: %s\n", qid)
				}
			}
		case <-ticker.C:
			run, err := rt.store.GetRun(runID)
			if err != nil {
				continue
			}
			if run.Status.Terminal() {
				return run
			}
		}
	}
}

func printRunSummary(run *benchmark.BenchmarkRun) {
	fmt.Printf("run %s finished: %s\n", run.ID, run.Status)
	if run.Error != "" {
		fmt.Printf("  error: %s\n", run.Error)
	}
	m := run.Metrics
	if m == nil {
		return
	}
	fmt.Printf("  attempted:          %d/%d (%d errored)\n", m.Attempted, m.TotalQuestions, m.Errored)
	fmt.Printf("  answer accuracy:    %.1f%% (%d passed)\n", m.AnswerAccuracy*100, m.AnswerPassed)
	fmt.Printf("  topology accuracy:  %.1f%% (avg score %.2f)\n", m.TopologyAccuracy*100, m.AvgTopologyScore)
	fmt.Printf("  tokens:             %d prompt, %d completion\n", m.TotalPromptTokens, m.TotalCompletionTokens)
	fmt.Printf("  avg latency:        %s\n", m.AvgLatency.Round(time.Millisecond))
	if m.FallbackCount > 0 {
		fmt.Printf("  plain-text fallbacks: %d\n", m.FallbackCount)
	}
}

func cmdDiagnose(args []string) int {
	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	profileRef := fs.String("profile", "", "profile id or name (required)")
	level := fs.String("level", "readiness", "check level: handshake or readiness")
	fs.Parse(args)

	if *profileRef == "" {
		fmt.Fprintln(os.Stderr, "Error: -profile is required")
		return 2
	}
	checkLevel := benchmark.DiagnosticsLevel(*level)
	if checkLevel != benchmark.LevelHandshake && checkLevel != benchmark.LevelReadiness {
		fmt.Fprintln(os.Stderr, "Error: -level must be handshake or readiness")
		return 2
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	profile, err := findProfile(rt.store, *profileRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	result, err := rt.diagnostics.Run(context.Background(), profile, checkLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for _, entry := range result.Log {
		fmt.Printf("[%s] %-5s %s\n", entry.Timestamp.Format("15:04:05"), entry.Severity, entry.Message)
	}
	fmt.Printf("%s: %s\n", result.Level, result.Status)
	if result.Summary != "" {
		fmt.Printf("  %s\n", result.Summary)
	}
	if result.Status != benchmark.DiagnosticsPass {
		return 1
	}
	return 0
}

func cmdModels(args []string) int {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	profileRef := fs.String("profile", "", "profile id or name")
	endpoint := fs.String("endpoint", "", "endpoint base URL (overrides -profile)")
	apiKey := fs.String("key", "", "API key for the endpoint")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	fs.Parse(args)

	baseURL := *endpoint
	key := *apiKey
	if baseURL == "" {
		rt, err := openRuntime(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer rt.close()

		if *profileRef != "" {
			profile, err := findProfile(rt.store, *profileRef)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
			baseURL = profile.EndpointBaseURL
			key = profile.APIKey
		} else {
			baseURL = rt.cfg.Defaults.EndpointBaseURL
			key = rt.cfg.Defaults.APIKey
		}
	}

	client := model.NewClient(baseURL, key, *timeout, model.ClientOptions{})
	models, err := client.ListModels(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("%d models at %s\n", len(models), baseURL)
	for _, m := range models {
		if m.OwnedBy != "" {
			fmt.Printf("  %s (%s)\n", m.ID, m.OwnedBy)
		} else {
			fmt.Printf("  %s\n", m.ID)
		}
	}
	return 0
}

func cmdReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	runID := fs.String("run", "", "run id (required)")
	format := fs.String("format", "markdown", "output format: markdown or xlsx")
	out := fs.String("out", "", "output path; markdown defaults to stdout")
	fs.Parse(args)

	if *runID == "" {
		fmt.Fprintln(os.Stderr, "Error: -run is required")
		return 2
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	run, err := rt.store.GetRun(*runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	attempts, err := rt.store.ListAttempts(run.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch *format {
	case "markdown":
		rendered := benchmark.RenderMarkdown(run, attempts)
		if *out == "" {
			fmt.Print(rendered)
			return 0
		}
		if err := os.WriteFile(*out, []byte(rendered), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	case "xlsx":
		if *out == "" {
			fmt.Fprintln(os.Stderr, "Error: -out is required for xlsx")
			return 2
		}
		if err := benchmark.WriteXLSX(*out, run, attempts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
		return 2
	}

	fmt.Printf("report written to %s\n", *out)
	return 0
}

func cmdReconcile(args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	fs.Parse(args)

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	if err := rt.scheduler.Reconcile(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("run state reconciled")
	return 0
}

// findProfile resolves a profile by id, falling back to an exact name match.
func findProfile(store *benchmark.Store, ref string) (*benchmark.ModelProfile, error) {
	if profile, err := store.GetProfile(ref); err == nil {
		return profile, nil
	}

	profiles, err := store.ListProfiles()
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no profile matches %q", ref)
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
