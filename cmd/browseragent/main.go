// Command browseragent wires the runtime's components (bus, browser
// session, watchdogs, action controller, message builder, telemetry,
// and the step loop) into one process and runs a single task given as
// the first argument.
//
// It drives the model by hand through stdin/stdout rather than a
// concrete LLM provider client: those are external collaborators this
// module only specifies an interface for (chatmodel.Model), never
// implements. An embedding application supplies its own Model and
// calls agentloop directly instead of this binary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentrt/browseragent/actions"
	"github.com/agentrt/browseragent/agentloop"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/browser/roddriver"
	"github.com/agentrt/browseragent/bus"
	"github.com/agentrt/browseragent/config"
	"github.com/agentrt/browseragent/fsys"
	"github.com/agentrt/browseragent/messages"
	"github.com/agentrt/browseragent/redact"
	"github.com/agentrt/browseragent/telemetry"
	"github.com/agentrt/browseragent/watchdog"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: browseragent <task>")
		os.Exit(2)
	}
	task := os.Args[1]

	cfg := config.Load()
	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, task); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, task string) error {
	b := bus.New(log)

	driver := roddriver.New(log)
	session := browser.NewSession(driver, b, log, cfg.Browser.DownloadsDir)

	registry := watchdog.NewRegistry(
		watchdog.NewCDPSessionWatchdog(b, log),
		watchdog.NewCrashWatchdog(b, log, cfg.Browser.NetworkTimeout, cfg.Browser.UnresponsiveThreshold, session.Evaluate),
		watchdog.NewDialogWatchdog(b, log, session.DismissDialog, session.RecordClosedPopup),
		watchdog.NewDownloadsWatchdog(b, log),
		watchdog.NewSecurityWatchdog(b, log, nil, nil, 1, 3),
		watchdog.NewStorageWatchdog(b, log, driver.SetCookies),
		watchdog.NewHARWatchdog(b, log, cfg.Browser.HARPath),
		watchdog.NewScreensaverWatchdog(b, log, session.Ping),
	)
	if err := registry.RegisterAll(b); err != nil {
		return fmt.Errorf("register watchdogs: %w", err)
	}
	defer registry.StopAll()

	launchOpts := browser.LaunchOptions{
		Headless:   cfg.Browser.Headless,
		NoSandbox:  cfg.Browser.NoSandbox,
		BrowserBin: cfg.Browser.BrowserBin,
		Proxy:      cfg.Browser.Proxy,
		Stealth:    cfg.Browser.Stealth,
	}
	if err := session.Start(ctx, launchOpts); err != nil {
		return fmt.Errorf("start browser session: %w", err)
	}
	defer session.Stop(context.Background())

	if cfg.Browser.StorageStatePath != "" {
		if _, err := os.Stat(cfg.Browser.StorageStatePath); err == nil {
			if err := session.LoadStorageState(ctx, cfg.Browser.StorageStatePath); err != nil {
				log.Warn("load storage state", "path", cfg.Browser.StorageStatePath, "error", err)
			}
		}
		defer func() {
			if err := session.SaveStorageState(context.Background(), cfg.Browser.StorageStatePath); err != nil {
				log.Warn("save storage state", "path", cfg.Browser.StorageStatePath, "error", err)
			}
		}()
	}

	actionRegistry := actions.NewRegistry()
	if err := actions.RegisterDefaults(actionRegistry); err != nil {
		return fmt.Errorf("register actions: %w", err)
	}
	actionRegistry.Freeze()
	controller := actions.NewController(actionRegistry)

	sensitive := redact.NewMap(nil)
	builder := messages.NewBuilder(messages.Options{
		Task:              task,
		ActionSet:         actionRegistry.All(),
		IncludeScreenshot: cfg.Agent.IncludeScreenshot,
	}, sensitive)

	fileSystem := fsys.New()

	sink := newTelemetrySink(cfg.Telemetry)
	if cfg.Telemetry.DebugAddr != "" {
		if memSink, ok := sink.(*telemetry.MemorySink); ok {
			srv := telemetry.NewDebugServer(memSink, nil)
			if err := srv.Start(cfg.Telemetry.DebugAddr); err != nil {
				return fmt.Errorf("start debug server: %w", err)
			}
			defer srv.Stop(context.Background())
		}
	}

	loop := agentloop.New(agentloop.Deps{
		Session:    session,
		Controller: controller,
		Model:      newManualModel(os.Stdin, os.Stdout),
		Builder:    builder,
		FileSystem: fileSystem,
		Sensitive:  sensitive,
		Telemetry:  sink,
		Log:        log,
		RunID:      time.Now().UTC().Format("20060102T150405"),
	}, cfg.Agent)

	result, err := loop.Run(ctx, task)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	log.Info("run finished", "outcome", result.Outcome, "steps", result.Steps)
	fmt.Println(result.Text)
	return nil
}

func newTelemetrySink(cfg config.TelemetryConfig) telemetry.Sink {
	if !cfg.Enabled {
		return telemetry.NoopSink{}
	}
	return telemetry.NewMemorySink(256)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
