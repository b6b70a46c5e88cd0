// Package main is the lspwire command: it connects files to the language
// server configured for them and prints the diagnostics the server reports.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dshills/lspwire/internal/config"
	"github.com/dshills/lspwire/internal/protocol"
	"github.com/dshills/lspwire/internal/supervisor"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

type options struct {
	ConfigPath  string
	LogLevel    string
	LogPayloads bool
	LogStderr   bool
	Files       []string
	Workspace   string
}

func run() int {
	opts := parseFlags()

	log := newLogger(opts.LogLevel)
	slog.SetDefault(log)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.LogPayloads {
		cfg.Settings.LogPayloads = true
	}
	if opts.LogStderr {
		cfg.Settings.LogStderr = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One supervisor per server name, shared by the files it handles.
	supervisors := make(map[string]*supervisor.Supervisor)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, sup := range supervisors {
			sup.Stop(shutdownCtx)
		}
	}()

	for _, file := range opts.Files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}

		name, serverCfg, ok := cfg.ServerForFile(absPath)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no server configured for %s\n", file)
			return 1
		}

		sup, ok := supervisors[name]
		if !ok {
			sup = supervisor.New(name, serverCfg, cfg.Settings, supervisor.DefaultConfig(), log)
			sup.OnNotification(protocol.MethodPublishDiagnostics, printDiagnostics)
			if err := sup.Start(ctx, opts.Workspace); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start %s: %v\n", name, err)
				return 1
			}
			supervisors[name] = sup
		}

		text, err := os.ReadFile(absPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		sup.Tracker().Open(absPath, config.DetectLanguageID(absPath), string(text))
	}

	log.Info("watching for diagnostics", "files", len(opts.Files), "servers", len(supervisors))

	// Reload server definitions when the config file changes. Running
	// supervisors keep their original definition until restarted.
	watcher, err := config.WatchFile(opts.ConfigPath, func(newCfg *config.Config) {
		log.Info("configuration reloaded", "servers", len(newCfg.Servers))
	}, log)
	if err != nil {
		log.Warn("config watch unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	<-ctx.Done()
	log.Info("shutting down")
	return 0
}

// printDiagnostics writes each reported diagnostic to stdout.
func printDiagnostics(params json.RawMessage) {
	var p protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		slog.Warn("bad diagnostics payload", "error", err)
		return
	}

	path := protocol.URIToFilePath(p.URI)
	for _, d := range p.Diagnostics {
		fmt.Printf("%s:%d:%d: %s: %s\n",
			path, d.Range.Start.Line+1, d.Range.Start.Character+1, severityLabel(d.Severity), d.Message)
	}
}

func severityLabel(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.SeverityError:
		return "error"
	case protocol.SeverityWarning:
		return "warning"
	case protocol.SeverityInformation:
		return "info"
	case protocol.SeverityHint:
		return "hint"
	default:
		return "diagnostic"
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "lspwire.yaml", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "lspwire.yaml", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.Workspace, "workspace", "", "Workspace/project directory")
	flag.StringVar(&opts.Workspace, "w", "", "Workspace/project directory (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.LogPayloads, "payloads", false, "Log full message payloads")
	flag.BoolVar(&opts.LogStderr, "stderr", false, "Forward server stderr to the log")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "lspwire - language server diagnostics from the command line\n\n")
		fmt.Fprintf(os.Stderr, "Usage: lspwire [options] files...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lspwire main.go                 Diagnose a file\n")
		fmt.Fprintf(os.Stderr, "  lspwire -c servers.toml main.go Use a TOML config\n")
		fmt.Fprintf(os.Stderr, "  lspwire -payloads main.go       Log raw protocol traffic\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("lspwire %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	opts.Files = flag.Args()
	if len(opts.Files) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if opts.Workspace == "" {
		absPath, err := filepath.Abs(opts.Files[0])
		if err == nil {
			opts.Workspace = filepath.Dir(absPath)
		}
	}

	return opts
}
