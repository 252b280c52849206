// ABOUTME: gatekeeper CLI: log in, issue authenticated API calls and check route access
// ABOUTME: Wires config, session store, dispatcher, guard and navigator behind cobra commands

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/2389/gatekeeper/internal/account"
	"github.com/2389/gatekeeper/internal/config"
	"github.com/2389/gatekeeper/internal/dispatch"
	"github.com/2389/gatekeeper/internal/guard"
	"github.com/2389/gatekeeper/internal/logging"
	"github.com/2389/gatekeeper/internal/metrics"
	"github.com/2389/gatekeeper/internal/navigation"
	"github.com/2389/gatekeeper/internal/route"
	"github.com/2389/gatekeeper/internal/session"
)

// Version information set at build time.
var version = "dev"

const banner = `
             _       _
  __ _  __ _| |_ ___| | _____  ___ _ __   ___ _ __
 / _' |/ _' | __/ _ \ |/ / _ \/ _ \ '_ \ / _ \ '__|
| (_| | (_| | ||  __/   <  __/  __/ |_) |  __/ |
 \__, |\__,_|\__\___|_|\_\___|\___| .__/ \___|_|
 |___/                            |_|
`

// globalFlags are shared by every command.
type globalFlags struct {
	configPath  string
	logLevel    string
	showMetrics bool
}

// app holds the wired components for one CLI invocation.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	store      session.Store
	closeStore func() error
	table      *route.Table
	guard      *guard.Guard
	dispatcher *dispatch.Dispatcher
	accounts   *account.Client
	out        io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}
	var a *app

	root := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Session gatekeeper for the parking API",
		Long: banner + `
Keeps the session token and role, attaches them to API requests and
decides which client routes the session may open.

Configuration is read from $GATEKEEPER_CONFIG, then
$XDG_CONFIG_HOME/gatekeeper/config.yaml, then ~/.config/gatekeeper/config.yaml.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(cmd.Context(), flags, stdout, stderr)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			if flags.showMetrics || a.cfg.Metrics.Enabled {
				if err := dumpMetrics(stderr, a.registry); err != nil {
					return err
				}
			}
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default: $GATEKEEPER_CONFIG or XDG path)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.showMetrics, "metrics", false, "print collected metrics to stderr on exit")

	appFn := func() *app { return a }
	root.AddCommand(
		loginCmd(appFn),
		logoutCmd(appFn),
		registerCmd(appFn),
		whoamiCmd(appFn),
		profileCmd(appFn),
		fetchCmd(appFn),
		navCmd(appFn),
		routesCmd(appFn),
	)
	return root
}

func newApp(ctx context.Context, flags *globalFlags, stdout, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	logger := logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(registry), metrics.WithNamespace(cfg.Metrics.Namespace))

	store, closeStore, err := cfg.Session.OpenStore(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	table, err := cfg.RouteTable()
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("building route table: %w", err)
	}

	d, err := dispatch.New(store,
		dispatch.WithBaseURL(cfg.API.BaseURL),
		dispatch.WithPrecedence(cfg.API.Precedence()),
		dispatch.WithRequestIDHeader(cfg.API.RequestIDHeader),
		dispatch.WithHTTPClient(newHTTPClient(cfg.API.Timeout)),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(m),
	)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	g := guard.New(store,
		guard.WithHomes(cfg.Guard.HomeRoutes()),
		guard.WithLoginRoute(cfg.Guard.LoginRoute),
		guard.WithLogger(logger),
		guard.WithMetrics(m),
	)

	logger.Debug("gatekeeper ready",
		"api", cfg.API.BaseURL,
		"session_backend", cfg.Session.Backend,
		"precedence", cfg.API.Precedence().String(),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		metrics:    m,
		store:      store,
		closeStore: closeStore,
		table:      table,
		guard:      g,
		dispatcher: d,
		accounts:   account.New(d, store, account.WithLogger(logger)),
		out:        stdout,
	}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

func (a *app) navigator() *navigation.Navigator {
	return navigation.New(a.table, a.guard, navigation.WithLogger(a.logger))
}

func (a *app) close() error {
	if a.closeStore == nil {
		return nil
	}
	if err := a.closeStore(); err != nil {
		return fmt.Errorf("closing session store: %w", err)
	}
	return nil
}
