package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hxsam/appifi/internal/config"
	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/metrics"
	"github.com/hxsam/appifi/internal/ui"
	"github.com/hxsam/appifi/internal/vfs"
	"github.com/hxsam/appifi/internal/xstat"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// app holds the persistent flags and the resources opened by a command.
type app struct {
	root          string
	identityStore string
	noReflink     bool
	configFile    string
	logFile       string
	metricsListen string
	verbose       bool
	quiet         bool

	cfg    config.Config
	logger *slog.Logger
	closer []func()
}

func run() int {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "appifi",
		Short:         "Manage drives and files on a NAS storage root",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.root, "root", "", "storage root (default: config storage.root or $APPIFI_ROOT)")
	pf.StringVar(&a.identityStore, "identity-store", "", "where identity tags live: xattr or inode (in-memory)")
	pf.BoolVar(&a.noReflink, "no-reflink", false, "write full copies instead of sharing extents")
	pf.StringVar(&a.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/appifi/config.toml)")
	pf.StringVar(&a.logFile, "log", "", "write structured JSON log to FILE")
	pf.StringVar(&a.metricsListen, "metrics-listen", "", "serve Prometheus metrics on ADDR while the command runs")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.AddCommand(
		newDriveCmd(a),
		newLsCmd(a),
		newTreeCmd(a),
		newMkdirCmd(a),
		newHashCmd(a),
		newCopyCmd(a, false),
		newCopyCmd(a, true),
		newDocsCmd(),
	)

	err := rootCmd.Execute()
	a.close()
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// setup loads the config file and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configFile != "" {
		a.cfg, err = config.LoadFile(a.configFile)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !cmd.Flags().Changed("root") {
		switch {
		case a.cfg.Storage.Root != nil:
			a.root = *a.cfg.Storage.Root
		default:
			a.root = os.Getenv("APPIFI_ROOT")
		}
	}
	if !cmd.Flags().Changed("identity-store") && a.cfg.Storage.IdentityStore != nil {
		a.identityStore = *a.cfg.Storage.IdentityStore
	}
	if !cmd.Flags().Changed("no-reflink") && a.cfg.Storage.Reflink != nil {
		a.noReflink = !*a.cfg.Storage.Reflink
	}
	if !cmd.Flags().Changed("log") && a.cfg.Log.File != nil {
		a.logFile = *a.cfg.Log.File
	}
	if !cmd.Flags().Changed("metrics-listen") && a.cfg.Metrics.Enabled != nil && *a.cfg.Metrics.Enabled &&
		a.cfg.Metrics.Listen != nil {
		a.metricsListen = *a.cfg.Metrics.Listen
	}

	// Configure logging.
	logLevel := a.cfg.LogLevel(slog.LevelWarn)
	if a.verbose {
		logLevel = slog.LevelDebug
	} else if a.quiet {
		logLevel = slog.LevelError
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if a.logFile != "" {
		lf, lfErr := os.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if lfErr != nil {
			return fmt.Errorf("open log file: %w", lfErr)
		}
		a.closer = append(a.closer, func() { lf.Close() })
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	a.logger = slog.New(logHandler)
	slog.SetDefault(a.logger)
	return nil
}

// open opens the storage root, starting the metrics endpoint if requested.
func (a *app) open(ctx context.Context) (*vfs.VFS, error) {
	if a.root == "" {
		return nil, errs.New(errs.EINVAL, "open", "", "no storage root: use --root, storage.root or $APPIFI_ROOT")
	}

	var store xstat.Store
	switch a.identityStore {
	case "", "xattr":
		xs := xstat.NewXattrStore()
		if err := os.MkdirAll(a.root, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root: %w", err)
		}
		if err := xs.Probe(a.root); err != nil {
			return nil, fmt.Errorf("storage root %s does not support user extended attributes (try --identity-store inode): %w", a.root, err)
		}
		store = xs
	case "inode":
		a.logger.Warn("identity tags are kept in memory and lost on exit")
		store = xstat.NewInodeStore()
	default:
		return nil, errs.New(errs.EINVAL, "open", a.identityStore, "unknown identity store")
	}

	opts := vfs.Options{Root: a.root, Store: store, NoReflink: a.noReflink, Logger: a.logger}
	if a.metricsListen != "" {
		reg := metrics.NewRegistry()
		opts.Metrics = metrics.NewVFSMetrics(reg)
		a.serveMetrics(reg)
	}

	v, err := vfs.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.closer = append(a.closer, func() {
		if err := v.Close(); err != nil {
			a.logger.Warn("close storage root", "error", err)
		}
	})
	return v, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	srv := &http.Server{
		Addr:              a.metricsListen,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics endpoint stopped", "addr", a.metricsListen, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.metricsListen)
	a.closer = append(a.closer, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx) //nolint:errcheck // best effort on exit
	})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
	a.closer = nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// exitCode maps an error's status class to a process exit code.
func exitCode(err error) int {
	switch errs.Status(err) {
	case 400:
		return 2 // bad argument
	case 404:
		return 3
	case 403:
		return 4
	case 409, 503:
		return 5 // retry may succeed
	default:
		return 1
	}
}
