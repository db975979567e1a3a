package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rcarmo/go-devscreen/internal/config"
	"github.com/rcarmo/go-devscreen/internal/device"
	"github.com/rcarmo/go-devscreen/internal/handler"
	"github.com/rcarmo/go-devscreen/internal/logging"
	"github.com/rcarmo/go-devscreen/internal/metrics"
)

const (
	appName         = "devscreen"
	shutdownTimeout = 5 * time.Second
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

type cliFlags struct {
	url              string
	width            int
	height           int
	reconnect        float64
	debug            bool
	clearOnReconnect bool
	host             string
	port             string
	listen           string
	logLevel         string
	configFile       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f cliFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Mirror a remote device screen and forward touch input",
		Long: `devscreen connects to a device that streams pixel updates over a
WebSocket, keeps a local copy of its framebuffer and serves it over HTTP.

Touches posted to /touch are forwarded to the device.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithOverrides(loadOptions(cmd, f))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logging.Default())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.url, "url", "", "device WebSocket URL, e.g. ws://host:7376/ (env DEVICE_URL)")
	flags.IntVar(&f.width, "width", 0, "framebuffer width in pixels (default 320)")
	flags.IntVar(&f.height, "height", 0, "framebuffer height in pixels (default 240)")
	flags.Float64Var(&f.reconnect, "reconnect", 0, "reconnect jitter window in seconds, 0 disables (default 2)")
	flags.BoolVar(&f.debug, "debug", false, "enable diagnostic logging")
	flags.BoolVar(&f.clearOnReconnect, "clear-on-reconnect", false, "reset the framebuffer when a lost connection is re-established")
	flags.StringVar(&f.host, "host", "", "HTTP listen host (default 127.0.0.1)")
	flags.StringVar(&f.port, "port", "", "HTTP listen port (default 7377)")
	flags.StringVar(&f.listen, "listen", "", "HTTP listen address as host:port; --host and --port take precedence")
	flags.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&f.configFile, "config", "", "YAML configuration file")

	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", appName, version, commit)
		},
	}
}

func loadOptions(cmd *cobra.Command, f cliFlags) config.LoadOptions {
	opts := config.LoadOptions{
		URL:              strings.TrimSpace(f.url),
		Width:            f.width,
		Height:           f.height,
		Debug:            f.debug,
		ClearOnReconnect: f.clearOnReconnect,
		Host:             strings.TrimSpace(f.host),
		Port:             strings.TrimSpace(f.port),
		Listen:           strings.TrimSpace(f.listen),
		LogLevel:         strings.TrimSpace(f.logLevel),
		ConfigFile:       strings.TrimSpace(f.configFile),
	}

	if cmd.Flags().Changed("reconnect") {
		reconnect := f.reconnect
		opts.ReconnectSeconds = &reconnect
	}

	return opts
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newClient(cfg *config.Config, screen *handler.Screen, log *logging.Logger, m *metrics.Metrics) (*device.Client, error) {
	return device.New(device.Options{
		URL:              cfg.Device.URL,
		Width:            cfg.Device.Width,
		Height:           cfg.Device.Height,
		Reconnect:        device.ReconnectPolicy{BaseDelay: cfg.Device.ReconnectDelay()},
		ClearOnReconnect: cfg.Device.ClearOnReconnect,
		WriteTimeout:     cfg.Device.WriteTimeout,
		Dialer: &device.WebsocketDialer{
			HandshakeTimeout: cfg.Device.HandshakeTimeout,
			ReadLimit:        cfg.Device.ReadLimit,
		},
		Sink:    screen,
		Logger:  log.WithPrefix("device"),
		Metrics: m,
	})
}

func createServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.SetLevelFromString(cfg.EffectiveLogLevel())

	reg := newRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	screen := handler.NewScreen()

	client, err := newClient(cfg, screen, log, m)
	if err != nil {
		return fmt.Errorf("device client: %w", err)
	}

	server := createServer(cfg, handler.NewRouter(client, screen, handler.Options{
		Logger:   log.WithPrefix("http"),
		Gatherer: reg,
	}))

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start device client: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("serving %s on %s", cfg.Device.URL, server.Addr)
		serverErr <- startServer(server)
	}()

	select {
	case <-ctx.Done():
	case err = <-serverErr:
	}

	client.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("shutdown: %v", shutdownErr)
	}

	client.Wait()

	return err
}

func startServer(server *http.Server) error {
	if server == nil {
		return fmt.Errorf("server is nil")
	}

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
