package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"themesync/api"
	"themesync/config"
	"themesync/document"
	"themesync/logging"
	"themesync/storage"
	"themesync/system"
	"themesync/theme"
)

var (
	dataDir    string
	listen     string
	listenPort int
	output     string
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "themesync",
	Short: "themesync – light/dark theme preference sync",
	Long:  "Themesync resolves a light/dark theme from forced, stored, system and default signals and keeps tabs and processes in sync.",
	Run:   run,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Manage themesync configuration files.",
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a default configuration file",
	Long:  "Generate a default themesync.config file in the specified data directory (or current directory if not specified).",
	Run:   runConfigGenerate,
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the stored preference (or the configured default)",
	Args:  cobra.NoArgs,
	RunE:  runGet,
}

var setCmd = &cobra.Command{
	Use:       "set <light|dark|system>",
	Short:     "Persist a theme preference",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"light", "dark", "system"},
	RunE:      runSet,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Pin the preference to the opposite of the resolved theme",
	Args:  cobra.NoArgs,
	RunE:  runToggle,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Resolve and print the current theme state",
	Args:  cobra.NoArgs,
	RunE:  runState,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the theme state whenever it changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	wd, _ := os.Getwd()
	rootCmd.Version = appVersion
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", wd, "Data directory (default: current directory)")
	rootCmd.Flags().StringVar(&listen, "listen", "all", "IP address to listen on (default: all)")
	rootCmd.Flags().IntVar(&listenPort, "listen-port", 8080, "Port to listen on (default: 8080)")

	stateCmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")

	configCmd.AddCommand(configGenerateCmd)
	rootCmd.AddCommand(configCmd, getCmd, setCmd, toggleCmd, stateCmd, watchCmd)
}

// app holds everything a command needs to drive the engine.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *storage.Store
	doc    *document.Root
	engine *theme.Engine
	mount  theme.Config
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	// Override config with CLI flags only if they were explicitly provided
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	} else if cfg.DataDir == "" || cfg.DataDir == "." {
		cfg.DataDir = dataDir
	}

	dataDirAbs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = dataDirAbs
	return cfg, nil
}

// newApp builds an engine backed by the file store. sys supplies the system
// preference; nil means poll the operating system.
func newApp(cfg config.Config, sys theme.SystemPreference, events ...theme.StorageEvents) (*app, error) {
	logger := logging.New(cfg.Logging)

	mountCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("theme config: %w", err)
	}

	store := storage.New(cfg.DataDir, storage.WithLogger(logger))
	if err := store.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	if sys == nil {
		chain := system.DefaultChain(cfg.System.Override, cfg.System.Terminal)
		sys = system.NewPoller(chain.PrefersDark, cfg.System.PollInterval, logger)
	}

	doc := document.New()
	engine := theme.NewEngine(theme.Environment{
		Storage:       store,
		StorageEvents: theme.MergeStorageEvents(append([]theme.StorageEvents{store}, events...)...),
		System:        sys,
		Document:      doc,
		Deferrer:      theme.TimerDeferrer,
	}, theme.WithLogger(logger))

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		doc:    doc,
		engine: engine,
		mount:  mountCfg,
	}, nil
}

func run(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fatal(err)
	}
	if cmd.Flags().Changed("listen") || cmd.Flags().Changed("listen-port") {
		if listen != "" && listen != "all" {
			cfg.ListenAddr = fmt.Sprintf("%s:%d", listen, listenPort)
		} else {
			// Listen on all interfaces
			cfg.ListenAddr = fmt.Sprintf(":%d", listenPort)
		}
	}

	// Tabs report their own prefers-color-scheme; seed it from this host.
	chain := system.DefaultChain(cfg.System.Override, cfg.System.Terminal)
	reported := system.NewStatic(chain.PrefersDark())

	hub := api.NewWSConnectionManager()
	a, err := newApp(cfg, reported, hub)
	if err != nil {
		fatal(err)
	}
	hub.SetStorage(a.store)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	apiServer := api.NewServer(a.engine, hub, a.mount,
		api.WithLogger(a.logger),
		api.WithSystemReporter(reported),
		api.WithDocument(a.doc),
	)
	defer apiServer.Close()

	mux := http.NewServeMux()
	apiServer.Register(mux)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printListeningAddresses(a.logger, a.cfg.ListenAddr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("server shutdown", slog.Any("error", err))
	}
	a.engine.Reset()
}

func runConfigGenerate(cmd *cobra.Command, args []string) {
	dataDirAbs, err := filepath.Abs(dataDir)
	if err != nil {
		fatal(fmt.Errorf("resolve data dir: %w", err))
	}

	cfg := config.Default()
	cfg.DataDir = dataDirAbs

	cfgPath := filepath.Join(dataDirAbs, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		fatal(fmt.Errorf("config file already exists: %s", cfgPath))
	}

	if err := config.Save(cfg); err != nil {
		fatal(fmt.Errorf("failed to save config: %w", err))
	}

	fmt.Printf("Generated default config file: %s\n", cfgPath)
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, system.NewStatic(false))
	if err != nil {
		return err
	}
	a.engine.Configure(a.mount)
	fmt.Fprintln(cmd.OutOrStdout(), a.engine.CurrentPreference())
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	pref, err := theme.ParsePreference(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	unmount := a.engine.Mount(a.mount)
	defer unmount()

	a.engine.SetTheme(pref)
	fmt.Fprintln(cmd.OutOrStdout(), renderSnapshot(a.engine.Snapshot()))
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	unmount := a.engine.Mount(a.mount)
	defer unmount()

	a.engine.ToggleMode()
	fmt.Fprintln(cmd.OutOrStdout(), renderSnapshot(a.engine.Snapshot()))
	return nil
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	unmount := a.engine.Mount(a.mount)
	defer unmount()

	return printState(cmd.OutOrStdout(), output, a.engine.Snapshot(), a.doc)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	var (
		mu   sync.Mutex
		last *theme.Snapshot
	)
	unsubscribe := a.engine.Subscribe(func() {
		snap := a.engine.Snapshot()
		mu.Lock()
		defer mu.Unlock()
		if snap == last {
			return
		}
		last = snap
		fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), renderSnapshot(snap))
	})
	defer unsubscribe()

	unmount := a.engine.Mount(a.mount)
	defer unmount()

	<-ctx.Done()
	return nil
}

func printListeningAddresses(logger *slog.Logger, addr string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		logger.Info("listening", slog.String("url", "http://"+addr))
		return
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		addrs, err := net.InterfaceAddrs()
		if err != nil {
			logger.Info("listening", slog.String("url", "http://0.0.0.0:"+port))
			return
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				logger.Info("listening", slog.String("url", fmt.Sprintf("http://%s:%s", ipnet.IP.String(), port)))
			}
		}
		logger.Info("listening", slog.String("url", "http://localhost:"+port))
		return
	}
	logger.Info("listening", slog.String("url", fmt.Sprintf("http://%s:%s", host, port)))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
