// Package main is the CLI entry point for teenguard.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yahdeeez/teenguard/internal/api"
	"github.com/yahdeeez/teenguard/internal/dashboard"
	"github.com/yahdeeez/teenguard/internal/domain"
	"github.com/yahdeeez/teenguard/internal/infra"
	"github.com/yahdeeez/teenguard/internal/reporter"
	"github.com/yahdeeez/teenguard/internal/server"
	"github.com/yahdeeez/teenguard/internal/tui"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "teenguard",
	Short: "Parental monitoring agent and dashboard",
	Long: `teenguard is a parental-monitoring client pair: a background reporter
that runs on the monitored device and a terminal dashboard for parents.

The reporter samples location on a fixed interval and delivers events to
the backend best-effort. The dashboard polls aggregated snapshots.`,
	Version: Version,
}

var reporterCmd = &cobra.Command{
	Use:   "reporter",
	Short: "Run the monitoring reporter on this device",
	Long: `Runs the background reporter: acquires location permission, then
samples location on the configured interval and emits demo usage/web
events. Stops cleanly on SIGINT/SIGTERM.`,
	RunE: runReporter,
}

var consentCmd = &cobra.Command{
	Use:   "consent [grant|revoke]",
	Short: "Grant or revoke location consent for this device",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsent,
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the reporter configuration record",
	Long: `Writes the persisted reporter configuration (teen id, monitoring flag,
sampling interval). The reporter reads this record once at startup.`,
	RunE: runConfigure,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the parent dashboard",
	RunE:  runDashboard,
}

var loginCmd = &cobra.Command{
	Use:   "login <email> <password>",
	Short: "Log in and store the auth token",
	Args:  cobra.ExactArgs(2),
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register <email> <password> <name>",
	Short: "Register a parent account and store the auth token",
	Args:  cobra.ExactArgs(3),
	RunE:  runRegister,
}

var teensCmd = &cobra.Command{
	Use:   "teens",
	Short: "Manage monitored profiles",
}

var teensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored profiles",
	RunE:  runTeensList,
}

var teensAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a monitored profile for this device",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeensAdd,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development backend",
	Long: `Runs a compact backend implementing the REST surface the reporter and
dashboard consume, backed by a local SQLite database. For development and
demos only.`,
	RunE: runServe,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local reporter configuration and consent state",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	cfgTeenID   string
	cfgInterval int
	cfgEnabled  bool
	teenDevice  string
	serveAddr   string
	serveDB     string
	jsonOutput  bool
)

func init() {
	viper.SetDefault("api_base_url", "http://localhost:8080")
	viper.SetDefault("data_dir", defaultDataDir())
	viper.SetDefault("log_path", "")
	viper.SetDefault("companion_process", "TeenGuardApp")
	viper.SetDefault("poll_interval", dashboard.DefaultPollInterval.String())

	viper.SetConfigName("teenguard")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.config/teenguard")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("TEENGUARD")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // Missing config file is fine; defaults apply.

	configureCmd.Flags().StringVar(&cfgTeenID, "teen-id", "", "Monitored subject id")
	configureCmd.Flags().IntVar(&cfgInterval, "interval", 5, "Location sampling interval in minutes")
	configureCmd.Flags().BoolVar(&cfgEnabled, "enabled", true, "Monitoring enabled")
	teensAddCmd.Flags().StringVar(&teenDevice, "device-id", "", "Device id (defaults to this host)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDB, "db", "teenguard-server.db", "SQLite database path")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	teensCmd.AddCommand(teensListCmd)
	teensCmd.AddCommand(teensAddCmd)

	rootCmd.AddCommand(reporterCmd)
	rootCmd.AddCommand(consentCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(teensCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teenguard"
	}
	return filepath.Join(home, ".teenguard")
}

// openStore opens the encrypted local store, creating the key on first use.
func openStore() (*infra.EncryptedStore, error) {
	dataDir := viper.GetString("data_dir")
	keys := infra.NewFileKeyProvider(dataDir)
	key, err := keys.EnsureKey()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare store key: %w", err)
	}
	return infra.NewEncryptedStore(dataDir, key)
}

// apiClient builds a backend client, restoring a stored token when present.
func apiClient(store *infra.EncryptedStore, logger *zap.Logger) *api.Client {
	client := api.NewClient(viper.GetString("api_base_url"), logger)
	if store != nil {
		if token, err := store.GetSecret(infra.TokenSecretKey); err == nil {
			client.SetToken(token)
		}
	}
	return client
}

func runReporter(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	dataDir := viper.GetString("data_dir")
	client := api.NewClient(viper.GetString("api_base_url"), logger)
	sink := api.NewSink(client, logger)
	gate := infra.NewConsentGate(dataDir, logger)
	locations := infra.NewIPLocationProvider()
	geocoder := infra.NewNominatimGeocoder()
	appStates := infra.NewProcessStateSource(viper.GetString("companion_process"), 5*time.Second, logger)

	config := reporter.DefaultSessionConfig()
	config.Defaults.DeviceID = infra.DeviceID()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	session := reporter.NewSession(config, store, gate, locations, geocoder,
		sink, appStates, reporter.RealClock{}, rng, logger)
	session.SetNotice(func(msg string) {
		fmt.Println(msg)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := session.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("Reporter running (state: %s). Press Ctrl-C to stop.\n", session.State())
	<-ctx.Done()
	session.Stop()
	return nil
}

func runConsent(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	gate := infra.NewConsentGate(viper.GetString("data_dir"), logger)
	switch args[0] {
	case "grant":
		if err := gate.Grant(); err != nil {
			return err
		}
		fmt.Println("Location consent granted.")
	case "revoke":
		if err := gate.Revoke(); err != nil {
			return err
		}
		fmt.Println("Location consent revoked.")
	default:
		return fmt.Errorf("unknown consent action: %s (want grant or revoke)", args[0])
	}
	return nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if cfgTeenID == "" {
		return fmt.Errorf("--teen-id is required")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cfg := domain.ReporterConfig{
		TeenID:            cfgTeenID,
		DeviceID:          infra.DeviceID(),
		MonitoringEnabled: cfgEnabled,
		IntervalMinutes:   cfgInterval,
	}
	if err := store.SetConfig(cfg); err != nil {
		return err
	}

	fmt.Printf("Reporter configured: teen=%s interval=%dm enabled=%t\n",
		cfg.TeenID, cfg.IntervalMinutes, cfg.MonitoringEnabled)
	return nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	client := apiClient(store, logger)

	pollInterval, err := time.ParseDuration(viper.GetString("poll_interval"))
	if err != nil || pollInterval <= 0 {
		pollInterval = dashboard.DefaultPollInterval
	}

	ctx := context.Background()
	poller := dashboard.NewPoller(client, reporter.RealClock{}, pollInterval, logger)
	events := make(chan tui.SnapshotEvent, 8)
	tui.Wire(poller, events)

	model := tui.New(ctx, client, poller, events)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard exited with error: %w", err)
	}
	poller.Stop()
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	return authenticate(func(ctx context.Context, client *api.Client) (*api.AuthResponse, error) {
		return client.Login(ctx, args[0], args[1])
	})
}

func runRegister(cmd *cobra.Command, args []string) error {
	return authenticate(func(ctx context.Context, client *api.Client) (*api.AuthResponse, error) {
		return client.Register(ctx, args[0], args[1], args[2])
	})
}

func authenticate(fn func(context.Context, *api.Client) (*api.AuthResponse, error)) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	client := api.NewClient(viper.GetString("api_base_url"), logger)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	auth, err := fn(ctx, client)
	if err != nil {
		return err
	}
	if err := store.SetSecret(infra.TokenSecretKey, auth.Token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	fmt.Printf("Logged in as %s (%s)\n", auth.Parent.Name, auth.Parent.Email)
	return nil
}

func runTeensList(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	client := apiClient(store, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	teens, err := client.Teens(ctx)
	if err != nil {
		return err
	}
	if len(teens) == 0 {
		fmt.Println("No monitored profiles.")
		return nil
	}
	for _, teen := range teens {
		fmt.Printf("%s  %s (device %s)\n", teen.ID, teen.Name, teen.DeviceID)
	}
	return nil
}

func runTeensAdd(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	deviceID := teenDevice
	if deviceID == "" {
		deviceID = infra.DeviceID()
	}

	client := apiClient(store, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	teen, err := client.CreateTeen(ctx, args[0], deviceID)
	if err != nil {
		return err
	}
	fmt.Printf("Created profile %s (%s)\n", teen.Name, teen.ID)
	fmt.Printf("Configure this device with: teenguard configure --teen-id %s\n", teen.ID)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, err := server.OpenStore(serveDB)
	if err != nil {
		return err
	}
	defer store.Close()

	secret := []byte(viper.GetString("jwt_secret"))
	if len(secret) == 0 {
		secret, err = infra.GenerateKey()
		if err != nil {
			return err
		}
		logger.Warn("no jwt_secret configured, using an ephemeral signing key")
	}

	srv := server.NewServer(store, secret, logger)
	fmt.Printf("Backend listening on %s (db: %s)\n", serveAddr, serveDB)
	return srv.Router().Run(serveAddr)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println("\n=== teenguard Status ===")

	cfg, err := store.GetConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		fmt.Println("Reporter: not configured (run 'teenguard configure')")
	} else {
		fmt.Printf("Teen id:         %s\n", cfg.TeenID)
		fmt.Printf("Device id:       %s\n", cfg.DeviceID)
		fmt.Printf("Monitoring:      %t\n", cfg.MonitoringEnabled)
		fmt.Printf("Interval:        %d min\n", cfg.IntervalMinutes)
	}

	gate := infra.NewConsentGate(viper.GetString("data_dir"), logger)
	granted, err := gate.RequestForeground(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Location consent: %t\n", granted)

	if _, err := store.GetSecret(infra.TokenSecretKey); err == nil {
		fmt.Println("Auth token:      stored")
	} else {
		fmt.Println("Auth token:      none (run 'teenguard login')")
	}

	fmt.Println("========================")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
		return
	}
	fmt.Printf("teenguard %s\n", Version)
	fmt.Printf("  commit:     %s\n", Commit)
	fmt.Printf("  build time: %s\n", BuildTime)
}

func createLogger() *zap.Logger {
	logPath := viper.GetString("log_path")
	if logPath == "" {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{logPath}
	config.ErrorOutputPaths = []string{logPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
