package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/SafeSignal/internal/analytics"
	"github.com/BTreeMap/SafeSignal/internal/api"
	"github.com/BTreeMap/SafeSignal/internal/config"
	"github.com/BTreeMap/SafeSignal/internal/dispatch"
	"github.com/BTreeMap/SafeSignal/internal/engine"
	"github.com/BTreeMap/SafeSignal/internal/geo"
	"github.com/BTreeMap/SafeSignal/internal/lockfile"
	"github.com/BTreeMap/SafeSignal/internal/messaging"
	"github.com/BTreeMap/SafeSignal/internal/metrics"
	"github.com/BTreeMap/SafeSignal/internal/recovery"
	"github.com/BTreeMap/SafeSignal/internal/scheduler"
	"github.com/BTreeMap/SafeSignal/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SafeSignal state data
	DefaultStateDir = "/var/lib/safesignal"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "safesignal.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device store filename
	DefaultWhatsAppDBFileName = "whatsapp.db"
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
)

// Messaging channels
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelLog      = "log"
	ChannelNone     = "none"

	// ChannelTwilioWhatsApp sends WhatsApp messages through Twilio instead of whatsmeow
	ChannelTwilioWhatsApp = "twilio-whatsapp"
)

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseURL    string
	ConfigPath     string
	APIAddr        string
	Channel        string
	VoiceCalls     bool
	WhatsAppDSN    string
	GeoIPPath      string
	PublicIP       string
	DeviceLat      float64
	DeviceLon      float64
	HasDevicePos   bool
	AnalyticsCron  string
	PowerSupplyDir string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	configPath    *string
	apiAddr       *string
	channel       *string
	voiceCalls    *bool
	qrOutput      *string
	analyticsCron *string
}

func main() {
	// Load .env before reading LOG_LEVEL
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
	initializeLogger()

	cfg := loadEnvironmentConfig()
	flags := parseCommandLineFlags(cfg)
	applyFlags(&cfg, flags)

	if err := run(cfg, *flags.qrOutput); err != nil {
		slog.Error("SafeSignal failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SafeSignal exited successfully")
}

// initializeLogger sets up structured logging at $LOG_LEVEL (default debug)
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables
func loadEnvironmentConfig() Config {
	cfg := Config{
		StateDir:       config.GetEnv("SAFESIGNAL_STATE_DIR", DefaultStateDir),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ConfigPath:     os.Getenv("SAFESIGNAL_CONFIG"),
		APIAddr:        config.GetEnv("API_ADDR", api.DefaultAddr),
		Channel:        config.GetEnv("MESSAGING_CHANNEL", ChannelLog),
		VoiceCalls:     config.ParseBoolEnv("ENABLE_VOICE_CALLS", false),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		GeoIPPath:      os.Getenv("GEOIP_DB_PATH"),
		PublicIP:       os.Getenv("DEVICE_PUBLIC_IP"),
		AnalyticsCron:  config.GetEnv("ANALYTICS_CRON", scheduler.DefaultAnalyticsSpec),
		PowerSupplyDir: os.Getenv("POWER_SUPPLY_DIR"),
	}
	lat, latOK := config.ParseFloatEnv("DEVICE_LAT")
	lon, lonOK := config.ParseFloatEnv("DEVICE_LON")
	if latOK && lonOK {
		cfg.DeviceLat, cfg.DeviceLon, cfg.HasDevicePos = lat, lon, true
	}

	slog.Debug("environment variables loaded",
		"stateDir", cfg.StateDir,
		"databaseURLSet", cfg.DatabaseURL != "",
		"configPath", cfg.ConfigPath,
		"apiAddr", cfg.APIAddr,
		"channel", cfg.Channel,
		"voiceCalls", cfg.VoiceCalls,
		"geoIPSet", cfg.GeoIPPath != "",
		"devicePosSet", cfg.HasDevicePos,
		"analyticsCron", cfg.AnalyticsCron)
	return cfg
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(cfg Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", cfg.StateDir, "state directory for SafeSignal data (overrides $SAFESIGNAL_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", cfg.DatabaseURL, "event store DSN: postgres URL, badger://dir or SQLite path (overrides $DATABASE_URL)"),
		configPath:    flag.String("config", cfg.ConfigPath, "settings YAML file (overrides $SAFESIGNAL_CONFIG)"),
		apiAddr:       flag.String("api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)"),
		channel:       flag.String("channel", cfg.Channel, "messaging channel: sms, whatsapp, twilio-whatsapp, log or none (overrides $MESSAGING_CHANNEL)"),
		voiceCalls:    flag.Bool("voice-calls", cfg.VoiceCalls, "place voice calls to call-enabled contacts (overrides $ENABLE_VOICE_CALLS)"),
		qrOutput:      flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		analyticsCron: flag.String("analytics-cron", cfg.AnalyticsCron, "cron schedule for analytics refresh (overrides $ANALYTICS_CRON)"),
	}
	flag.Parse()
	return flags
}

// applyFlags folds flag values into cfg and fills derived defaults.
func applyFlags(cfg *Config, flags Flags) {
	cfg.StateDir = *flags.stateDir
	cfg.DatabaseURL = *flags.dbDSN
	cfg.ConfigPath = *flags.configPath
	cfg.APIAddr = *flags.apiAddr
	cfg.Channel = strings.ToLower(*flags.channel)
	cfg.VoiceCalls = *flags.voiceCalls
	cfg.AnalyticsCron = *flags.analyticsCron

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = filepath.Join(cfg.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlitePath", cfg.DatabaseURL)
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(cfg.StateDir, config.DefaultFileName)
	}
	if cfg.WhatsAppDSN == "" {
		cfg.WhatsAppDSN = "file:" + filepath.Join(cfg.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
}

// run wires every module and blocks until SIGINT or SIGTERM.
func run(cfg Config, qrOutput string) error {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release lock", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fileCfg, warnings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	logWarnings("config", warnings)

	st, err := store.New(store.OptionForDSN(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	if err := seedContacts(st, fileCfg); err != nil {
		return err
	}

	sender, caller, closeMessaging, err := buildMessaging(ctx, cfg, qrOutput)
	if err != nil {
		return err
	}
	defer closeMessaging()

	locator, closeLocator := buildLocator(cfg)
	defer closeLocator()

	metrics.Init()

	probe := geo.NewProbe(locator, geo.NewSystemVitals(cfg.PowerSupplyDir))
	notifier := dispatch.NewDispatcher(sender, caller)
	reporter := analytics.NewService(st, analytics.DefaultCacheTTL, time.Now)

	eng, warnings := engine.New(st, st, probe, notifier,
		engine.WithSettings(fileCfg.Settings),
		engine.WithTriggerPatterns(fileCfg.Triggers),
		engine.WithPersonalInfo(fileCfg.Personal),
		engine.WithVoiceCalls(cfg.VoiceCalls),
		engine.WithEventChangeHook(reporter.Invalidate),
	)
	logWarnings("engine", warnings)
	defer eng.Close()

	recoveryManager := recovery.NewManager(st, time.Now)
	recoveryManager.Register(eng)
	recoveryManager.Register(reporter)
	if err := recoveryManager.RecoverAll(ctx); err != nil {
		slog.Warn("Recovery incomplete", "error", err)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob("analytics-refresh", cfg.AnalyticsCron, func() {
		if _, err := reporter.Refresh(); err != nil {
			slog.Warn("Analytics refresh failed", "error", err)
		}
	}); err != nil {
		return err
	}

	go func() {
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Engine consumer stopped", "error", err)
		}
	}()

	server := api.NewServer(eng, st, st, reporter, api.WithAddr(cfg.APIAddr))
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedContacts copies configured contacts into an empty contact store.
func seedContacts(st store.ContactStore, cfg config.Config) error {
	if len(cfg.Contacts) == 0 {
		return nil
	}
	existing, err := st.ListContacts()
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}
	if len(existing) > 0 {
		slog.Debug("Contact store already populated, skipping config contacts", "count", len(existing))
		return nil
	}
	for _, c := range cfg.Contacts {
		if _, err := st.SaveContact(c); err != nil {
			return fmt.Errorf("failed to seed contact %q: %w", c.Name, err)
		}
	}
	slog.Info("Seeded contacts from config", "count", len(cfg.Contacts))
	return nil
}

// buildMessaging returns the sender and optional caller for channel. A nil
// sender means no messaging capability.
func buildMessaging(ctx context.Context, cfg Config, qrOutput string) (messaging.Sender, messaging.Caller, func(), error) {
	noop := func() {}
	switch cfg.Channel {
	case ChannelSMS:
		svc, err := messaging.NewTwilioService()
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to create Twilio service: %w", err)
		}
		if cfg.VoiceCalls {
			return svc, svc, noop, nil
		}
		return svc, nil, noop, nil
	case ChannelTwilioWhatsApp:
		svc, err := messaging.NewTwilioService(messaging.WithWhatsApp())
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to create Twilio WhatsApp service: %w", err)
		}
		if cfg.VoiceCalls {
			// Voice calls still go over the regular phone network.
			voice, err := messaging.NewTwilioService()
			if err != nil {
				return nil, nil, noop, fmt.Errorf("failed to create Twilio voice service: %w", err)
			}
			return svc, voice, noop, nil
		}
		return svc, nil, noop, nil
	case ChannelWhatsApp:
		svc, err := messaging.NewWhatsAppService(ctx, messaging.WhatsAppOpts{
			DBDriver: "sqlite3",
			DBDSN:    cfg.WhatsAppDSN,
			QRPath:   qrOutput,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to create WhatsApp service: %w", err)
		}
		if cfg.VoiceCalls {
			slog.Warn("Voice calls are not supported over WhatsApp")
		}
		return svc, nil, svc.Stop, nil
	case ChannelLog:
		svc := messaging.NewLogService()
		return svc, svc, noop, nil
	case ChannelNone:
		slog.Warn("No messaging channel configured; alerts will not be delivered")
		return nil, nil, noop, nil
	default:
		return nil, nil, noop, fmt.Errorf("unknown messaging channel %q", cfg.Channel)
	}
}

// buildLocator prefers a fixed device position, then GeoIP. With neither, every
// snapshot lacks a location.
func buildLocator(cfg Config) (geo.Locator, func()) {
	if cfg.HasDevicePos {
		slog.Info("Using static device position", "latitude", cfg.DeviceLat, "longitude", cfg.DeviceLon)
		return geo.NewStaticLocator(cfg.DeviceLat, cfg.DeviceLon, 0, ""), func() {}
	}
	if cfg.GeoIPPath != "" {
		loc, err := geo.NewGeoIPLocator(cfg.GeoIPPath, cfg.PublicIP)
		if err == nil {
			return loc, func() { loc.Close() }
		}
		slog.Warn("GeoIP locator unavailable", "error", err)
	}
	slog.Warn("No location source configured; alerts will omit location")
	return nil, func() {}
}

func logWarnings(source string, warnings []error) {
	for _, w := range warnings {
		slog.Warn("Configuration warning", "source", source, "warning", w)
	}
}
