package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/PDIMentor/internal/api"
	"github.com/BTreeMap/PDIMentor/internal/flow"
	"github.com/BTreeMap/PDIMentor/internal/genai"
	"github.com/BTreeMap/PDIMentor/internal/lockfile"
	"github.com/BTreeMap/PDIMentor/internal/scheduler"
	"github.com/BTreeMap/PDIMentor/internal/store"
	"github.com/BTreeMap/PDIMentor/internal/twiliowhatsapp"
	"github.com/BTreeMap/PDIMentor/internal/util"
	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PDIMentor state data
	DefaultStateDir = "/var/lib/pdimentor"
	// DefaultAPIAddr is the default listen address of the web UI and API
	DefaultAPIAddr = ":8080"
)

func main() {
	// Console logging until flags tell us about a log file.
	initializeLogger("")

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	initializeLogger(flags.logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("PDIMentor failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PDIMentor exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseURL    string
	OpenAIKey      string
	APIAddr        string
	PublicURL      string
	LogFile        string
	SessionTTL     time.Duration
	PrintQR        bool
	GenAIDebug     bool
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
	TwilioValidate bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir       string
	dbDSN          string
	openaiKey      string
	apiAddr        string
	publicURL      string
	logFile        string
	sessionTTL     time.Duration
	printQR        bool
	genaiDebug     bool
	twilioSID      string
	twilioToken    string
	twilioFrom     string
	twilioValidate bool
}

// initializeLogger sets up structured logging with debug level, tee'd into a rotating file when
// logFile is set.
func initializeLogger(logFile string) {
	var out io.Writer = os.Stdout
	if logFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       os.Getenv("PDI_STATE_DIR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		PublicURL:      os.Getenv("PDI_PUBLIC_URL"),
		LogFile:        os.Getenv("PDI_LOG_FILE"),
		SessionTTL:     util.ParseDurationEnv("PDI_SESSION_TTL", api.DefaultSessionTTL),
		PrintQR:        util.ParseBoolEnv("PDI_PRINT_QR", false),
		GenAIDebug:     util.ParseBoolEnv("PDI_GENAI_DEBUG", false),
		TwilioSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:     os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioValidate: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PDI_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}

	slog.Debug("environment variables loaded",
		"PDI_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"PDI_PUBLIC_URL", config.PublicURL,
		"PDI_SESSION_TTL", config.SessionTTL,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("PDIMentor", flag.ContinueOnError)
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for PDIMentor data (overrides $PDI_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseURL, "session store DSN: empty for memory, a file path for SQLite, postgres:// for Postgres (overrides $DATABASE_URL)")
	fs.StringVar(&flags.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "web UI and API listen address (overrides $API_ADDR)")
	fs.StringVar(&flags.publicURL, "public-url", config.PublicURL, "externally visible base URL (overrides $PDI_PUBLIC_URL)")
	fs.StringVar(&flags.logFile, "log-file", config.LogFile, "rotating log file, in addition to stdout (overrides $PDI_LOG_FILE)")
	fs.DurationVar(&flags.sessionTTL, "session-ttl", config.SessionTTL, "idle time after which sessions are deleted (overrides $PDI_SESSION_TTL)")
	fs.BoolVar(&flags.printQR, "print-qr", config.PrintQR, "print a QR code of the UI URL at startup (overrides $PDI_PRINT_QR)")
	fs.BoolVar(&flags.genaiDebug, "genai-debug", config.GenAIDebug, "record model calls under <state-dir>/debug (overrides $PDI_GENAI_DEBUG)")
	fs.StringVar(&flags.twilioSID, "twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)")
	fs.StringVar(&flags.twilioToken, "twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)")
	fs.StringVar(&flags.twilioFrom, "twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)")
	fs.BoolVar(&flags.twilioValidate, "twilio-validate-signature", config.TwilioValidate, "reject webhook calls without a valid X-Twilio-Signature")

	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	slog.Debug("flags parsed",
		"stateDir", flags.stateDir,
		"dbDSN_set", flags.dbDSN != "",
		"openaiKeySet", flags.openaiKey != "",
		"apiAddr", flags.apiAddr,
		"publicURL", flags.publicURL,
		"sessionTTL", flags.sessionTTL,
		"printQR", flags.printQR,
		"genaiDebug", flags.genaiDebug)

	if flags.sessionTTL <= 0 {
		return flags, fmt.Errorf("session TTL must be positive, got %s", flags.sessionTTL)
	}
	return flags, nil
}

// run wires every module and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	st, release, err := openStore(flags)
	if err != nil {
		return err
	}
	defer release()

	client := genai.NewClient(buildGenAIOptions(flags)...)
	walker, err := flow.NewWalker(flow.DefaultDefinition(), client)
	if err != nil {
		return fmt.Errorf("invalid intake definition: %w", err)
	}
	summarizer := genai.NewCachedSummarizer(client, genai.NewSummaryCache())

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := scheduler.NewSweeper(st, summarizer, flags.sessionTTL).Register(sched, scheduler.DefaultSweepSchedule); err != nil {
		return fmt.Errorf("failed to schedule session sweeper: %w", err)
	}

	apiOpts, err := buildAPIOptions(flags)
	if err != nil {
		return err
	}
	server := api.NewServer(walker, st, summarizer, apiOpts...)

	url := uiURL(flags)
	slog.Info("PDIMentor UI available", "url", url)
	if flags.printQR {
		qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
	}

	return server.Run(ctx)
}

// openStore opens the session store. File-backed stores take the state directory lock first.
func openStore(flags Flags) (store.Store, func(), error) {
	release := func() {}
	if store.DetectDSNType(flags.dbDSN) == store.DriverSQLite {
		lock, err := lockfile.AcquireLock(flags.stateDir)
		if err != nil {
			return nil, release, err
		}
		release = func() { lock.Release() }
	}
	st, err := store.Open(flags.dbDSN)
	if err != nil {
		release()
		return nil, func() {}, fmt.Errorf("failed to open session store: %w", err)
	}
	return st, func() {
		if err := st.Close(); err != nil {
			slog.Warn("failed to close session store", "error", err)
		}
		release()
	}, nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	opts := []genai.Option{genai.WithAPIKey(flags.openaiKey)}
	if flags.genaiDebug {
		opts = append(opts, genai.WithDebugMode(flags.stateDir))
	}
	return opts
}

// buildAPIOptions constructs HTTP server options, enabling WhatsApp when Twilio is configured.
func buildAPIOptions(flags Flags) ([]api.Option, error) {
	opts := []api.Option{
		api.WithAddr(flags.apiAddr),
		api.WithSessionTTL(flags.sessionTTL),
	}
	if flags.publicURL != "" {
		opts = append(opts, api.WithPublicURL(flags.publicURL))
	}
	if flags.twilioSID == "" {
		slog.Debug("Twilio not configured; WhatsApp channel disabled")
		return opts, nil
	}
	client, err := twiliowhatsapp.NewClient(
		twiliowhatsapp.WithAccountSID(flags.twilioSID),
		twiliowhatsapp.WithAuthToken(flags.twilioToken),
		twiliowhatsapp.WithFromWhats(flags.twilioFrom),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Twilio client: %w", err)
	}
	opts = append(opts, api.WithWhatsApp(client))
	if flags.twilioValidate {
		opts = append(opts, api.WithSignatureValidator(client))
	}
	slog.Info("WhatsApp channel enabled", "webhook", uiURL(flags)+"/twilio/whatsapp")
	return opts, nil
}

// uiURL is the public URL when known, otherwise a local one derived from the listen address.
func uiURL(flags Flags) string {
	if flags.publicURL != "" {
		return strings.TrimRight(flags.publicURL, "/")
	}
	addr := flags.apiAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
