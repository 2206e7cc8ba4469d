package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/carhunt/internal/api"
	"github.com/raine/carhunt/internal/config"
	"github.com/raine/carhunt/internal/inventory"
	"github.com/raine/carhunt/internal/llm"
	"github.com/raine/carhunt/internal/notify"
	"github.com/raine/carhunt/internal/objectstore"
	"github.com/raine/carhunt/internal/storage"
	"github.com/raine/carhunt/internal/testdrive"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           config.AppName,
	Short:         "Used car marketplace backend with AI listing extraction",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnvFile()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		defer setupLogging(cfg)()

		store, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer store.Close()
		log.Info().Str("dbPath", cfg.DBPath).Msg("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, extractCmd, setupCmd)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		waitOnWindows()
		os.Exit(1)
	}
}

// setupLogging configures the global logger and returns a func that closes
// the log file, if any.
func setupLogging(cfg *config.Config) func() {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return func() {}
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.LogFile == "" {
		log.Logger = log.Output(console)
		return func() {}
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Logger = log.Output(console)
		log.Warn().Err(err).Str("logFile", cfg.LogFile).Msg("failed to open log file")
		return func() {}
	}
	fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(console, fileWriter))
	log.Info().Str("logFile", cfg.LogFile).Msg("logging to file")
	return func() { logFile.Close() }
}

func runServe(cmd *cobra.Command, args []string) error {
	if missing := config.CheckRequired(); len(missing) > 0 {
		if !isInteractiveTerminal() {
			return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
		}
		if !runSetupWizard() {
			return errors.New("setup was not completed")
		}
	}

	cfg := config.Load()
	defer setupLogging(cfg)()

	policy, err := inventory.ParseUploadPolicy(cfg.UploadPolicy)
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("store initialized")

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	extractor, err := newExtractor(ctx, cfg)
	if err != nil {
		return err
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}

	objects := objectstore.NewClient(objectstore.ClientOpts{
		BaseURL:    cfg.SupabaseURL,
		ServiceKey: cfg.SupabaseServiceKey,
		Bucket:     cfg.StorageBucket,
	})

	server := api.NewServer(cfg, api.Deps{
		Users:     store,
		Extractor: extractor,
		Inventory: inventory.NewService(store, objects, notifier, inventory.Options{
			Policy:        policy,
			MaxImages:     cfg.MaxImages,
			MaxImageBytes: cfg.MaxImageBytes,
		}),
		TestDrives: testdrive.NewService(store, notifier),
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(ctx)
	})

	g.Go(func() error {
		notifier.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// newExtractor builds the car extractor. Without GEMINI_API_KEY the server
// still starts and extraction requests report a configuration error.
func newExtractor(ctx context.Context, cfg *config.Config) (*llm.Extractor, error) {
	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set, extraction is disabled")
		return llm.NewExtractor("", nil), nil
	}

	gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}
	log.Info().Str("model", cfg.GeminiModel).Msg("gemini client initialized")
	return llm.NewExtractor(cfg.GeminiAPIKey, gemini), nil
}

// newNotifier returns a disabled service when Telegram is not configured.
func newNotifier(cfg *config.Config) (*notify.Service, error) {
	if !cfg.NotificationsEnabled() {
		log.Info().Msg("telegram notifications disabled")
		return notify.NewService(nil, 0), nil
	}

	tg, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")
	return notify.NewService(tg, cfg.AdminTelegramID), nil
}
