package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AppName     = "carhunt"
	EnvFileName = "config.env"
)

// Config holds all runtime settings. Values come from the environment, after
// any env files found by LoadEnvFile have been applied.
type Config struct {
	HTTPAddr           string
	DBPath             string
	LogLevel           string
	LogJSON            bool
	LogFile            string
	CORSAllowedOrigins []string

	GeminiAPIKey string
	GeminiModel  string

	SupabaseURL        string
	SupabaseServiceKey string
	StorageBucket      string

	AuthJWTSecret string
	AdminEmails   []string

	TelegramBotToken string
	AdminTelegramID  int64

	UploadPolicy  string
	MaxImages     int
	MaxImageBytes int64
}

// requiredForServe lists the settings serve refuses to start without.
// Without GEMINI_API_KEY extraction reports a configuration error per call.
var requiredForServe = []string{"AUTH_JWT_SECRET", "SUPABASE_URL", "SUPABASE_SERVICE_KEY"}

// FileKeys is the order in which WriteEnvFile writes known settings.
var FileKeys = []string{
	"SUPABASE_URL",
	"SUPABASE_SERVICE_KEY",
	"STORAGE_BUCKET",
	"AUTH_JWT_SECRET",
	"ADMIN_EMAILS",
	"GEMINI_API_KEY",
	"TELEGRAM_BOT_TOKEN",
	"ADMIN_TELEGRAM_ID",
}

// Dir returns the application's config directory, creating it if needed.
func Dir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// FilePath returns the full path to the config file.
func FilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, EnvFileName), nil
}

// WriteEnvFile writes values to path with 0600 permissions. Keys listed in
// FileKeys come first in that order; empty values are skipped.
func WriteEnvFile(path string, values map[string]string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	for _, key := range FileKeys {
		val, ok := values[key]
		if !ok || val == "" {
			continue
		}
		if _, err := fmt.Fprintf(f, "%s=%q\n", key, val); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}
	return nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory and from ./.env. Errors are ignored since the files may
// not exist. Variables already set in the environment win.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load(".env")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_PATH", "carhunt.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("STORAGE_BUCKET", "car-images")
	v.SetDefault("UPLOAD_POLICY", "partial")
	v.SetDefault("MAX_IMAGES", 10)
	v.SetDefault("MAX_IMAGE_BYTES", 5*1024*1024)
	return v
}

// Load reads the configuration from the environment.
func Load() *Config {
	v := newViper()
	return &Config{
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		DBPath:             v.GetString("DB_PATH"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogJSON:            v.GetBool("LOG_JSON"),
		LogFile:            v.GetString("LOG_FILE"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		GeminiAPIKey:       v.GetString("GEMINI_API_KEY"),
		GeminiModel:        v.GetString("GEMINI_MODEL"),
		SupabaseURL:        strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_KEY"),
		StorageBucket:      v.GetString("STORAGE_BUCKET"),
		AuthJWTSecret:      v.GetString("AUTH_JWT_SECRET"),
		AdminEmails:        splitList(strings.ToLower(v.GetString("ADMIN_EMAILS"))),
		TelegramBotToken:   v.GetString("TELEGRAM_BOT_TOKEN"),
		AdminTelegramID:    v.GetInt64("ADMIN_TELEGRAM_ID"),
		UploadPolicy:       v.GetString("UPLOAD_POLICY"),
		MaxImages:          v.GetInt("MAX_IMAGES"),
		MaxImageBytes:      v.GetInt64("MAX_IMAGE_BYTES"),
	}
}

// CheckRequired returns the names of any missing settings needed by serve.
func CheckRequired() []string {
	var missing []string
	for _, key := range requiredForServe {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, e := range c.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

// NotificationsEnabled reports whether Telegram admin notifications are configured.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != "" && c.AdminTelegramID != 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
