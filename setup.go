package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/raine/carhunt/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively write the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isInteractiveTerminal() {
			return errors.New("setup needs an interactive terminal")
		}
		if !runSetupWizard() {
			return errors.New("setup was not completed")
		}
		return nil
	},
}

// isInteractiveTerminal returns true if both stdin and stdout are TTYs.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// setupAnswers holds the wizard's inputs keyed by environment variable.
type setupAnswers struct {
	SupabaseURL      string
	ServiceKey       string
	JWTSecret        string
	AdminEmails      string
	GeminiKey        string
	TelegramBotToken string
	AdminTelegramID  string
}

// prefill seeds the form with whatever is already in the environment.
func prefill() setupAnswers {
	return setupAnswers{
		SupabaseURL:      os.Getenv("SUPABASE_URL"),
		ServiceKey:       os.Getenv("SUPABASE_SERVICE_KEY"),
		JWTSecret:        os.Getenv("AUTH_JWT_SECRET"),
		AdminEmails:      os.Getenv("ADMIN_EMAILS"),
		GeminiKey:        os.Getenv("GEMINI_API_KEY"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AdminTelegramID:  os.Getenv("ADMIN_TELEGRAM_ID"),
	}
}

func (a setupAnswers) env() map[string]string {
	return map[string]string{
		"SUPABASE_URL":         strings.TrimRight(strings.TrimSpace(a.SupabaseURL), "/"),
		"SUPABASE_SERVICE_KEY": strings.TrimSpace(a.ServiceKey),
		"AUTH_JWT_SECRET":      strings.TrimSpace(a.JWTSecret),
		"ADMIN_EMAILS":         strings.TrimSpace(a.AdminEmails),
		"GEMINI_API_KEY":       strings.TrimSpace(a.GeminiKey),
		"TELEGRAM_BOT_TOKEN":   strings.TrimSpace(a.TelegramBotToken),
		"ADMIN_TELEGRAM_ID":    strings.TrimSpace(a.AdminTelegramID),
	}
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validateSupabaseURL(s string) error {
	if err := required("project URL")(s); err != nil {
		return err
	}
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func validateTelegramID(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
		return errors.New("must be a number")
	}
	return nil
}

// runSetupWizard collects configuration and writes the config file. Returns
// true if the caller can continue starting up.
func runSetupWizard() bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("🚗 Carhunt - Setup"))
	fmt.Println()

	a := prefill()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Supabase project URL").
				Description("Project Settings → API → Project URL").
				Value(&a.SupabaseURL).
				Validate(validateSupabaseURL),
			huh.NewInput().
				Title("Supabase service role key").
				Description("Used to upload and remove listing images").
				EchoMode(huh.EchoModePassword).
				Value(&a.ServiceKey).
				Validate(required("service key")),
			huh.NewInput().
				Title("JWT secret").
				Description("Secret the auth provider signs session tokens with").
				EchoMode(huh.EchoModePassword).
				Value(&a.JWTSecret).
				Validate(required("JWT secret")),
			huh.NewInput().
				Title("Admin emails").
				Description("Comma separated, optional").
				Value(&a.AdminEmails),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gemini API Key").
				Description("Optional. Get yours at https://aistudio.google.com/apikey").
				EchoMode(huh.EchoModePassword).
				Value(&a.GeminiKey).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					return validateGeminiKey(strings.TrimSpace(s))
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram Bot Token").
				Description("Optional, for admin notifications. Message @BotFather → /newbot").
				Value(&a.TelegramBotToken).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					return validateTelegramToken(strings.TrimSpace(s))
				}),
			huh.NewInput().
				Title("Your Telegram User ID").
				Description("Message @userinfobot to get your ID").
				Value(&a.AdminTelegramID).
				Validate(validateTelegramID),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}

	values := a.env()

	configPath, err := config.FilePath()
	if err == nil {
		err = config.WriteEnvFile(configPath, values)
	}
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		return false
	}

	for k, v := range values {
		if v != "" {
			os.Setenv(k, v)
		}
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()

	return true
}

var (
	telegramAPIURL = "https://api.telegram.org"
	geminiAPIURL   = "https://generativelanguage.googleapis.com"
)

func validationClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
}

// validateTelegramToken checks a bot token with the getMe API.
func validateTelegramToken(token string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description,omitempty"`
	}

	_, err := validationClient(telegramAPIURL).R().
		SetContext(context.Background()).
		SetPathParam("token", token).
		SetResult(&result).
		SetError(&result).
		Get("/bot{token}/getMe")
	if err != nil {
		return errors.New("connection failed - check your internet")
	}

	if !result.OK {
		if result.Description != "" {
			return errors.New(result.Description)
		}
		return errors.New("token rejected by Telegram")
	}
	return nil
}

// validateGeminiKey checks an API key against the lightweight models list endpoint.
func validateGeminiKey(key string) error {
	var result struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	resp, err := validationClient(geminiAPIURL).R().
		SetContext(context.Background()).
		SetQueryParam("key", key).
		SetError(&result).
		Get("/v1beta/models")
	if err != nil {
		return errors.New("connection failed - check your internet")
	}

	switch resp.StatusCode() {
	case 200:
		return nil
	case 400, 401, 403:
		if result.Error.Message != "" {
			return errors.New(result.Error.Message)
		}
		return fmt.Errorf("API key rejected (HTTP %d)", resp.StatusCode())
	default:
		return fmt.Errorf("unexpected response (HTTP %d)", resp.StatusCode())
	}
}

// waitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func waitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}
