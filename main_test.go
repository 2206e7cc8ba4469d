package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raine/carhunt/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogging_Levels(t *testing.T) {
	closeLog := setupLogging(&config.Config{LogLevel: "DEBUG"})
	defer closeLog()

	logPath := filepath.Join(t.TempDir(), "carhunt.log")
	closeFile := setupLogging(&config.Config{LogLevel: "bogus", LogFile: logPath})
	closeFile()
	setupLogging(&config.Config{})

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "logging to file")
}

func TestExtractCommand_WithoutAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	img := filepath.Join(t.TempDir(), "car.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\nrest"), 0600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"extract", img})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	require.EqualError(t, err, "extraction failed")

	var res map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "Gemini API key is not configured", res["error"])
	assert.NotContains(t, res, "data")
}

func TestReadImageArg(t *testing.T) {
	data, err := readImageArg(strings.NewReader("stdin bytes"), "-")
	require.NoError(t, err)
	assert.Equal(t, []byte("stdin bytes"), data)

	_, err = readImageArg(nil, filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorContains(t, err, "failed to read image")
}

func TestSetupAnswersEnv(t *testing.T) {
	a := setupAnswers{
		SupabaseURL:     " https://abc.supabase.co/ ",
		ServiceKey:      "service",
		JWTSecret:       "secret ",
		AdminTelegramID: "42",
	}
	env := a.env()
	assert.Equal(t, "https://abc.supabase.co", env["SUPABASE_URL"])
	assert.Equal(t, "secret", env["AUTH_JWT_SECRET"])
	assert.Equal(t, "42", env["ADMIN_TELEGRAM_ID"])
	assert.Equal(t, "", env["GEMINI_API_KEY"])
}

func TestSetupValidators(t *testing.T) {
	assert.NoError(t, validateSupabaseURL("https://abc.supabase.co"))
	assert.Error(t, validateSupabaseURL(""))
	assert.Error(t, validateSupabaseURL("abc.supabase.co"))

	assert.NoError(t, validateTelegramID(""))
	assert.NoError(t, validateTelegramID("12345"))
	assert.Error(t, validateTelegramID("@me"))
}

func TestValidateTelegramToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/botgood:token/getMe" {
			w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	orig := telegramAPIURL
	telegramAPIURL = srv.URL
	t.Cleanup(func() { telegramAPIURL = orig })

	assert.NoError(t, validateTelegramToken("good:token"))
	assert.EqualError(t, validateTelegramToken("bad:token"), "Unauthorized")
}

func TestValidateGeminiKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("key") {
		case "good":
			w.Write([]byte(`{"models":[]}`))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
		}
	}))
	defer srv.Close()

	orig := geminiAPIURL
	geminiAPIURL = srv.URL
	t.Cleanup(func() { geminiAPIURL = orig })

	assert.NoError(t, validateGeminiKey("good"))
	assert.EqualError(t, validateGeminiKey("bad"), "API key not valid")
	assert.EqualError(t, validateGeminiKey("broken"), "unexpected response (HTTP 500)")
}
