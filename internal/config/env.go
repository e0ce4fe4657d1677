package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists every variable that can override the file. Empty
// values leave the file setting untouched.
type envOverrides struct {
	BotToken         string `envconfig:"BOT_TOKEN"`
	BotName          string `envconfig:"BOT_NAME"`
	TelegramAPIURL   string `envconfig:"TELEGRAM_API_URL"`
	OpenAIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel      string `envconfig:"OPENAI_MODEL"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL"`
	GeminiKey        string `envconfig:"GEMINI_API_KEY"`
	GeminiModel      string `envconfig:"GEMINI_MODEL"`
	GuidanceProvider string `envconfig:"GUIDANCE_PROVIDER"`
	Timezone         string `envconfig:"COACH_TIMEZONE"`
	StateDriver      string `envconfig:"STATE_DRIVER"`
	StatePath        string `envconfig:"STATE_PATH"`
	StatusAddr       string `envconfig:"STATUS_ADDR"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
	LogChatID        int64  `envconfig:"LOG_CHAT_ID"`
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, env.BotToken)
	set(&cfg.BotName, env.BotName)
	set(&cfg.Telegram.APIURL, env.TelegramAPIURL)
	set(&cfg.Guidance.OpenAIKey, env.OpenAIKey)
	set(&cfg.Guidance.OpenAIModel, env.OpenAIModel)
	set(&cfg.Guidance.OpenAIBaseURL, env.OpenAIBaseURL)
	set(&cfg.Guidance.GeminiKey, env.GeminiKey)
	set(&cfg.Guidance.GeminiModel, env.GeminiModel)
	set(&cfg.Guidance.Provider, env.GuidanceProvider)
	set(&cfg.Coach.Timezone, env.Timezone)
	set(&cfg.Storage.Driver, env.StateDriver)
	set(&cfg.Storage.Path, env.StatePath)
	set(&cfg.Status.Addr, env.StatusAddr)
	set(&cfg.Logging.Level, env.LogLevel)
	if env.LogChatID != 0 {
		cfg.Logging.Telegram.ChatID = env.LogChatID
		cfg.Logging.Telegram.Enabled = true
	}
	return nil
}
