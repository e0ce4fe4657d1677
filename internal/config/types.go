package config

import (
	"errors"
	"strings"

	"github.com/IbragimovN/coachlast/internal/storage"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// ErrMissingToken means no Telegram bot token was configured.
var ErrMissingToken = errors.New("config: BOT_TOKEN is not set")

const (
	DefaultBotName    = "CoachAI"
	DefaultTimezone   = "Asia/Tashkent"
	DefaultStatusAddr = ":8080"
	DefaultPath       = "./coachbot.yaml"
)

type Config struct {
	BotName    string           `json:"bot_name,omitempty"`
	Telegram   TelegramConfig   `json:"telegram"`
	Guidance   GuidanceConfig   `json:"guidance"`
	Coach      CoachConfig      `json:"coach"`
	Storage    StorageConfig    `json:"storage"`
	Status     StatusConfig     `json:"status"`
	Logging    LoggingConfig    `json:"logging"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "1m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendRatePerSec throttles outbound messages across all chats.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
	// APIURL points at a self-hosted Bot API server. Empty means api.telegram.org.
	APIURL string `json:"api_url,omitempty"`
}

// GuidanceConfig selects the text-generation backend.
//
// Provider is "openai", "gemini", "none" or empty. Empty picks whichever key
// is present, OpenAI first.
type GuidanceConfig struct {
	Provider      string `json:"provider,omitempty"`
	OpenAIKey     string `json:"openai_api_key,omitempty"`
	OpenAIModel   string `json:"openai_model,omitempty"`
	OpenAIBaseURL string `json:"openai_base_url,omitempty"`
	GeminiKey     string `json:"gemini_api_key,omitempty"`
	GeminiModel   string `json:"gemini_model,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	SystemPrompt  string `json:"system_prompt,omitempty"`
}

// CoachConfig holds the proactive schedule. Times are HH:MM in Timezone.
type CoachConfig struct {
	Timezone          string `json:"timezone,omitempty"`
	Morning           string `json:"morning,omitempty"`
	Evening           string `json:"evening,omitempty"`
	MiddayPick        string `json:"midday_pick,omitempty"`
	MiddayWindowStart string `json:"midday_window_start,omitempty"`
	MiddayWindowEnd   string `json:"midday_window_end,omitempty"`
}

// StorageConfig controls the record store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./users.json" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type StatusConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// TaskEngineConfig controls the executor behind scheduled and interactive work.
//
// Defaults (when fields are omitted/zero):
//   - workers: 1 (strict FIFO, one job at a time)
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - history_size: 100
//   - submit_wait: "30m"
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	// SubmitWait bounds how long a scheduled firing waits for queue room.
	SubmitWait string `json:"submit_wait,omitempty"`
}

// StatusEnabled reports whether the status page should be served.
func (c *Config) StatusEnabled() bool {
	return c.Status.Enabled == nil || *c.Status.Enabled
}

// LogConfig converts the logging block for logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Logging.Telegram.Enabled,
			ChatID:     c.Logging.Telegram.ChatID,
			MinLevel:   c.Logging.Telegram.MinLevel,
			RatePerSec: c.Logging.Telegram.RatePerSec,
		},
	}
}

// StoreConfig converts the storage block for storage.Open.
func (c *Config) StoreConfig() (storage.Config, error) {
	bt, err := Duration("storage.busy_timeout", c.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(c.Storage.Driver),
		Path:        strings.TrimSpace(c.Storage.Path),
		BusyTimeout: bt,
	}, nil
}
