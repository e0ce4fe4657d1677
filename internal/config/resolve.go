package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/IbragimovN/coachlast/internal/storage"
	"github.com/IbragimovN/coachlast/internal/task/scheduler"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// Provider names accepted in guidance.provider.
const (
	ProviderAuto   = ""
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

func (c *Config) applyDefaults() {
	c.BotName = strings.TrimSpace(c.BotName)
	if c.BotName == "" {
		c.BotName = DefaultBotName
	}
	if strings.TrimSpace(c.Coach.Timezone) == "" {
		c.Coach.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = storage.DefaultPath(c.Storage.Driver)
	}
	if strings.TrimSpace(c.Status.Addr) == "" {
		c.Status.Addr = DefaultStatusAddr
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	c.Guidance.Provider = strings.ToLower(strings.TrimSpace(c.Guidance.Provider))
}

// validate checks everything except the token so tools that never talk to
// Telegram can still load the file.
func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Coach.Timezone); err != nil {
		return fmt.Errorf("coach.timezone: invalid timezone %q: %w", c.Coach.Timezone, err)
	}
	for field, v := range map[string]string{
		"coach.morning":             c.Coach.Morning,
		"coach.evening":             c.Coach.Evening,
		"coach.midday_pick":         c.Coach.MiddayPick,
		"coach.midday_window_start": c.Coach.MiddayWindowStart,
		"coach.midday_window_end":   c.Coach.MiddayWindowEnd,
	} {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, _, err := scheduler.ParseHHMM(v); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if !logx.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	if c.Logging.Telegram.MinLevel != "" && !logx.ValidLevel(c.Logging.Telegram.MinLevel) {
		return fmt.Errorf("logging.telegram.min_level: unknown level %q", c.Logging.Telegram.MinLevel)
	}
	switch c.Guidance.Provider {
	case ProviderAuto, ProviderOpenAI, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("guidance.provider: unknown provider %q", c.Guidance.Provider)
	}
	if _, err := c.StoreConfig(); err != nil {
		return err
	}
	for field, v := range map[string]string{
		"guidance.timeout":            c.Guidance.Timeout,
		"telegram.poll_timeout":       c.Telegram.PollTimeout,
		"task_engine.default_timeout": c.TaskEngine.DefaultTimeout,
		"task_engine.submit_wait":     c.TaskEngine.SubmitWait,
	} {
		if _, err := Duration(field, v, 0); err != nil {
			return err
		}
	}
	if c.TaskEngine.Workers < 0 || c.TaskEngine.QueueSize < 0 || c.TaskEngine.HistorySize < 0 {
		return fmt.Errorf("task_engine: sizes must be >= 0")
	}
	return nil
}

// Duration reads a duration setting such as "30s" or "2m". Blank and zero
// values yield def.
func Duration(field, raw string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration such as 30s or 5m", field, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: %q is negative", field, raw)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// RequireToken returns ErrMissingToken when no bot token is configured.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// ResolvedProvider picks the generation backend from the configured keys.
// It returns ProviderNone when nothing usable is configured.
func (c *Config) ResolvedProvider() string {
	hasOpenAI := strings.TrimSpace(c.Guidance.OpenAIKey) != ""
	hasGemini := strings.TrimSpace(c.Guidance.GeminiKey) != ""
	switch c.Guidance.Provider {
	case ProviderOpenAI:
		if hasOpenAI {
			return ProviderOpenAI
		}
	case ProviderGemini:
		if hasGemini {
			return ProviderGemini
		}
	case ProviderAuto:
		if hasOpenAI {
			return ProviderOpenAI
		}
		if hasGemini {
			return ProviderGemini
		}
	}
	return ProviderNone
}

// Location returns the coach timezone. validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Coach.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
