package config

import (
	"reflect"
	"strings"

	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// Change describes what a reload touched.
type Change struct {
	// Sections lists changed top-level keys in declaration order.
	Sections []string
	// Attrs are safe to log; secrets appear only as *_set booleans.
	Attrs []logx.Field
	// RestartRequired is true when anything other than logging changed.
	RestartRequired bool
}

// SummarizeConfigChange compares two configs. Only the logging block is
// applied live; every other section is read once at startup.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, live bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Attrs = append(ch.Attrs, attrs...)
		if !live {
			ch.RestartRequired = true
		}
	}

	if oldCfg.BotName != newCfg.BotName {
		mark("bot_name", false, logx.String("bot_name", newCfg.BotName))
	}
	if oldCfg.Telegram != newCfg.Telegram {
		mark("telegram", false,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if oldCfg.Guidance != newCfg.Guidance {
		mark("guidance", false,
			logx.String("guidance.provider", newCfg.ResolvedProvider()),
			logx.Bool("guidance.openai_key_set", newCfg.Guidance.OpenAIKey != ""),
			logx.Bool("guidance.gemini_key_set", newCfg.Guidance.GeminiKey != ""),
		)
	}
	if oldCfg.Coach != newCfg.Coach {
		mark("coach", false, logx.String("coach.timezone", newCfg.Coach.Timezone))
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", false,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	if !reflect.DeepEqual(oldCfg.Status, newCfg.Status) {
		mark("status", false, logx.String("status.addr", newCfg.Status.Addr))
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		mark("task_engine", false, logx.Int("task_engine.workers", newCfg.TaskEngine.Workers))
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging", true,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	return ch
}
