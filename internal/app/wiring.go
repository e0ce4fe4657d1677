package app

import (
	"context"
	"time"

	"github.com/IbragimovN/coachlast/internal/config"
	"github.com/IbragimovN/coachlast/internal/guidance"
	"github.com/IbragimovN/coachlast/internal/status"
	"github.com/IbragimovN/coachlast/internal/task/engine"
	"github.com/IbragimovN/coachlast/internal/task/scheduler"
	telegram "github.com/IbragimovN/coachlast/internal/transport/telegram/adapter"
)

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	if cfg == nil {
		return engine.Config{Workers: 1, QueueSize: 256, HistorySize: 100}, nil
	}
	te := cfg.TaskEngine

	workers := te.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := te.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	historySize := te.HistorySize
	if historySize <= 0 {
		historySize = 100
	}
	defTimeout, err := config.Duration("task_engine.default_timeout", te.DefaultTimeout, 0)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		Workers:        workers,
		QueueSize:      queueSize,
		DefaultTimeout: defTimeout,
		HistorySize:    historySize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	wait, err := config.Duration("task_engine.submit_wait", cfg.TaskEngine.SubmitWait, scheduler.DefaultSubmitWait)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Timezone: cfg.Coach.Timezone, SubmitWait: wait}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.Duration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    pollTimeout,
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
		APIURL:         cfg.Telegram.APIURL,
	}, nil
}

// newBackend builds the generation backend for the resolved provider.
// A nil backend with a nil error means guidance runs on fallback text.
func newBackend(ctx context.Context, cfg *config.Config) (guidance.Backend, error) {
	g := cfg.Guidance
	switch cfg.ResolvedProvider() {
	case config.ProviderOpenAI:
		return guidance.NewOpenAI(guidance.OpenAIConfig{
			APIKey:  g.OpenAIKey,
			Model:   g.OpenAIModel,
			BaseURL: g.OpenAIBaseURL,
		})
	case config.ProviderGemini:
		return guidance.NewGemini(ctx, guidance.GeminiConfig{
			APIKey: g.GeminiKey,
			Model:  g.GeminiModel,
		})
	}
	return nil, nil
}

func mapGuidanceOptions(cfg *config.Config) (guidance.Options, error) {
	timeout, err := config.Duration("guidance.timeout", cfg.Guidance.Timeout, 60*time.Second)
	if err != nil {
		return guidance.Options{}, err
	}
	return guidance.Options{BotName: cfg.BotName, Timeout: timeout}, nil
}

func mapStatusConfig(cfg *config.Config) status.Config {
	return status.Config{Addr: cfg.Status.Addr}
}

func taskStats(eng *engine.Service, sched *scheduler.Service) status.TaskStats {
	es := eng.Snapshot()
	st := status.TaskStats{
		Waiting:   es.QueueLen,
		Capacity:  es.QueueCap,
		Completed: es.Completed,
		Failed:    es.Failed,
		Missed:    sched.Snapshot().Missed,
	}
	for i := len(es.History) - 1; i >= 0; i-- {
		if h := es.History[i]; h.Error != "" {
			st.LastFailure = h.Name + ": " + h.Error
			break
		}
	}
	return st
}
