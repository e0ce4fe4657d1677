package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/IbragimovN/coachlast/internal/task/engine"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	// Overlap skips can happen during normal operation.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name), logx.Err(err))
		return
	}
	// Shutdown in progress.
	if errors.Is(err, context.Canceled) || errors.Is(err, engine.ErrStopping) || errors.Is(err, engine.ErrStopped) {
		s.log.Debug("schedule trigger abandoned", logx.String("schedule", name), logx.Err(err))
		return
	}
	s.missed.Add(1)

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Error("schedule failed to enqueue task", logx.String("schedule", name), logx.Uint64("missed", s.missed.Load()), logx.Err(err))
}
