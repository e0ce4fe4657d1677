package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/IbragimovN/coachlast/internal/task/engine"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Tashkent"; empty means Local

	// SubmitWait bounds how long one firing waits for room in the engine
	// queue. Many users share the same trigger minute, so firings queue up
	// behind each other instead of being dropped. Default 30m.
	SubmitWait time.Duration
}

// DefaultSubmitWait is used when Config.SubmitWait is 0.
const DefaultSubmitWait = 30 * time.Minute

// Re-export execution types from engine.
type TaskOptions = engine.TaskOptions

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

// Submitter is the part of the task engine the scheduler needs. Submit
// blocks until the task is queued, ctx ends, or the engine stops.
type Submitter interface {
	Submit(ctx context.Context, t engine.Task) error
}

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	opt     TaskOptions
	state   *engine.RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	loc *time.Location

	engine     Submitter
	submitWait time.Duration

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// runCtx lives from Start to Stop; pending submits end with it.
	runCtx    context.Context
	runCancel context.CancelFunc

	missed atomic.Uint64

	// Enqueue error throttling: key is schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running  bool
	Timezone string
	// Missed counts firings that never reached the engine.
	Missed    uint64
	Schedules []ScheduleInfo
}
