// Package proactive owns the per-user set of recurring notification jobs.
//
// Every registered user has exactly four schedules, named "<kind>:<userID>":
// a morning greeting, an evening check-in, a daily midday picker, and the
// midday nudge the picker retargets to a random slot each day. Installing a
// user is idempotent: all four names are removed and added again.
package proactive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IbragimovN/coachlast/internal/content"
	"github.com/IbragimovN/coachlast/internal/eventbus"
	"github.com/IbragimovN/coachlast/internal/registry"
	"github.com/IbragimovN/coachlast/internal/storage"
	"github.com/IbragimovN/coachlast/internal/task/scheduler"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// Sender delivers a text message to a user's chat.
type Sender interface {
	SendText(ctx context.Context, userID, text string) error
}

type Kind string

const (
	KindMorning      Kind = "morning"
	KindEvening      Kind = "evening"
	KindMiddayPicker Kind = "midday-picker"
	KindMiddayFire   Kind = "midday-fire"
)

// Kinds lists every job kind in installation order.
var Kinds = []Kind{KindMorning, KindEvening, KindMiddayPicker, KindMiddayFire}

// JobName is the scheduler identity of a (kind, user) pair.
func JobName(kind Kind, userID string) string { return string(kind) + ":" + userID }

type Options struct {
	Morning    string // HH:MM, default 09:00
	Evening    string // HH:MM, default 21:00
	MiddayPick string // HH:MM, default 11:55

	// Midday window, both ends inclusive. Defaults 12:00 and 19:59.
	MiddayWindowStart string
	MiddayWindowEnd   string

	Rand content.Rand
	Log  logx.Logger
	Bus  eventbus.Bus
}

// Scheduler is the subset of *scheduler.Service the coordinator drives.
type Scheduler interface {
	Start(ctx context.Context)
	AddDailyOpt(name, atHHMM string, timeout time.Duration, opt scheduler.TaskOptions, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
	Has(name string) bool
}

type Coordinator struct {
	sched Scheduler
	reg   *registry.Registry
	send  Sender
	rand  content.Rand
	log   logx.Logger
	bus   eventbus.Bus

	morning, evening, pick Slot
	windowStart, windowEnd int // minutes of day

	startOnce sync.Once

	mu    sync.Mutex
	slots map[string]Slot
}

// New validates the configured times and returns a coordinator. The shared
// scheduler is started lazily on the first install.
func New(sched Scheduler, reg *registry.Registry, send Sender, opts Options) (*Coordinator, error) {
	if sched == nil || reg == nil || send == nil {
		return nil, errors.New("proactive: scheduler, registry and sender are required")
	}
	c := &Coordinator{
		sched: sched,
		reg:   reg,
		send:  send,
		rand:  opts.Rand,
		log:   opts.Log,
		bus:   opts.Bus,
		slots: map[string]Slot{},
	}
	if c.rand == nil {
		c.rand = content.NewRand()
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.bus == nil {
		c.bus = eventbus.Nop()
	}

	var err error
	if c.morning, err = parseSlot("morning", opts.Morning, "09:00"); err != nil {
		return nil, err
	}
	if c.evening, err = parseSlot("evening", opts.Evening, "21:00"); err != nil {
		return nil, err
	}
	if c.pick, err = parseSlot("midday_pick", opts.MiddayPick, "11:55"); err != nil {
		return nil, err
	}
	ws, err := parseSlot("midday_window_start", opts.MiddayWindowStart, "12:00")
	if err != nil {
		return nil, err
	}
	we, err := parseSlot("midday_window_end", opts.MiddayWindowEnd, "19:59")
	if err != nil {
		return nil, err
	}
	if we.minutes() < ws.minutes() {
		return nil, fmt.Errorf("proactive: midday window end %s is before start %s", we, ws)
	}
	c.windowStart, c.windowEnd = ws.minutes(), we.minutes()
	return c, nil
}

// InstallForUser (re)creates all four jobs for userID. When it returns nil,
// exactly one schedule of each kind exists for the user.
func (c *Coordinator) InstallForUser(ctx context.Context, userID string) error {
	c.startOnce.Do(func() { c.sched.Start(ctx) })

	for _, k := range Kinds {
		// Not found is the normal case for a new user.
		_ = c.sched.Remove(JobName(k, userID))
	}

	add := func(kind Kind, at Slot, job func(ctx context.Context) error) error {
		if _, err := c.sched.AddDailyOpt(JobName(kind, userID), at.String(), 0, jobOptions, job); err != nil {
			return fmt.Errorf("install %s for %s: %w", kind, userID, err)
		}
		return nil
	}
	if err := add(KindMorning, c.morning, c.morningJob(userID)); err != nil {
		return err
	}
	if err := add(KindEvening, c.evening, c.eveningJob(userID)); err != nil {
		return err
	}
	if err := add(KindMiddayPicker, c.pick, c.pickerJob(userID)); err != nil {
		return err
	}
	slot, err := c.retargetMidday(userID)
	if err != nil {
		return err
	}

	c.log.Info("jobs installed", logx.String("user", userID), logx.String("midday", slot.String()))
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeJobsInstalled, Data: InstallEvent{UserID: userID, Midday: slot}})
	return nil
}

// InstallAll installs jobs for every known user and returns how many
// succeeded. Failures are joined; one bad user does not stop the rest.
func (c *Coordinator) InstallAll(ctx context.Context) (int, error) {
	var errs []error
	n := 0
	for _, id := range c.reg.Users() {
		if err := c.InstallForUser(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Jobs lists the kinds currently scheduled for userID.
func (c *Coordinator) Jobs(userID string) []Kind {
	out := make([]Kind, 0, len(Kinds))
	for _, k := range Kinds {
		if c.sched.Has(JobName(k, userID)) {
			out = append(out, k)
		}
	}
	return out
}

// MiddaySlot returns the slot the midday nudge is currently set to.
func (c *Coordinator) MiddaySlot(userID string) (Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[userID]
	return s, ok
}

// InstallEvent is the payload of eventbus.TypeJobsInstalled.
type InstallEvent struct {
	UserID string `json:"user_id"`
	Midday Slot   `json:"midday"`
}

// Scheduled jobs never retry; a skipped or failed notification waits for the next trigger.
var jobOptions = scheduler.TaskOptions{Overlap: scheduler.OverlapSkipIfRunning}

// retargetMidday picks a fresh slot in the window and upserts the midday
// nudge for it. The picker reaches the scheduler only through here.
func (c *Coordinator) retargetMidday(userID string) (Slot, error) {
	slot := c.pickSlot()
	if _, err := c.sched.AddDailyOpt(JobName(KindMiddayFire, userID), slot.String(), 0, jobOptions, c.middayJob(userID)); err != nil {
		return Slot{}, fmt.Errorf("install %s for %s: %w", KindMiddayFire, userID, err)
	}
	c.mu.Lock()
	c.slots[userID] = slot
	c.mu.Unlock()
	return slot, nil
}

func (c *Coordinator) pickSlot() Slot {
	m := c.windowStart + c.rand.Intn(c.windowEnd-c.windowStart+1)
	return Slot{Hour: m / 60, Minute: m % 60}
}

func (c *Coordinator) morningJob(userID string) func(context.Context) error {
	return c.notifyJob(KindMorning, userID, content.MorningMessage)
}

func (c *Coordinator) eveningJob(userID string) func(context.Context) error {
	return c.notifyJob(KindEvening, userID, content.EveningMessage)
}

func (c *Coordinator) middayJob(userID string) func(context.Context) error {
	return c.notifyJob(KindMiddayFire, userID, content.MiddayMessage)
}

func (c *Coordinator) pickerJob(userID string) func(context.Context) error {
	return func(ctx context.Context) error {
		slot, err := c.retargetMidday(userID)
		if err != nil {
			c.log.Error("midday retarget failed", logx.String("user", userID), logx.Err(err))
			return err
		}
		c.log.Debug("midday retargeted", logx.String("user", userID), logx.String("slot", slot.String()))
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeMiddayRetargeted, Data: InstallEvent{UserID: userID, Midday: slot}})
		return nil
	}
}

func (c *Coordinator) notifyJob(kind Kind, userID string, render func(content.Rand, storage.UserRecord) string) func(context.Context) error {
	return func(ctx context.Context) error {
		rec, _ := c.reg.GetOrCreate(ctx, userID)
		text := render(c.rand, rec)
		if err := c.send.SendText(ctx, userID, text); err != nil {
			c.log.Warn("notification failed", logx.String("user", userID), logx.String("kind", string(kind)), logx.Err(err))
			c.bus.Publish(eventbus.Event{Type: eventbus.TypeNotificationFail, Data: NotificationEvent{UserID: userID, Kind: kind, Error: err.Error()}})
			return fmt.Errorf("%s notification for %s: %w", kind, userID, err)
		}
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeNotificationSent, Data: NotificationEvent{UserID: userID, Kind: kind}})
		return nil
	}
}

// NotificationEvent is the payload of the notification.* events.
type NotificationEvent struct {
	UserID string `json:"user_id"`
	Kind   Kind   `json:"kind"`
	Error  string `json:"error,omitempty"`
}
