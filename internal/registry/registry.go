// Package registry owns the in-memory user mapping and is its only mutator.
//
// Every mutation persists the full snapshot through storage.Store before it
// returns. Records leave the package as deep copies.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/IbragimovN/coachlast/internal/storage"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// ErrEmptyInput is returned when a goal or habit is blank after trimming.
var ErrEmptyInput = errors.New("empty input")

type Registry struct {
	store storage.Store
	log   logx.Logger

	mu    sync.Mutex
	state storage.State
}

// New wraps an already loaded state. initial may be nil.
func New(store storage.Store, initial storage.State, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	st := initial.Clone()
	if st == nil {
		st = storage.State{}
	}
	return &Registry{store: store, log: log, state: st}
}

// Lookup returns a copy of the record without creating it.
func (r *Registry) Lookup(userID string) (storage.UserRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.state[userID]
	if !ok {
		return storage.UserRecord{}, false
	}
	return rec.Clone(), true
}

// Create inserts the default record and persists. An existing record is
// returned unchanged and nothing is written.
func (r *Registry) Create(ctx context.Context, userID string) (storage.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, _, err := r.createLocked(ctx, userID)
	if err != nil {
		return rec.Clone(), fmt.Errorf("persist new user %s: %w", userID, err)
	}
	return rec.Clone(), nil
}

// GetOrCreate never fails: a persist error is logged and the in-memory
// record is still returned.
func (r *Registry) GetOrCreate(ctx context.Context, userID string) (storage.UserRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, created, err := r.createLocked(ctx, userID)
	if err != nil {
		r.log.Error("persist new user failed", logx.String("user", userID), logx.Err(err))
	}
	return rec.Clone(), created
}

func (r *Registry) createLocked(ctx context.Context, userID string) (storage.UserRecord, bool, error) {
	if rec, ok := r.state[userID]; ok {
		return rec, false, nil
	}
	rec := storage.NewUserRecord()
	r.state[userID] = rec
	r.log.Info("user created", logx.String("user", userID))
	return rec, true, r.persistLocked(ctx)
}

// SetDisplayName creates the user if needed.
func (r *Registry) SetDisplayName(ctx context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	return r.update(ctx, userID, func(rec *storage.UserRecord) error {
		if name == "" {
			rec.Name = nil
			return nil
		}
		rec.Name = &name
		return nil
	})
}

func (r *Registry) AddGoal(ctx context.Context, userID, text string) error {
	return r.appendItem(ctx, userID, text, func(rec *storage.UserRecord, v string) {
		rec.Goals = append(rec.Goals, v)
	})
}

func (r *Registry) AddHabit(ctx context.Context, userID, text string) error {
	return r.appendItem(ctx, userID, text, func(rec *storage.UserRecord, v string) {
		rec.Habits = append(rec.Habits, v)
	})
}

func (r *Registry) appendItem(ctx context.Context, userID, text string, add func(*storage.UserRecord, string)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	return r.update(ctx, userID, func(rec *storage.UserRecord) error {
		add(rec, text)
		return nil
	})
}

// RecordPlanIssued stores date (YYYY-MM-DD) as the last plan date.
func (r *Registry) RecordPlanIssued(ctx context.Context, userID, date string) error {
	return r.update(ctx, userID, func(rec *storage.UserRecord) error {
		d := date
		rec.LastPlanDate = &d
		return nil
	})
}

// RecordReport increments the streak only when a plan was issued today.
// The record is persisted either way.
func (r *Registry) RecordReport(ctx context.Context, userID, today string) (int, error) {
	var streak int
	err := r.update(ctx, userID, func(rec *storage.UserRecord) error {
		if rec.LastPlanDate != nil && *rec.LastPlanDate == today {
			rec.Streak++
		}
		streak = rec.Streak
		return nil
	})
	return streak, err
}

// Users returns every known id, sorted.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.state))
	for id := range r.state {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state)
}

// update applies fn to a copy and commits it only if fn succeeds. The
// in-memory change is kept even when persisting fails.
func (r *Registry) update(ctx context.Context, userID string, fn func(*storage.UserRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.state[userID]
	if !ok {
		rec = storage.NewUserRecord()
		r.log.Info("user created", logx.String("user", userID))
	}
	next := rec.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	r.state[userID] = next
	if err := r.persistLocked(ctx); err != nil {
		return fmt.Errorf("persist user %s: %w", userID, err)
	}
	return nil
}

func (r *Registry) persistLocked(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(ctx, r.state)
}
