package storage

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrCorruptState is matched (errors.Is) by every CorruptStateError.
var ErrCorruptState = errors.New("corrupt state")

// Config configures storage.
//
// Driver values:
//   - "file": JSON document at Path (default)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UserRecord is everything the bot remembers about one user.
//
// Goals and Habits keep insertion order and may contain duplicates.
// LastPlanDate is a YYYY-MM-DD calendar date in the coach timezone.
type UserRecord struct {
	Goals        []string `json:"goals"`
	Habits       []string `json:"habits"`
	Name         *string  `json:"name"`
	LastPlanDate *string  `json:"last_plan_date"`
	Streak       int      `json:"streak"`
}

// NewUserRecord returns the default record for a first-time user.
func NewUserRecord() UserRecord {
	return UserRecord{Goals: []string{}, Habits: []string{}}
}

// Clone returns a deep copy. Nil slices come back as empty slices so the
// serialized form is always an array.
func (r UserRecord) Clone() UserRecord {
	out := UserRecord{
		Goals:  slices.Clone(r.Goals),
		Habits: slices.Clone(r.Habits),
		Streak: r.Streak,
	}
	if out.Goals == nil {
		out.Goals = []string{}
	}
	if out.Habits == nil {
		out.Habits = []string{}
	}
	if r.Name != nil {
		v := *r.Name
		out.Name = &v
	}
	if r.LastPlanDate != nil {
		v := *r.LastPlanDate
		out.LastPlanDate = &v
	}
	return out
}

// DisplayName returns the stored name or "".
func (r UserRecord) DisplayName() string {
	if r.Name == nil {
		return ""
	}
	return *r.Name
}

// State maps user id to record.
type State map[string]UserRecord

// Clone deep-copies every record.
func (s State) Clone() State {
	out := make(State, len(s))
	for id, rec := range s {
		out[id] = rec.Clone()
	}
	return out
}

// CorruptStateError reports a snapshot that exists but cannot be decoded.
type CorruptStateError struct {
	Source string
	UserID string // sqlite only: offending row
	Err    error
}

func (e *CorruptStateError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("corrupt state in %s (user %s): %v", e.Source, e.UserID, e.Err)
	}
	return fmt.Sprintf("corrupt state in %s: %v", e.Source, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }
