package proactive

import (
	"fmt"

	"github.com/IbragimovN/coachlast/internal/task/scheduler"
)

// Slot is a wall-clock time of day in the scheduler timezone.
type Slot struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (s Slot) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

func (s Slot) minutes() int { return s.Hour*60 + s.Minute }

func parseSlot(field, raw, def string) (Slot, error) {
	if raw == "" {
		raw = def
	}
	h, m, err := scheduler.ParseHHMM(raw)
	if err != nil {
		return Slot{}, fmt.Errorf("proactive: %s: %w", field, err)
	}
	return Slot{Hour: h, Minute: m}, nil
}
