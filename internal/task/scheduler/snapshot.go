package scheduler

import "time"

// NextRun returns the earliest upcoming firing across all schedules, or the
// zero time when nothing is registered or the service is stopped.
func (s *Service) NextRun() time.Time {
	var next time.Time
	for _, it := range s.Snapshot().Schedules {
		if it.Next.IsZero() {
			continue
		}
		if next.IsZero() || it.Next.Before(next) {
			next = it.Next
		}
	}
	return next
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	s.mu.Unlock()

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	return Snapshot{
		Running:   c != nil,
		Timezone:  s.loc.String(),
		Missed:    s.missed.Load(),
		Schedules: items,
	}
}
