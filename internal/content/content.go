// Package content selects the text of proactive notifications and builds the
// prompts handed to the guidance generator.
//
// Everything here is a pure function of its inputs; randomness comes from an
// injected Rand so tests can pin it.
package content

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/IbragimovN/coachlast/internal/storage"
)

// Rand is the subset of *rand.Rand the selector uses.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a time-seeded Rand that is safe for concurrent use.
func NewRand() Rand {
	return &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

var (
	MorningPrompts = []string{
		"Time to start the day. Let's pick 3 priorities and break them into small steps.",
		"Good morning! What will we do today to get one step closer to your goals?",
		"Start gently: water, a short warm-up, then 1 important step toward your main goal.",
	}
	MiddayPrompts = []string{
		"Quick check-in: how's progress? If you're stuck, cut the task in half.",
		"A sip of water and 10 minutes of focus on your main task, right now.",
		"Reminder: small steps beat perfect plans.",
	}
	EveningPrompts = []string{
		"Let's wrap up: what worked, what did you learn? Tomorrow we'll be 1% better.",
		"Evening check: 3 steps done? If not, take one tiny step right now.",
		"Let's lock in today's progress and sketch a short plan for tomorrow.",
	}
)

func addressOr(rec storage.UserRecord, fallback string) string {
	if name := strings.TrimSpace(rec.DisplayName()); name != "" {
		return name
	}
	return fallback
}

func pick(r Rand, pool []string) string {
	return pool[r.Intn(len(pool))]
}

func MorningMessage(r Rand, rec storage.UserRecord) string {
	return fmt.Sprintf("Good morning, %s! 🌞 %s\nSend /plan to get today's plan.", addressOr(rec, "friend"), pick(r, MorningPrompts))
}

func MiddayMessage(r Rand, rec storage.UserRecord) string {
	return fmt.Sprintf("%s! %s", addressOr(rec, "Hey"), pick(r, MiddayPrompts))
}

func EveningMessage(r Rand, rec storage.UserRecord) string {
	return fmt.Sprintf("Evening check-in, %s 🌙 %s\nSend /report and briefly describe what you did.", addressOr(rec, "friend"), pick(r, EveningPrompts))
}

// DefaultPriorities is the plan size used by /plan.
const DefaultPriorities = 3

// GenericPriorities are offered when the user has neither goals nor habits.
var GenericPriorities = []string{
	"10 minutes of reading",
	"30 minutes of English",
	"15 minutes of light exercise",
	"10 minutes tidying your desk",
}

// PickDailyPriorities shuffles one line per goal and habit and keeps the first k.
// The result never has more than k entries.
func PickDailyPriorities(r Rand, goals, habits []string, k int) []string {
	if k <= 0 {
		return []string{}
	}
	pool := make([]string, 0, len(goals)+len(habits))
	for _, g := range goals {
		pool = append(pool, fmt.Sprintf("Advance goal «%s» (30–45 min focus)", g))
	}
	for _, h := range habits {
		pool = append(pool, fmt.Sprintf("Habit «%s» (10–15 min micro-step)", h))
	}
	if len(pool) == 0 {
		pool = append(pool, GenericPriorities...)
	}
	r.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > k {
		pool = pool[:k]
	}
	return pool
}

// HumanizeList joins items as "a", "a and b", "a, b and c".
func HumanizeList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

// NumberedList renders "1. a\n2. b".
func NumberedList(items []string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, it)
	}
	return b.String()
}
