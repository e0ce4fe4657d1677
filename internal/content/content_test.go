package content

import (
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbragimovN/coachlast/internal/storage"
)

// fixedRand always picks index n and never reorders.
type fixedRand struct{ n int }

func (f fixedRand) Intn(int) int              { return f.n }
func (fixedRand) Shuffle(int, func(i, j int)) {}

func named(name string) storage.UserRecord {
	rec := storage.NewUserRecord()
	rec.Name = &name
	return rec
}

func TestMessagesUseNameOrFallback(t *testing.T) {
	t.Parallel()
	r := fixedRand{n: 1}
	anon := storage.NewUserRecord()

	tests := []struct {
		name   string
		got    string
		prefix string
		prompt string
	}{
		{name: "morning named", got: MorningMessage(r, named("Aziz")), prefix: "Good morning, Aziz!", prompt: MorningPrompts[1]},
		{name: "morning anon", got: MorningMessage(r, anon), prefix: "Good morning, friend!", prompt: MorningPrompts[1]},
		{name: "midday named", got: MiddayMessage(r, named("Aziz")), prefix: "Aziz! ", prompt: MiddayPrompts[1]},
		{name: "midday anon", got: MiddayMessage(r, anon), prefix: "Hey! ", prompt: MiddayPrompts[1]},
		{name: "evening anon", got: EveningMessage(r, anon), prefix: "Evening check-in, friend", prompt: EveningPrompts[1]},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, strings.HasPrefix(tt.got, tt.prefix), "got %q", tt.got)
			assert.Contains(t, tt.got, tt.prompt)
		})
	}
	assert.Contains(t, MorningMessage(r, anon), "/plan")
	assert.Contains(t, EveningMessage(r, anon), "/report")
}

func TestPoolsHaveThreePrompts(t *testing.T) {
	t.Parallel()
	for _, pool := range [][]string{MorningPrompts, MiddayPrompts, EveningPrompts} {
		assert.Len(t, pool, 3)
	}
}

func TestPickDailyPrioritiesBound(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(7))
	goals := []string{"g1", "g2", "g3"}
	habits := []string{"h1", "h2"}

	for k := -1; k <= 7; k++ {
		got := PickDailyPriorities(r, goals, habits, k)
		want := min(max(k, 0), len(goals)+len(habits))
		require.Len(t, got, want, "k=%d", k)
		for _, line := range got {
			ok := false
			for _, g := range goals {
				ok = ok || line == "Advance goal «"+g+"» (30–45 min focus)"
			}
			for _, h := range habits {
				ok = ok || line == "Habit «"+h+"» (10–15 min micro-step)"
			}
			assert.True(t, ok, "unexpected line %q", line)
		}
		sorted := slices.Clone(got)
		slices.Sort(sorted)
		assert.Equal(t, len(sorted), len(slices.Compact(sorted)), "duplicates in %v", got)
	}
}

func TestPickDailyPrioritiesGenericFallback(t *testing.T) {
	t.Parallel()
	got := PickDailyPriorities(fixedRand{}, nil, nil, DefaultPriorities)
	assert.Equal(t, GenericPriorities[:3], got)

	all := PickDailyPriorities(fixedRand{}, nil, nil, 10)
	assert.Equal(t, GenericPriorities, all)
	// The package-level slice must not be reordered by shuffling.
	assert.Equal(t, "10 minutes of reading", GenericPriorities[0])
}

func TestHumanizeList(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []string
		want string
	}{
		{in: nil, want: ""},
		{in: []string{"a"}, want: "a"},
		{in: []string{"a", "b"}, want: "a and b"},
		{in: []string{"a", "b", "c"}, want: "a, b and c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanizeList(tt.in))
	}
}

func TestPromptsMentionInputs(t *testing.T) {
	t.Parallel()
	rec := named("Aziz")
	rec.Goals = []string{"run"}
	p := PlanPrompt(rec, []string{"x", "y"})
	assert.Contains(t, p, "User: Aziz.")
	assert.Contains(t, p, "Goals: run.")
	assert.Contains(t, p, "Habits: none yet.")
	assert.Contains(t, p, "x and y")

	assert.Contains(t, ReportPrompt("did stuff", 4), "Current streak: 4.")
	assert.Contains(t, ChatPrompt(storage.NewUserRecord(), "hi"), "Known goals: none; habits: none.")
	assert.Equal(t, "1. a\n2. b", NumberedList([]string{"a", "b"}))

	assert.Contains(t, CoachSystemPrompt("CoachAI", ""), "You are CoachAI")
	assert.Equal(t, "custom", CoachSystemPrompt("CoachAI", "  custom "))
}

func TestNewRandConcurrentUse(t *testing.T) {
	t.Parallel()
	r := NewRand()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := r.Intn(3)
				if n < 0 || n >= 3 {
					t.Errorf("Intn out of range: %d", n)
				}
			}
		}()
	}
	wg.Wait()
}
