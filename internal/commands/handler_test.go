package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbragimovN/coachlast/internal/content"
	"github.com/IbragimovN/coachlast/internal/registry"
	"github.com/IbragimovN/coachlast/internal/task/engine"
	kit "github.com/IbragimovN/coachlast/internal/transport"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

type replies struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *replies) SendText(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, text)
	return nil
}

func (r *replies) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.msgs)
	return r.msgs[len(r.msgs)-1]
}

type installs struct {
	users []string
}

func (i *installs) InstallForUser(_ context.Context, userID string) error {
	i.users = append(i.users, userID)
	return nil
}

// echoGuide returns "<system>|<user>" so tests can see which prompts were used.
type echoGuide struct{}

func (echoGuide) Generate(_ context.Context, system, user string) string {
	return "AI[" + system + "|" + user + "]"
}

type noShuffle struct{}

func (noShuffle) Intn(int) int                { return 0 }
func (noShuffle) Shuffle(int, func(i, j int)) {}

type fixture struct {
	h   *Handler
	reg *registry.Registry
	out *replies
	ins *installs
}

// 2025-03-10 22:30 UTC is already 2025-03-11 in Tashkent (UTC+5).
var fixedNow = time.Date(2025, 3, 10, 22, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tashkent")
	require.NoError(t, err)
	f := &fixture{
		reg: registry.New(nil, nil, logx.Nop()),
		out: &replies{},
		ins: &installs{},
	}
	f.h = New(f.reg, f.ins, echoGuide{}, f.out, Options{
		BotName:     "Sensei",
		BotUsername: "@coach_bot",
		Location:    loc,
		Now:         func() time.Time { return fixedNow },
		Rand:        noShuffle{},
	})
	return f
}

func (f *fixture) say(t *testing.T, text string) string {
	t.Helper()
	require.NoError(t, f.h.Handle(context.Background(), kit.Message{ChatID: 42, FromName: "Aziz", Text: text}))
	return f.out.last(t)
}

func TestStartRegistersAndInstalls(t *testing.T) {
	f := newFixture(t)
	got := f.say(t, "/start")

	assert.True(t, strings.HasPrefix(got, "Hi, Aziz! I'm Sensei, your AI life coach."))
	assert.Contains(t, got, "/goal <text> - add a goal")
	assert.Equal(t, []string{"42"}, f.ins.users)

	rec, ok := f.reg.Lookup("42")
	require.True(t, ok)
	require.NotNil(t, rec.Name)
	assert.Equal(t, "Aziz", *rec.Name)

	f.say(t, "/start@coach_bot")
	assert.Equal(t, []string{"42", "42"}, f.ins.users)
	assert.Equal(t, 1, f.reg.Len())
}

func TestGoal(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "Write a goal after the command. Example: /goal Finish 20 English lessons", f.say(t, "/goal   "))
	_, ok := f.reg.Lookup("42")
	assert.False(t, ok, "empty input must not create a record")

	got := f.say(t, "/goal  Run a 10k ")
	assert.True(t, strings.HasPrefix(got, "Goal added: «Run a 10k»\n\nAI["), got)
	assert.Contains(t, got, content.GoalPrompt("Run a 10k"))
	assert.Contains(t, got, "You are Sensei")

	rec, _ := f.reg.Lookup("42")
	assert.Equal(t, []string{"Run a 10k"}, rec.Goals)
}

func TestHabitAndLists(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No goals yet. Add one: /goal <text>", f.say(t, "/goals"))
	assert.Equal(t, "No habits yet. Add one: /habit <text>", f.say(t, "/habits"))

	assert.Equal(t, "Write a habit after the command. Example: /habit Workout 30 min", f.say(t, "/habit"))
	assert.Equal(t, "Habit added: «Stretch». Keep it small and daily.", f.say(t, "/habit Stretch"))
	f.say(t, "/habit Stretch")
	f.say(t, "/goal Read")

	assert.Equal(t, "Your habits:\n1. Stretch\n2. Stretch", f.say(t, "/habits"))
	assert.Equal(t, "Your goals:\n1. Read", f.say(t, "/goals"))
}

func TestPlanThenReportGrowsStreak(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/goal Read")

	got := f.say(t, "/report read 10 pages")
	assert.True(t, strings.HasPrefix(got, "Got it! 🔥 Streak: 0\nAI["), got)

	got = f.say(t, "/plan")
	assert.True(t, strings.HasPrefix(got, "Today's plan:\n- Advance goal «Read» (30–45 min focus)\n\nAI["), got)
	rec, _ := f.reg.Lookup("42")
	require.NotNil(t, rec.LastPlanDate)
	assert.Equal(t, "2025-03-11", *rec.LastPlanDate)

	assert.True(t, strings.HasPrefix(f.say(t, "/report done"), "Got it! 🔥 Streak: 1\n"))
	assert.True(t, strings.HasPrefix(f.say(t, "/report more"), "Got it! 🔥 Streak: 2\n"))
}

func TestPlanWithoutItemsUsesGenericPriorities(t *testing.T) {
	f := newFixture(t)
	got := f.say(t, "/plan")
	want := "Today's plan:\n- " + strings.Join(content.GenericPriorities[:content.DefaultPriorities], "\n- ")
	assert.True(t, strings.HasPrefix(got, want), got)
}

func TestReportRequiresText(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Describe what you did today. Example: /report workout 20 min, 10 pages of a book", f.say(t, "/report"))
}

func TestFreeTextUsesChatPrompt(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/habit Stretch")
	got := f.say(t, "  I feel lazy  ")
	assert.True(t, strings.HasPrefix(got, "AI["+content.ChatSystemPrompt+"|"), got)
	assert.Contains(t, got, "I feel lazy")
	assert.Contains(t, got, "habits: Stretch")
}

func TestUnknownCommandGetsHelp(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, helpText, f.say(t, "/dance"))
	assert.Equal(t, helpText, f.say(t, "/help"))
	assert.True(t, strings.HasSuffix(helpText, "Tip: keep goals short and measurable."))
}

func TestOtherBotsCommandsAreIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.h.Handle(context.Background(), kit.Message{ChatID: 1, Text: "/plan@other_bot"}))
	assert.Empty(t, f.out.msgs)
	assert.Zero(t, f.reg.Len())
}

func TestReplyErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	f.out.err = errors.New("blocked")
	err := f.h.Handle(context.Background(), kit.Message{ChatID: 1, Text: "/help"})
	assert.ErrorIs(t, err, f.out.err)
}

func TestRunFeedsEngine(t *testing.T) {
	f := newFixture(t)
	eng := engine.New(engine.Config{}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)
	defer func() {
		cancel()
		eng.Stop(context.Background())
	}()

	updates := make(chan kit.Update, 4)
	done := make(chan struct{})
	go func() {
		f.h.Run(ctx, updates, eng)
		close(done)
	}()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 42, Text: "/habit Walk"}}
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 42, Text: "/habits"}}
	close(updates)
	<-done

	require.Eventually(t, func() bool {
		f.out.mu.Lock()
		defer f.out.mu.Unlock()
		return len(f.out.msgs) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Your habits:\n1. Walk", f.out.last(t))
}

func TestTaskNamesAreBounded(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "goal", f.h.taskName("/goal x"))
	assert.Equal(t, "unknown", f.h.taskName("/whatever"))
	assert.Equal(t, "text", f.h.taskName("hello"))
	assert.Len(t, Menu(), 8)
}
