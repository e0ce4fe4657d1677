package proactive

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/IbragimovN/coachlast/internal/eventbus"
	"github.com/IbragimovN/coachlast/internal/registry"
	"github.com/IbragimovN/coachlast/internal/storage"
	"github.com/IbragimovN/coachlast/internal/task/engine"
	"github.com/IbragimovN/coachlast/internal/task/scheduler"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// inlineEngine runs every task synchronously so RunNow returns the job error.
type inlineEngine struct{}

func (inlineEngine) Submit(_ context.Context, t engine.Task) error {
	return t.Run(context.Background())
}

type sent struct {
	user, text string
}

type fakeSender struct {
	mu    sync.Mutex
	msgs  []sent
	err   error
	tries int
}

func (f *fakeSender) SendText(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tries++
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{user: userID, text: text})
	return nil
}

// seqRand returns queued Intn values, then 0.
type seqRand struct {
	mu   sync.Mutex
	vals []int
}

func (s *seqRand) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.vals) == 0 {
		return 0
	}
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v % n
}

func (s *seqRand) Shuffle(int, func(i, j int)) {}

type fixture struct {
	sched *scheduler.Service
	reg   *registry.Registry
	send  *fakeSender
	coord *Coordinator
}

func newFixture(t *testing.T, initial storage.State, opts Options) *fixture {
	t.Helper()
	sched, err := scheduler.New(scheduler.Config{Timezone: "Asia/Tashkent"}, inlineEngine{}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sched.Stop(context.Background()) })

	reg := registry.New(nil, initial, logx.Nop())
	send := &fakeSender{}
	coord, err := New(sched, reg, send, opts)
	require.NoError(t, err)
	return &fixture{sched: sched, reg: reg, send: send, coord: coord}
}

func userJobs(s *scheduler.Service, userID string) []string {
	var out []string
	for _, n := range s.Names("") {
		if strings.HasSuffix(n, ":"+userID) {
			out = append(out, n)
		}
	}
	return out
}

func TestInstallIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	assert.False(t, f.sched.Running(), "scheduler starts lazily")

	for i := 0; i < 5; i++ {
		require.NoError(t, f.coord.InstallForUser(ctx, "42"))
		assert.Len(t, userJobs(f.sched, "42"), 4, "after install #%d", i+1)
	}
	assert.True(t, f.sched.Running())
	assert.Equal(t, Kinds, f.coord.Jobs("42"))
	assert.Equal(t, []string{
		"evening:42", "midday-fire:42", "midday-picker:42", "morning:42",
	}, f.sched.Names(""))
}

func TestInstallUsesConfiguredTimes(t *testing.T) {
	f := newFixture(t, nil, Options{Rand: &seqRand{vals: []int{0}}})
	require.NoError(t, f.coord.InstallForUser(context.Background(), "1"))

	for name, want := range map[string]string{
		"morning:1":       "0 9 * * *",
		"evening:1":       "0 21 * * *",
		"midday-picker:1": "55 11 * * *",
		"midday-fire:1":   "0 12 * * *",
	} {
		spec, ok := f.sched.Spec(name)
		require.True(t, ok, name)
		assert.Equal(t, want, spec, name)
	}
}

func TestInstallAllCoversLoadedUsers(t *testing.T) {
	initial := storage.State{"a": storage.NewUserRecord(), "b": storage.NewUserRecord(), "c": storage.NewUserRecord()}
	f := newFixture(t, initial, Options{})
	n, err := f.coord.InstallAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for id := range initial {
		assert.Len(t, userJobs(f.sched, id), 4, id)
	}
	// A /start from an already loaded user must not duplicate anything.
	require.NoError(t, f.coord.InstallForUser(context.Background(), "b"))
	assert.Len(t, f.sched.Names(""), 12)
}

func TestMiddayWindowBounds(t *testing.T) {
	f := newFixture(t, nil, Options{Rand: rand.New(rand.NewSource(1))})
	for i := 0; i < 2000; i++ {
		s := f.coord.pickSlot()
		assert.GreaterOrEqual(t, s.minutes(), 12*60, s.String())
		assert.LessOrEqual(t, s.minutes(), 19*60+59, s.String())
	}

	edges := newFixture(t, nil, Options{Rand: &seqRand{vals: []int{0, 479}}})
	assert.Equal(t, Slot{Hour: 12, Minute: 0}, edges.coord.pickSlot())
	assert.Equal(t, Slot{Hour: 19, Minute: 59}, edges.coord.pickSlot())
}

func TestPickerRetargetsMidday(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	f := newFixture(t, nil, Options{Rand: &seqRand{vals: []int{30, 125}}, Bus: bus})
	require.NoError(t, f.coord.InstallForUser(context.Background(), "7"))
	slot, ok := f.coord.MiddaySlot("7")
	require.True(t, ok)
	assert.Equal(t, "12:30", slot.String())

	require.NoError(t, f.sched.RunNow(JobName(KindMiddayPicker, "7")))
	slot, _ = f.coord.MiddaySlot("7")
	assert.Equal(t, "14:05", slot.String())
	spec, _ := f.sched.Spec(JobName(KindMiddayFire, "7"))
	assert.Equal(t, "5 14 * * *", spec)
	assert.Len(t, userJobs(f.sched, "7"), 4)

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []string{eventbus.TypeJobsInstalled, eventbus.TypeMiddayRetargeted}, types)
}

func TestJobsDispatchContent(t *testing.T) {
	name := "Aziz"
	rec := storage.NewUserRecord()
	rec.Name = &name
	f := newFixture(t, storage.State{"5": rec}, Options{Rand: &seqRand{}})
	ctx := context.Background()
	require.NoError(t, f.coord.InstallForUser(ctx, "5"))

	require.NoError(t, f.sched.RunNow(JobName(KindMorning, "5")))
	require.NoError(t, f.sched.RunNow(JobName(KindMiddayFire, "5")))
	require.NoError(t, f.sched.RunNow(JobName(KindEvening, "5")))

	require.Len(t, f.send.msgs, 3)
	assert.True(t, strings.HasPrefix(f.send.msgs[0].text, "Good morning, Aziz!"))
	assert.True(t, strings.HasPrefix(f.send.msgs[1].text, "Aziz! "))
	assert.True(t, strings.HasPrefix(f.send.msgs[2].text, "Evening check-in, Aziz"))
	for _, m := range f.send.msgs {
		assert.Equal(t, "5", m.user)
	}
}

func TestDispatchFailureIsNotRetriedAndKeepsJob(t *testing.T) {
	f := newFixture(t, nil, Options{})
	require.NoError(t, f.coord.InstallForUser(context.Background(), "9"))
	f.send.err = errors.New("bot was blocked by the user")

	err := f.sched.RunNow(JobName(KindMorning, "9"))
	require.Error(t, err)
	assert.ErrorIs(t, err, f.send.err)
	assert.Equal(t, 1, f.send.tries)
	assert.Len(t, userJobs(f.sched, "9"), 4)
}

func TestNewRejectsBadOptions(t *testing.T) {
	sched, err := scheduler.New(scheduler.Config{}, inlineEngine{}, logx.Nop())
	require.NoError(t, err)
	reg := registry.New(nil, nil, logx.Nop())

	_, err = New(sched, reg, &fakeSender{}, Options{Morning: "9am"})
	assert.Error(t, err)
	_, err = New(sched, reg, &fakeSender{}, Options{MiddayWindowStart: "18:00", MiddayWindowEnd: "12:00"})
	assert.Error(t, err)
	_, err = New(sched, reg, nil, Options{})
	assert.Error(t, err)
}
