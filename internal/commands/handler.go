// Package commands answers user messages: the slash commands and free text.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IbragimovN/coachlast/internal/content"
	"github.com/IbragimovN/coachlast/internal/registry"
	"github.com/IbragimovN/coachlast/internal/task/engine"
	kit "github.com/IbragimovN/coachlast/internal/transport"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// Replier sends a reply into a chat.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Installer (re)creates a user's proactive jobs.
type Installer interface {
	InstallForUser(ctx context.Context, userID string) error
}

// Guide produces coaching text and never fails.
type Guide interface {
	Generate(ctx context.Context, system, user string) string
}

// Submitter queues work on the engine.
type Submitter interface {
	Submit(ctx context.Context, t engine.Task) error
}

type Options struct {
	BotName      string
	BotUsername  string // for "/cmd@bot" filtering; empty accepts any
	SystemPrompt string // coach system prompt override
	Location     *time.Location
	Now          func() time.Time
	Rand         content.Rand
	Log          logx.Logger
}

type Handler struct {
	reg     *registry.Registry
	install Installer
	guide   Guide
	reply   Replier

	botName     string
	botUsername string
	system      string
	loc         *time.Location
	now         func() time.Time
	rand        content.Rand
	log         logx.Logger
}

func New(reg *registry.Registry, install Installer, guide Guide, reply Replier, opts Options) *Handler {
	h := &Handler{
		reg:         reg,
		install:     install,
		guide:       guide,
		reply:       reply,
		botName:     strings.TrimSpace(opts.BotName),
		botUsername: strings.TrimPrefix(strings.TrimSpace(opts.BotUsername), "@"),
		loc:         opts.Location,
		now:         opts.Now,
		rand:        opts.Rand,
		log:         opts.Log,
	}
	if h.botName == "" {
		h.botName = "CoachAI"
	}
	h.system = content.CoachSystemPrompt(h.botName, opts.SystemPrompt)
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.rand == nil {
		h.rand = content.NewRand()
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	return h
}

// Menu is the command list published to the platform.
func Menu() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "Start coaching and daily check-ins"},
		{Command: "goal", Description: "Add a goal"},
		{Command: "goals", Description: "List your goals"},
		{Command: "habit", Description: "Add a habit"},
		{Command: "habits", Description: "List your habits"},
		{Command: "plan", Description: "Today's plan"},
		{Command: "report", Description: "Report what you did today"},
		{Command: "help", Description: "Show help"},
	}
}

const commandList = "Commands:\n" +
	"/goal <text> - add a goal\n" +
	"/goals - list your goals\n" +
	"/habit <text> - add a habit\n" +
	"/habits - list your habits\n" +
	"/plan - today's plan\n" +
	"/report <text> - report your day\n"

const helpText = commandList + "Tip: keep goals short and measurable."

// Run consumes updates until ctx is done or updates is closed. Each message
// becomes one engine task, so commands and scheduled jobs share one queue.
func (h *Handler) Run(ctx context.Context, updates <-chan kit.Update, eng Submitter) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message == nil {
				continue
			}
			msg := *up.Message
			task := engine.Task{
				Name: "message:" + h.taskName(msg.Text),
				Run:  func(ctx context.Context) error { return h.Handle(ctx, msg) },
			}
			if err := eng.Submit(ctx, task); err != nil && !errors.Is(err, context.Canceled) {
				h.log.Warn("message dropped", logx.Int64("chat", msg.ChatID), logx.Err(err))
			}
		}
	}
}

// taskName keeps the set of engine task names small and bounded.
func (h *Handler) taskName(text string) string {
	cmd, _, ok := kit.ParseCommand(text, h.botUsername)
	if !ok {
		return "text"
	}
	switch cmd {
	case "start", "help", "goal", "goals", "habit", "habits", "plan", "report":
		return cmd
	}
	return "unknown"
}

// Handle answers one message. Errors are delivery or persistence failures;
// user mistakes are answered with a hint and return nil.
func (h *Handler) Handle(ctx context.Context, msg kit.Message) error {
	userID := strconv.FormatInt(msg.ChatID, 10)
	cmd, args, isCmd := kit.ParseCommand(msg.Text, h.botUsername)
	if !isCmd {
		if strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
			// addressed to another bot
			return nil
		}
		return h.chat(ctx, msg.ChatID, userID, strings.TrimSpace(msg.Text))
	}

	h.log.Debug("command", logx.String("user", userID), logx.String("cmd", cmd))
	switch cmd {
	case "start":
		return h.start(ctx, msg, userID)
	case "goal":
		return h.addGoal(ctx, msg.ChatID, userID, args)
	case "goals":
		return h.list(ctx, msg.ChatID, userID, "goals")
	case "habit":
		return h.addHabit(ctx, msg.ChatID, userID, args)
	case "habits":
		return h.list(ctx, msg.ChatID, userID, "habits")
	case "plan":
		return h.plan(ctx, msg.ChatID, userID)
	case "report":
		return h.report(ctx, msg.ChatID, userID, args)
	default:
		h.reg.GetOrCreate(ctx, userID)
		return h.send(ctx, msg.ChatID, helpText)
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) error {
	if err := h.reply.SendText(ctx, chatID, text); err != nil {
		return fmt.Errorf("reply to %d: %w", chatID, err)
	}
	return nil
}

func (h *Handler) today() string {
	return h.now().In(h.loc).Format(time.DateOnly)
}

func (h *Handler) start(ctx context.Context, msg kit.Message, userID string) error {
	h.reg.GetOrCreate(ctx, userID)
	if err := h.reg.SetDisplayName(ctx, userID, msg.FromName); err != nil {
		h.log.Error("save display name failed", logx.String("user", userID), logx.Err(err))
	}
	if err := h.install.InstallForUser(ctx, userID); err != nil {
		h.log.Error("install jobs failed", logx.String("user", userID), logx.Err(err))
	}
	name := strings.TrimSpace(msg.FromName)
	if name == "" {
		name = "friend"
	}
	text := fmt.Sprintf("Hi, %s! I'm %s, your AI life coach.\n\n%s/help - help\n\n"+
		"Start by adding one or two goals. Example: /goal Reach B2 in English", name, h.botName, commandList)
	return h.send(ctx, msg.ChatID, text)
}

func (h *Handler) addGoal(ctx context.Context, chatID int64, userID, text string) error {
	err := h.reg.AddGoal(ctx, userID, text)
	switch {
	case errors.Is(err, registry.ErrEmptyInput):
		return h.send(ctx, chatID, "Write a goal after the command. Example: /goal Finish 20 English lessons")
	case err != nil:
		h.log.Error("add goal failed", logx.String("user", userID), logx.Err(err))
	}
	text = strings.TrimSpace(text)
	reply := h.guide.Generate(ctx, h.system, content.GoalPrompt(text))
	return h.send(ctx, chatID, fmt.Sprintf("Goal added: «%s»\n\n%s", text, reply))
}

func (h *Handler) addHabit(ctx context.Context, chatID int64, userID, text string) error {
	err := h.reg.AddHabit(ctx, userID, text)
	switch {
	case errors.Is(err, registry.ErrEmptyInput):
		return h.send(ctx, chatID, "Write a habit after the command. Example: /habit Workout 30 min")
	case err != nil:
		h.log.Error("add habit failed", logx.String("user", userID), logx.Err(err))
	}
	return h.send(ctx, chatID, fmt.Sprintf("Habit added: «%s». Keep it small and daily.", strings.TrimSpace(text)))
}

func (h *Handler) list(ctx context.Context, chatID int64, userID, what string) error {
	rec, _ := h.reg.GetOrCreate(ctx, userID)
	items, add := rec.Goals, "/goal"
	if what == "habits" {
		items, add = rec.Habits, "/habit"
	}
	if len(items) == 0 {
		return h.send(ctx, chatID, fmt.Sprintf("No %s yet. Add one: %s <text>", what, add))
	}
	return h.send(ctx, chatID, fmt.Sprintf("Your %s:\n%s", what, content.NumberedList(items)))
}

func (h *Handler) plan(ctx context.Context, chatID int64, userID string) error {
	rec, _ := h.reg.GetOrCreate(ctx, userID)
	prios := content.PickDailyPriorities(h.rand, rec.Goals, rec.Habits, content.DefaultPriorities)
	if err := h.reg.RecordPlanIssued(ctx, userID, h.today()); err != nil {
		h.log.Error("record plan failed", logx.String("user", userID), logx.Err(err))
	}
	reply := h.guide.Generate(ctx, h.system, content.PlanPrompt(rec, prios))
	return h.send(ctx, chatID, "Today's plan:\n- "+strings.Join(prios, "\n- ")+"\n\n"+reply)
}

func (h *Handler) report(ctx context.Context, chatID int64, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		h.reg.GetOrCreate(ctx, userID)
		return h.send(ctx, chatID, "Describe what you did today. Example: /report workout 20 min, 10 pages of a book")
	}
	streak, err := h.reg.RecordReport(ctx, userID, h.today())
	if err != nil {
		h.log.Error("record report failed", logx.String("user", userID), logx.Err(err))
	}
	reply := h.guide.Generate(ctx, h.system, content.ReportPrompt(text, streak))
	return h.send(ctx, chatID, fmt.Sprintf("Got it! 🔥 Streak: %d\n%s", streak, reply))
}

func (h *Handler) chat(ctx context.Context, chatID int64, userID, text string) error {
	if text == "" {
		return nil
	}
	rec, _ := h.reg.GetOrCreate(ctx, userID)
	return h.send(ctx, chatID, h.guide.Generate(ctx, content.ChatSystemPrompt, content.ChatPrompt(rec, text)))
}
