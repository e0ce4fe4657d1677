package content

import (
	"fmt"
	"strings"

	"github.com/IbragimovN/coachlast/internal/storage"
)

// DefaultCoachSystemPrompt is used unless coach.system_prompt is configured.
const DefaultCoachSystemPrompt = `You are %s, a personal life coach.
Your mission is to help the user reach their goals and keep their habits.

Rules:
- Turn goals into small, concrete steps that fit into 10 to 45 minutes.
- Consider the user's free time, rest and food when planning a day.
- Be supportive, but be strict when the user is procrastinating.
- Keep answers short and practical. End with one micro-step the user can take now.`

// ChatSystemPrompt is used for free-text messages.
const ChatSystemPrompt = "You are a personal coach. Answer briefly and to the point, with support and one micro-step."

// CoachSystemPrompt returns override when set, otherwise the default prompt
// addressed as botName.
func CoachSystemPrompt(botName, override string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	return fmt.Sprintf(DefaultCoachSystemPrompt, botName)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// GoalPrompt asks for a micro-step after a goal was added.
func GoalPrompt(goal string) string {
	return fmt.Sprintf("Goal added: %s. Suggest a micro-step for today (10–15 minutes).", goal)
}

func PlanPrompt(rec storage.UserRecord, priorities []string) string {
	return fmt.Sprintf(
		"User: %s.\nGoals: %s.\nHabits: %s.\nBuild a short plan for today from these items: %s.\nAdd a short motivational line at the end.",
		addressOr(rec, "friend"),
		orDefault(HumanizeList(rec.Goals), "none yet"),
		orDefault(HumanizeList(rec.Habits), "none yet"),
		HumanizeList(priorities),
	)
}

func ReportPrompt(report string, streak int) string {
	return fmt.Sprintf("User's report for today: %s. Current streak: %d.", report, streak)
}

func ChatPrompt(rec storage.UserRecord, text string) string {
	return fmt.Sprintf(
		"Message from the user: %s. Known goals: %s; habits: %s.",
		text,
		orDefault(HumanizeList(rec.Goals), "none"),
		orDefault(HumanizeList(rec.Habits), "none"),
	)
}
