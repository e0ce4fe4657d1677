// Package transport defines the chat-platform boundary: incoming updates,
// outbound text, and the command menu. Adapters live in subpackages.
package transport

import "context"

type UpdateKind string

const UpdateMessage UpdateKind = "message"

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromName     string // first name as set in the profile
	Text         string
}

// BotCommand is a single entry of the bot command menu.
type BotCommand struct {
	Command     string
	Description string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, chatID int64, text string) error
	SetCommands(ctx context.Context, cmds []BotCommand) error
}
