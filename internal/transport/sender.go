package transport

import (
	"context"
	"fmt"
	"strconv"
)

// TextSender sends to a numeric chat.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// UserSender addresses chats by the string user IDs the registry keys on.
type UserSender struct {
	Out TextSender
}

func (u UserSender) SendText(ctx context.Context, userID, text string) error {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q: %w", userID, err)
	}
	return u.Out.SendText(ctx, id, text)
}

// OperatorSender exposes SendText under the name logx expects.
type OperatorSender struct {
	Out TextSender
}

func (o OperatorSender) SendOperatorText(ctx context.Context, chatID int64, text string) error {
	return o.Out.SendText(ctx, chatID, text)
}
