package transport

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in, bot   string
		cmd, args string
		ok        bool
	}{
		{"/start", "coach_bot", "start", "", true},
		{"/goal Run 5k", "coach_bot", "goal", "Run 5k", true},
		{"  /GOAL   read more  ", "", "goal", "read more", true},
		{"/goal@coach_bot Run", "coach_bot", "goal", "Run", true},
		{"/goal@Coach_Bot Run", "coach_bot", "goal", "Run", true},
		{"/goal@other_bot Run", "coach_bot", "", "", false},
		{"/report\nwalked 3km", "", "report", "walked 3km", true},
		{"hello /goal", "", "", "", false},
		{"/", "", "", "", false},
		{"/@coach_bot", "coach_bot", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			cmd, args, ok := ParseCommand(tc.in, tc.bot)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.cmd, cmd)
			assert.Equal(t, tc.args, args)
		})
	}
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitText("short", 10))

	long := strings.Repeat("я", 25)
	parts := SplitText(long, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, long, strings.Join(parts, ""))
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 10)
	}

	lines := "aaaa\nbbbb\ncccc"
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, SplitText(lines, 10))
}

type recorder struct {
	chat int64
	text string
}

func (r *recorder) SendText(_ context.Context, chatID int64, text string) error {
	r.chat, r.text = chatID, text
	return nil
}

func TestUserSender(t *testing.T) {
	r := &recorder{}
	require.NoError(t, UserSender{Out: r}.SendText(context.Background(), "-1001", "hi"))
	assert.Equal(t, int64(-1001), r.chat)
	assert.Error(t, UserSender{Out: r}.SendText(context.Background(), "abc", "hi"))

	require.NoError(t, OperatorSender{Out: r}.SendOperatorText(context.Background(), 5, "warn"))
	assert.Equal(t, int64(5), r.chat)
	assert.Equal(t, "warn", r.text)
}
