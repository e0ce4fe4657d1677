// Package guidance turns a system prompt and a user prompt into coaching text.
//
// Generate never fails: with no backend, or when the backend errors, the
// caller gets the user prompt back with a short templated hint appended.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// ErrEmptyCompletion is returned by backends that answered with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// maxErrorExcerpt bounds the error text shown to users, in runes.
const maxErrorExcerpt = 120

// Backend is a language-generation provider.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

type Options struct {
	BotName string
	Timeout time.Duration // per call; 0 means 60s
	Log     logx.Logger
}

type Generator struct {
	backend Backend
	botName string
	timeout time.Duration
	log     logx.Logger
}

// New returns a generator. backend may be nil for fallback-only mode.
func New(backend Backend, opts Options) *Generator {
	g := &Generator{
		backend: backend,
		botName: strings.TrimSpace(opts.BotName),
		timeout: opts.Timeout,
		log:     opts.Log,
	}
	if g.botName == "" {
		g.botName = "CoachAI"
	}
	if g.timeout <= 0 {
		g.timeout = 60 * time.Second
	}
	if g.log.IsZero() {
		g.log = logx.Nop()
	}
	return g
}

// Configured reports whether a backend is attached.
func (g *Generator) Configured() bool { return g.backend != nil }

// Provider names the backend, or "" in fallback-only mode.
func (g *Generator) Provider() string {
	if g.backend == nil {
		return ""
	}
	return g.backend.Name()
}

func (g *Generator) Generate(ctx context.Context, system, user string) string {
	if g.backend == nil {
		return g.offline(user)
	}
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := g.backend.Complete(cctx, system, user)
	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		g.log.Warn("generation failed", logx.String("provider", g.backend.Name()), logx.Duration("took", time.Since(start)), logx.Err(err))
		return g.degraded(user, err)
	}
	g.log.Debug("generation done", logx.String("provider", g.backend.Name()), logx.Duration("took", time.Since(start)), logx.Int("len", len(out)))
	return strings.TrimSpace(out)
}

func (g *Generator) offline(user string) string {
	return fmt.Sprintf("%s\n\n(Tip from %s: start with the shortest step and keep moving. You've got this!)", user, g.botName)
}

func (g *Generator) degraded(user string, err error) string {
	return fmt.Sprintf("%s\n\n(Temporary hint from %s: %s)", user, g.botName, excerpt(err.Error(), maxErrorExcerpt))
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
