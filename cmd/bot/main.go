package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/IbragimovN/coachlast/internal/app"
	"github.com/IbragimovN/coachlast/internal/config"
	"github.com/IbragimovN/coachlast/internal/storage"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

type globals struct {
	Config  string `help:"Path to the YAML or JSON config file." default:"./coachbot.yaml" type:"path" short:"c"`
	EnvFile string `help:"Dotenv file loaded before the config; missing is fine." default:".env" name:"env-file"`
}

type cli struct {
	Globals globals `embed:""`

	Run        runCmd        `cmd:"" default:"withargs" help:"Run the bot (default)."`
	CheckState checkStateCmd `cmd:"" name:"check-state" help:"Load the user state and report what it holds."`
}

type runCmd struct{}

func (runCmd) Run(g *globals) error {
	if err := config.LoadDotEnv(g.EnvFile); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.NewApp(ctx, g.Config)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.Stop(stopCtx, app.StopFatalError)
		stopCancel()
		return fmt.Errorf("start: %w", err)
	}

	var reason app.StopReason
	select {
	case s := <-sigs:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

type checkStateCmd struct{}

func (checkStateCmd) Run(g *globals) error {
	if err := config.LoadDotEnv(g.EnvFile); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rep, err := app.CheckState(ctx, g.Config, logx.NewConsole("warn"))
	if errors.Is(err, storage.ErrCorruptState) {
		return fmt.Errorf("state is corrupt, fix or move it before starting the bot: %w", err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("state: %s (%s)\nusers: %s\ngoals: %s\nhabits: %s\n",
		rep.Path, rep.Driver,
		humanize.Comma(int64(rep.Users)),
		humanize.Comma(int64(rep.Goals)),
		humanize.Comma(int64(rep.Habits)),
	)
	return nil
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("coachbot"),
		kong.Description("Telegram life-coach bot with daily proactive check-ins."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(&c.Globals))
}
