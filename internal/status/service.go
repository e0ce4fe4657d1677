// Package status serves a read-only HTML page describing the running bot,
// plus a /healthz probe.
package status

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	rtsup "github.com/IbragimovN/coachlast/internal/runtime/supervisor"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// Backend reports the text-generation backend.
type Backend interface {
	Configured() bool
	Provider() string
}

// Info is everything the page shows. Funcs are read on every request.
type Info struct {
	BotName         string
	TokenConfigured bool
	Backend         Backend
	Location        *time.Location
	Started         time.Time
	Now             func() time.Time
	Users           func() int
	Jobs            func() int
	Tasks           func() TaskStats
	NextRun         func() time.Time // zero when nothing is scheduled
}

// TaskStats are the task queue counters shown on the page.
type TaskStats struct {
	Waiting   int
	Capacity  int
	Completed uint64
	Failed    uint64
	Missed    uint64 // firings that never reached the queue

	LastFailure string // "<task>: <error>", empty when none is recorded
}

type Config struct {
	Addr         string // default ":8080"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	info Info

	srv  *http.Server
	addr string
	sup  *rtsup.Supervisor
}

func New(cfg Config, info Info, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	if info.Now == nil {
		info.Now = time.Now
	}
	if info.Location == nil {
		info.Location = time.Local
	}
	if info.Started.IsZero() {
		info.Started = info.Now()
	}
	return &Service{cfg: cfg, info: info, log: log}
}

// Addr returns the bound listen address once serving, or "".
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler exposes the routes without a listener.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /{$}", s.page)
	return mux
}

// Start is idempotent. The listener runs under a restart loop so a transient
// bind failure heals itself.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// the page is optional; never take the bot down with it
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv, s.addr = nil, nil, ""
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	_ = sup.Wait(ctx)
	s.log.Info("status page stopped")
}

func (s *Service) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Error("status listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	defer func() { _ = srv.Close() }()

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("status page started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("status server exited unexpectedly")
	}
	return err
}

type pageData struct {
	BotName    string
	Token      bool
	Backend    bool
	Provider   string
	Now        string
	Timezone   string
	Uptime     string
	Users      string
	Jobs       string
	HasCounter bool
	HasTasks   bool
	Waiting    string
	Capacity   string
	Completed  string
	Failed     string
	Missed     string
	LastFail   string
	NextRun    string
}

func (s *Service) snapshot() pageData {
	now := s.info.Now()
	d := pageData{
		BotName:  s.info.BotName,
		Token:    s.info.TokenConfigured,
		Now:      now.In(s.info.Location).Format("2006-01-02 15:04:05 MST"),
		Timezone: s.info.Location.String(),
		Uptime:   strings.TrimSpace(humanize.RelTime(s.info.Started, now, "", "")),
	}
	if b := s.info.Backend; b != nil && b.Configured() {
		d.Backend = true
		d.Provider = b.Provider()
	}
	if s.info.Users != nil {
		d.HasCounter = true
		d.Users = humanize.Comma(int64(s.info.Users()))
	}
	if s.info.Jobs != nil {
		d.HasCounter = true
		d.Jobs = humanize.Comma(int64(s.info.Jobs()))
	}
	if s.info.Tasks != nil {
		ts := s.info.Tasks()
		d.HasTasks = true
		d.Waiting = humanize.Comma(int64(ts.Waiting))
		d.Capacity = humanize.Comma(int64(ts.Capacity))
		d.Completed = humanize.Comma(int64(ts.Completed))
		d.Failed = humanize.Comma(int64(ts.Failed))
		d.Missed = humanize.Comma(int64(ts.Missed))
		d.LastFail = ts.LastFailure
	}
	if s.info.NextRun != nil {
		if next := s.info.NextRun(); !next.IsZero() {
			d.NextRun = next.In(s.info.Location).Format("2006-01-02 15:04") + " (" + humanize.RelTime(next, now, "ago", "from now") + ")"
		}
	}
	return d
}

func (s *Service) page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTmpl.Execute(w, s.snapshot()); err != nil {
		s.log.Warn("status page render failed", logx.Err(err))
	}
}

var pageTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.BotName}} status</title>
<style>
body { font-family: sans-serif; margin: 40px; background: #f5f5f5; }
.box { max-width: 600px; margin: 0 auto; background: #fff; padding: 24px; border-radius: 8px; }
.row { margin: 12px 0; padding: 12px; border-radius: 4px; background: #eef6f8; }
.time { font-family: monospace; }
</style>
</head>
<body>
<div class="box">
<h1>🤖 {{.BotName}}</h1>
<div class="row"><strong>Status:</strong> running</div>
<div class="row"><strong>Current time:</strong> <span class="time">{{.Now}}</span> ({{.Timezone}})</div>
<div class="row"><strong>Uptime:</strong> {{.Uptime}}</div>
<div class="row"><strong>Bot token:</strong> {{if .Token}}✅ configured{{else}}❌ missing{{end}}</div>
<div class="row"><strong>Guidance backend:</strong> {{if .Backend}}✅ {{.Provider}}{{else}}❌ not configured, using fallback replies{{end}}</div>
{{- if .HasCounter}}
<div class="row"><strong>Users:</strong> {{.Users}} &middot; <strong>Scheduled jobs:</strong> {{.Jobs}}</div>
{{- end}}
{{- if .NextRun}}
<div class="row"><strong>Next check-in:</strong> <span class="time">{{.NextRun}}</span></div>
{{- end}}
{{- if .HasTasks}}
<div class="row"><strong>Task queue:</strong> {{.Waiting}} / {{.Capacity}} waiting &middot; <strong>completed:</strong> {{.Completed}} &middot; <strong>failed:</strong> {{.Failed}} &middot; <strong>missed:</strong> {{.Missed}}</div>
{{- if .LastFail}}
<div class="row"><strong>Last failure:</strong> {{.LastFail}}</div>
{{- end}}
{{- end}}
</div>
</body>
</html>
`))
