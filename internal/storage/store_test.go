package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

func strPtr(s string) *string { return &s }

func sampleState() State {
	return State{
		"1001": {
			Goals:        []string{"Ship the beta", "Ship the beta"},
			Habits:       []string{"Run «5k»"},
			Name:         strPtr("Aziz"),
			LastPlanDate: strPtr("2026-03-01"),
			Streak:       4,
		},
		"1002": NewUserRecord(),
	}
}

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	name := "users.json"
	if driver == "sqlite" {
		name = "users.db"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "nested", name)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s) error: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestLoadEmpty(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openDriver(t, driver)
			got, err := st.Load(context.Background())
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Fatalf("Load = %#v, want empty non-nil state", got)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openDriver(t, driver)
			want := sampleState()
			if err := st.Save(ctx, want); err != nil {
				t.Fatalf("Save error: %v", err)
			}
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}

			// Save(Load()) is a fixed point.
			if err := st.Save(ctx, got); err != nil {
				t.Fatalf("second Save error: %v", err)
			}
			again, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("second Load error: %v", err)
			}
			if diff := cmp.Diff(got, again); diff != "" {
				t.Fatalf("Save(Load()) changed state (-first +second):\n%s", diff)
			}
		})
	}
}

func TestSaveReplacesWholeSnapshot(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openDriver(t, driver)
			if err := st.Save(ctx, sampleState()); err != nil {
				t.Fatalf("Save error: %v", err)
			}
			if err := st.Save(ctx, State{"7": NewUserRecord()}); err != nil {
				t.Fatalf("Save error: %v", err)
			}
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("len = %d, want 1 (%v)", len(got), got)
			}
			if _, ok := got["7"]; !ok {
				t.Fatalf("user 7 missing: %v", got)
			}
		})
	}
}

func TestFileFormat(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "users.json")
	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := st.Save(context.Background(), State{"1": {Name: strPtr("Ann <&>")}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	doc := string(b)
	for _, want := range []string{`"goals": []`, `"habits": []`, `"last_plan_date": null`, `"name": "Ann <&>"`, "\n  \"1\": {"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q:\n%s", want, doc)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestFileCorrupt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "truncated", body: `{"1": {"goals": [`},
		{name: "wrong type", body: `{"1": {"streak": "many"}}`},
		{name: "empty", body: "  \n"},
		{name: "null", body: "null"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "users.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("WriteFile error: %v", err)
			}
			st, err := Open(Config{Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open error: %v", err)
			}
			_, err = st.Load(context.Background())
			if !errors.Is(err, ErrCorruptState) {
				t.Fatalf("Load error = %v, want ErrCorruptState", err)
			}
			var ce *CorruptStateError
			if !errors.As(err, &ce) || ce.Source != path {
				t.Fatalf("expected *CorruptStateError for %s, got %#v", path, err)
			}
		})
	}
}

func TestSQLiteCorruptRow(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "users.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	db := st.(*sqliteStore).db
	if _, err := db.Exec(`INSERT INTO users(user_id, record, updated_at) VALUES('42', '{oops', 'x')`); err != nil {
		t.Fatalf("insert error: %v", err)
	}
	_, err = st.Load(context.Background())
	var ce *CorruptStateError
	if !errors.As(err, &ce) || ce.UserID != "42" {
		t.Fatalf("Load error = %v, want CorruptStateError for user 42", err)
	}
	if !errors.Is(err, ErrCorruptState) {
		t.Fatalf("errors.Is(ErrCorruptState) = false for %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestDefaultPathPerDriver(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":         DefaultFilePath,
		"file":     DefaultFilePath,
		"JSON":     DefaultFilePath,
		"sqlite":   DefaultSQLitePath,
		"sqlite3":  DefaultSQLitePath,
		" SQLite ": DefaultSQLitePath,
	}
	for driver, want := range tests {
		if got := DefaultPath(driver); got != want {
			t.Fatalf("DefaultPath(%q) = %q, want %q", driver, got, want)
		}
	}
}

func TestOpenSQLiteWithoutPathUsesDBFile(t *testing.T) {
	t.Chdir(t.TempDir())
	st, err := Open(Config{Driver: "sqlite"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()
	if err := st.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := os.Stat("users.db"); err != nil {
		t.Fatalf("users.db not created: %v", err)
	}
	if _, err := os.Stat("users.json"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("users.json must not exist, stat err = %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	orig := sampleState()["1001"]
	cp := orig.Clone()
	cp.Goals[0] = "changed"
	*cp.Name = "changed"
	if orig.Goals[0] == "changed" || *orig.Name == "changed" {
		t.Fatalf("Clone shares memory with original: %#v", orig)
	}
	if got := (UserRecord{}).Clone(); got.Goals == nil || got.Habits == nil {
		t.Fatalf("Clone of zero record should yield empty slices, got %#v", got)
	}
}
