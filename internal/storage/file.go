package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// fileStore keeps the state in one indented JSON document.
//
// Save writes <path>.tmp-*, fsyncs it and renames it over <path>.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) (State, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debug("no state file yet")
		return State{}, nil
	}
	if err != nil {
		return nil, err
	}
	st := State{}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, &CorruptStateError{Source: s.path, Err: errors.New("empty document")}
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	if st == nil {
		// literal "null"
		return nil, &CorruptStateError{Source: s.path, Err: errors.New("document is null")}
	}
	for id, rec := range st {
		st[id] = rec.Clone()
	}
	s.log.Debug("state loaded", logx.Int("users", len(st)))
	return st, nil
}

func (s *fileStore) Save(ctx context.Context, st State) error {
	_ = ctx
	b, err := encodeState(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// encodeState renders the document with two-space indent and without HTML
// escaping so non-ASCII text and quotes stay readable on disk.
func encodeState(st State) ([]byte, error) {
	if st == nil {
		st = State{}
	}
	norm := make(State, len(st))
	for id, rec := range st {
		norm[id] = rec.Clone()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(norm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
