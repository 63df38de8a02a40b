package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	logx "dyntimer/pkg/logx"
)

// fileStore appends runs to <prefix>.runs.jsonl. When a history limit is
// set, the file is compacted to the newest limit lines once it holds twice
// that many.
type fileStore struct {
	log logx.Logger
	fs  afero.Fs

	mu    sync.Mutex
	path  string
	f     afero.File
	lines int
	limit int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	runsPath := filepath.Join(dir, base+".runs.jsonl")

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lines, err := countLines(fs, runsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := fs.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("path", runsPath), logx.Int("lines", lines))
	return &fileStore{log: log, fs: fs, path: runsPath, f: f, lines: lines, limit: cfg.HistoryLimit}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRun(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.lines++
	if s.limit > 0 && s.lines >= 2*s.limit {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("history compact failed", logx.String("path", s.path), logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(_ context.Context, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}
	all, err := readRuns(s.fs, s.path)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// compactLocked rewrites the file with the newest limit records.
func (s *fileStore) compactLocked() error {
	all, err := readRuns(s.fs, s.path)
	if err != nil {
		return err
	}
	if len(all) > s.limit {
		all = all[len(all)-s.limit:]
	}

	tmp := s.path + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range all {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = s.f.Close()
	renameErr := s.fs.Rename(tmp, s.path)
	if renameErr != nil {
		_ = s.fs.Remove(tmp)
	}
	// The old handle is closed either way; appends continue on a fresh one.
	f, err = s.fs.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.f = nil
		return errors.Join(renameErr, err)
	}
	s.f = f
	if renameErr != nil {
		return renameErr
	}
	s.lines = len(all)
	return nil
}

func readRuns(fs afero.Fs, path string) ([]RunRecord, error) {
	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

func countLines(fs afero.Fs, path string) (int, error) {
	f, err := fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
