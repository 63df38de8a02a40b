package storage

import (
	"errors"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// HistoryLimit caps retained runs. 0 keeps everything.
	HistoryLimit int
	// Fs backs the file driver. nil means the OS filesystem.
	Fs afero.Fs
}

// RunRecord is one persisted task lifecycle event.
type RunRecord struct {
	At       time.Time `json:"at"`
	Instance string    `json:"instance"`
	TaskID   uint32    `json:"task_id"`
	Name     string    `json:"name,omitempty"`
	Mode     string    `json:"mode"`
	Event    string    `json:"event"`
	Runs     uint64    `json:"runs"`
	TookMS   int64     `json:"took_ms"`
	Error    string    `json:"error,omitempty"`
}
