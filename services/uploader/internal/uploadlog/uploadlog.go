// Package uploadlog keeps the per-station upload journal: an append-only text
// file with one sentence per upload event, echoed to the process logger.
package uploadlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Journal appends to <dir>/<STATION>_upload_log.txt.
type Journal struct {
	dir string
	log *slog.Logger
}

// New creates the journal directory if needed.
func New(dir string, log *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload log dir: %w", err)
	}
	return &Journal{dir: dir, log: log}, nil
}

// Path returns the journal file for station.
func (j *Journal) Path(station string) string {
	return filepath.Join(j.dir, strings.ToUpper(station)+"_upload_log.txt")
}

// Record appends msg as one line. The line goes out in a single write on an
// O_APPEND descriptor so concurrent writers never interleave within a line.
func (j *Journal) Record(level slog.Level, station, msg string) error {
	if j.log != nil {
		j.log.Log(context.Background(), level, msg, "station", station)
	}

	f, err := os.OpenFile(j.Path(station), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open upload log: %w", err)
	}
	if _, err := f.Write([]byte(msg + "\n")); err != nil {
		f.Close()
		return fmt.Errorf("append upload log: %w", err)
	}
	return f.Close()
}
