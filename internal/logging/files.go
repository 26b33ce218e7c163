package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// OpenFileHandler appends records at or above level to path, creating parent
// directories as needed. The caller owns the returned closer.
func OpenFileHandler(path, format, level string) (slog.Handler, io.Closer, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, nil, err
	}
	lvl := new(slog.LevelVar)
	lvl.Set(parseLevel(level))
	if format == formatJSON {
		return newJSONHandler(file, lvl, false), file, nil
	}
	return newConsoleHandler(file, lvl, false), file, nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
