// Package inbox watches a directory for dropped backup files and merges
// them into the note store.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/backup"
	"github.com/starford/zettenote/internal/checksum"
	"github.com/starford/zettenote/internal/storage"
)

// settleDelay is how long a file must stay quiet before it is imported.
const settleDelay = 200 * time.Millisecond

// SettingPrefix prefixes the settings key that records the checksum of
// the last import of each inbox file.
const SettingPrefix = "inbox:"

// Importer is the subset of the note service the inbox needs.
type Importer interface {
	Import(ctx context.Context, raw []byte, mode backup.Mode) (int, error)
	Setting(ctx context.Context, key string) (json.RawMessage, error)
	SetSetting(ctx context.Context, key string, value json.RawMessage) error
}

// ImportCallback is called after a file has been merged.
type ImportCallback func(name string, notes int)

// Watch imports the backups already in dir, then watches it and imports
// every .json file that is created or rewritten until ctx is cancelled.
// A file whose content matches its last import is skipped.
func Watch(ctx context.Context, imp Importer, dir string, logger *slog.Logger, cb ImportCallback) error {
	box, err := storage.NewFS(dir)
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	defer w.Close()

	if err := w.Add(box.Root()); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", box.Root(), err)
	}

	logger.Info("inbox: started", slog.String("dir", box.Root()))

	entries, err := box.List()
	if err != nil {
		logger.Warn("inbox: initial scan failed", slog.String("error", err.Error()))
	}
	for _, e := range entries {
		process(ctx, imp, box, e.Name, logger, cb)
	}

	pending := make(map[string]struct{})
	var settle *time.Timer
	var settleCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)
			clear(pending)
			for _, name := range names {
				process(ctx, imp, box, name, logger, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !accepted(name) {
				continue
			}
			pending[name] = struct{}{}
			if settle == nil {
				settle = time.NewTimer(settleDelay)
				settleCh = settle.C
			} else {
				settle.Reset(settleDelay)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// accepted reports whether name looks like a visible backup file. Atomic
// writers use hidden temp names that are skipped here.
func accepted(name string) bool {
	return filepath.Ext(name) == storage.Ext && name[0] != '.'
}

// process merges one inbox file unless its checksum matches the last import.
func process(ctx context.Context, imp Importer, box storage.Archive, name string, logger *slog.Logger, cb ImportCallback) {
	data, err := box.Read(name)
	if err != nil {
		logger.Warn("inbox: read failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	}

	key := SettingPrefix + name
	if prev, err := lastChecksum(ctx, imp, key); err != nil {
		logger.Warn("inbox: checksum lookup failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	} else if checksum.Matches(data, prev) {
		logger.Debug("inbox: unchanged", slog.String("file", name))
		return
	}

	n, err := imp.Import(ctx, data, backup.ModeMerge)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, apperr.ErrValidation) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "inbox: import failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	}

	sum, _ := json.Marshal(checksum.Sum(data))
	if err := imp.SetSetting(ctx, key, sum); err != nil {
		logger.Warn("inbox: record checksum failed", slog.String("file", name), slog.String("error", err.Error()))
	}
	logger.Info("inbox: imported", slog.String("file", name), slog.Int("notes", n))
	if cb != nil {
		cb(name, n)
	}
}

func lastChecksum(ctx context.Context, imp Importer, key string) (string, error) {
	raw, err := imp.Setting(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var sum string
	if err := json.Unmarshal(raw, &sum); err != nil {
		// A malformed record just forces a re-import.
		return "", nil
	}
	return sum, nil
}
