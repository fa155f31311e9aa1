package skills

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the loader whenever something changes below the skills
// directory. It blocks until ctx is done. onReload, if set, is called
// after every reload.
func (l *SkillLoader) Watch(ctx context.Context, onReload func([]*Skill)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := os.MkdirAll(l.SkillsDir, 0755); err != nil {
		return err
	}
	l.addWatches(watcher)
	slog.Info("Watching skills directory", "path", l.SkillsDir)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			pending = time.After(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Skills watcher error", "error", err)

		case <-pending:
			pending = nil
			if err := l.Load(); err != nil {
				slog.Error("Failed to reload skills", "error", err)
				continue
			}
			l.addWatches(watcher)
			skills := l.GetSkills()
			slog.Info("Reloaded skills", "count", len(skills))
			if onReload != nil {
				onReload(skills)
			}
		}
	}
}

// addWatches watches the root and every skill and scripts directory.
func (l *SkillLoader) addWatches(w *fsnotify.Watcher) {
	dirs := []string{l.SkillsDir}
	entries, _ := os.ReadDir(l.SkillsDir)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(l.SkillsDir, e.Name())
		dirs = append(dirs, dir, filepath.Join(dir, "scripts"))
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err == nil {
			_ = w.Add(d)
		}
	}
}
