package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pharmaclaw/src/internal/tasks"
	"pharmaclaw/src/internal/watchlist"
)

type Storage struct {
	baseDir string
	mu      sync.RWMutex
}

// CronTxtJob is one line of cron.txt: six cron fields, a skill, a script
// and optional script arguments.
type CronTxtJob struct {
	Spec   string
	Skill  string
	Script string
	Args   []string
}

func New(baseDir string) (*Storage, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "skills"), filepath.Join(baseDir, "reports")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return &Storage{baseDir: baseDir}, nil
}

func (s *Storage) GetBaseDir() string {
	return s.baseDir
}

func (s *Storage) ReportsDir() string {
	return filepath.Join(s.baseDir, "reports")
}

// CopySkills copies a bundled skills tree into the storage skills
// directory without overwriting existing files.
func (s *Storage) CopySkills(srcDir string) error {
	destDir := filepath.Join(s.baseDir, "skills")
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		return nil
	}

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		destPath := filepath.Join(destDir, relPath)
		if info.IsDir() {
			return os.MkdirAll(destPath, info.Mode())
		}
		if _, err := os.Stat(destPath); err == nil {
			return nil
		}
		return copyFile(path, destPath, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return os.Chmod(dst, mode)
}

func (s *Storage) SaveState(name string, state interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, name+".json")
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *Storage) LoadState(name string, state interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := filepath.Join(s.baseDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, state)
}

func (s *Storage) LoadCronTxt() ([]CronTxtJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := filepath.Join(s.baseDir, "cron.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var jobs []CronTxtJob
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}
		jobs = append(jobs, CronTxtJob{
			Spec:   strings.Join(fields[:6], " "),
			Skill:  fields[6],
			Script: fields[7],
			Args:   fields[8:],
		})
	}
	return jobs, nil
}

func checkID(id string) error {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

func (s *Storage) saveRecord(dir, id string, v any) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recordDir := filepath.Join(s.baseDir, dir)
	if err := os.MkdirAll(recordDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(recordDir, id+".json"), data, 0644)
}

func (s *Storage) loadRecord(dir, id string, v any) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.baseDir, dir, id+".json"))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Storage) deleteRecord(dir, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.Remove(filepath.Join(s.baseDir, dir, id+".json"))
}

// listRecords decodes every JSON file in dir, skipping
// unreadable ones.
func listRecords[T any](s *Storage, dir string) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recordDir := filepath.Join(s.baseDir, dir)
	entries, err := os.ReadDir(recordDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var res []*T
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(recordDir, entry.Name()))
		if err != nil {
			continue
		}
		var item T
		if err := json.Unmarshal(data, &item); err == nil {
			res = append(res, &item)
		}
	}
	return res, nil
}

func (s *Storage) SaveTask(t *tasks.Task) error {
	return s.saveRecord("tasks", t.ID, t)
}

func (s *Storage) LoadTask(id string) (*tasks.Task, error) {
	var t tasks.Task
	if err := s.loadRecord("tasks", id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Storage) ListTasks() ([]*tasks.Task, error) {
	return listRecords[tasks.Task](s, "tasks")
}

func (s *Storage) DeleteTask(id string) error {
	return s.deleteRecord("tasks", id)
}

func (s *Storage) SaveWatch(e *watchlist.Entry) error {
	return s.saveRecord("watchlist", e.ID, e)
}

func (s *Storage) LoadWatch(id string) (*watchlist.Entry, error) {
	var e watchlist.Entry
	if err := s.loadRecord("watchlist", id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListWatchlist returns entries oldest first so reports keep a stable
// compound order.
func (s *Storage) ListWatchlist() ([]*watchlist.Entry, error) {
	entries, err := listRecords[watchlist.Entry](s, "watchlist")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Created.Before(entries[j].Created)
	})
	return entries, nil
}

func (s *Storage) DeleteWatch(id string) error {
	return s.deleteRecord("watchlist", id)
}
