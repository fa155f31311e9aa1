package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pharmaclaw/src/internal/tasks"
	"pharmaclaw/src/internal/watchlist"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestNewCreatesLayout(t *testing.T) {
	st := newTestStorage(t)
	for _, dir := range []string{"skills", "reports"} {
		if _, err := os.Stat(filepath.Join(st.GetBaseDir(), dir)); err != nil {
			t.Errorf("expected %s dir: %v", dir, err)
		}
	}
	if st.ReportsDir() != filepath.Join(st.GetBaseDir(), "reports") {
		t.Errorf("unexpected reports dir %s", st.ReportsDir())
	}
}

func TestTaskCRUD(t *testing.T) {
	st := newTestStorage(t)
	task := &tasks.Task{ID: "t1", Name: "nightly", CronExpression: "0 0 2 * * *", Kind: tasks.KindWatchlistReport, Active: true}
	if err := st.SaveTask(task); err != nil {
		t.Fatal(err)
	}

	got, err := st.LoadTask("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "nightly" || got.Kind != tasks.KindWatchlistReport || !got.Active {
		t.Errorf("unexpected task %+v", got)
	}

	list, err := st.ListTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 task, got %d", len(list))
	}

	if err := st.DeleteTask("t1"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadTask("t1"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist after delete, got %v", err)
	}
}

func TestRejectsTraversalIDs(t *testing.T) {
	st := newTestStorage(t)
	for _, id := range []string{"", "../x", "a/b", ".hidden"} {
		if err := st.SaveTask(&tasks.Task{ID: id}); err == nil {
			t.Errorf("SaveTask(%q) should fail", id)
		}
		if _, err := st.LoadWatch(id); err == nil {
			t.Errorf("LoadWatch(%q) should fail", id)
		}
	}
}

func TestWatchlistOrder(t *testing.T) {
	st := newTestStorage(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []*watchlist.Entry{
		{ID: "zz", Compound: "CCO", Created: base},
		{ID: "aa", Compound: "CC(=O)O", Name: "Acetic acid", Created: base.Add(time.Hour)},
	}
	for _, e := range entries {
		if err := st.SaveWatch(e); err != nil {
			t.Fatal(err)
		}
	}

	list, err := st.ListWatchlist()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "zz" || list[1].ID != "aa" {
		t.Fatalf("expected creation order, got %+v", list)
	}

	if err := st.DeleteWatch("zz"); err != nil {
		t.Fatal(err)
	}
	list, _ = st.ListWatchlist()
	if len(list) != 1 {
		t.Errorf("expected 1 entry after delete, got %d", len(list))
	}
}

func TestLoadCronTxt(t *testing.T) {
	st := newTestStorage(t)
	content := `# nightly lookups
0 0 3 * * * chemistry-query query_pubchem.py --compound aspirin --type info

0 */5 * * * * too-short
`
	if err := os.WriteFile(filepath.Join(st.GetBaseDir(), "cron.txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	jobs, err := st.LoadCronTxt()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	j := jobs[0]
	if j.Spec != "0 0 3 * * *" || j.Skill != "chemistry-query" || j.Script != "query_pubchem.py" {
		t.Errorf("unexpected job %+v", j)
	}
	if len(j.Args) != 4 || j.Args[1] != "aspirin" {
		t.Errorf("unexpected args %v", j.Args)
	}
}

func TestCopySkillsKeepsExisting(t *testing.T) {
	st := newTestStorage(t)
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "chem", "scripts"), 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(src, "chem", "SKILL.md"), []byte("bundled"), 0644)
	os.WriteFile(filepath.Join(src, "chem", "scripts", "run.py"), []byte("print(1)"), 0755)

	dest := filepath.Join(st.GetBaseDir(), "skills", "chem")
	os.MkdirAll(dest, 0755)
	os.WriteFile(filepath.Join(dest, "SKILL.md"), []byte("local"), 0644)

	if err := st.CopySkills(src); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dest, "SKILL.md"))
	if string(data) != "local" {
		t.Errorf("existing SKILL.md was overwritten: %q", data)
	}
	if _, err := os.Stat(filepath.Join(dest, "scripts", "run.py")); err != nil {
		t.Errorf("script not copied: %v", err)
	}
}
