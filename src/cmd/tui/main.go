package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	flag "github.com/spf13/pflag"

	"pharmaclaw/src/internal/config"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/skills"
	"pharmaclaw/src/internal/storage"
	"pharmaclaw/src/internal/watchlist"
)

var sections = []string{"Interpreter", "Skills", "Watchlist", "Tasks", "History"}

// snapshot is everything the dashboard shows, read in one pass.
type snapshot struct {
	interp  map[string]any
	skills  []*skills.Skill
	watch   []*watchlist.Entry
	tasks   []gateway.TaskView
	runs    []*storage.Run
	err     error
	fetched time.Time
}

type snapshotMsg snapshot

type Model struct {
	viewport viewport.Model
	list     list.Model
	tabIndex int
	load     func() snapshot
	data     snapshot
	loading  bool
}

type item string

func (i item) FilterValue() string { return string(i) }

type itemDelegate struct{}

func (d itemDelegate) Height() int { return 1 }

func (d itemDelegate) Spacing() int { return 0 }

func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(item)
	if !ok {
		return
	}
	var st lipgloss.Style
	if index == m.Index() {
		st = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).PaddingLeft(2)
	} else {
		st = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(2)
	}
	fmt.Fprint(w, st.Render(string(i)))
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func initialModel(load func() snapshot) Model {
	m := Model{load: load, loading: true}
	m.viewport = viewport.New(100, 20)

	items := make([]list.Item, len(sections))
	for i, s := range sections {
		items[i] = item(s)
	}
	m.list = list.New(items, itemDelegate{}, 80, len(sections)+2)
	m.list.Title = "PharmaClaw"
	m.list.SetShowHelp(false)
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(false)
	return m
}

func (m Model) refresh() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		return snapshotMsg(load())
	}
}

func (m Model) Init() tea.Cmd {
	return m.refresh()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	cmds := []tea.Cmd{}

	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)
	m.tabIndex = m.list.Index()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width == 0 || msg.Height == 0 {
			return m, nil
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-len(sections)-10, 5)
		m.list.SetWidth(msg.Width)
	case snapshotMsg:
		m.data = snapshot(msg)
		m.loading = false
		m.viewport.GotoTop()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if !m.loading {
				m.loading = true
				cmds = append(cmds, m.refresh())
			}
		case "pgdown", "pgup":
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}
	m.viewport.SetContent(tabView(m))
	return m, tea.Batch(cmds...)
}

func tabView(m Model) string {
	if m.loading && m.data.fetched.IsZero() {
		return "Loading..."
	}
	if m.data.err != nil {
		return failStyle.Render("Error: " + m.data.err.Error())
	}
	switch m.tabIndex {
	case 0:
		return interpreterView(m.data.interp)
	case 1:
		return skillsView(m.data.skills)
	case 2:
		return watchlistView(m.data.watch)
	case 3:
		return tasksView(m.data.tasks)
	case 4:
		return historyView(m.data.runs)
	}
	return "Invalid tab"
}

func interpreterView(status map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Required module: %v\n\n", status["module"])
	if sel, ok := status["selected"]; ok {
		data, _ := json.Marshal(sel)
		b.WriteString(okStyle.Render("Selected: "+string(data)) + "\n\n")
	} else {
		b.WriteString(failStyle.Render(fmt.Sprintf("%v", status["error"])) + "\n\n")
	}
	b.WriteString("Candidates (in order):\n")
	data, _ := json.MarshalIndent(status["candidates"], "", "  ")
	b.Write(data)
	return b.String()
}

func skillsView(found []*skills.Skill) string {
	if len(found) == 0 {
		return dimStyle.Render("No skills installed.")
	}
	var b strings.Builder
	for _, s := range found {
		fmt.Fprintf(&b, "%s %s\n", lipgloss.NewStyle().Bold(true).Render(s.Name), dimStyle.Render(s.Version))
		if s.Description != "" {
			fmt.Fprintf(&b, "  %s\n", s.Description)
		}
		if len(s.Scripts) > 0 {
			fmt.Fprintf(&b, "  scripts: %s\n", strings.Join(s.Scripts, ", "))
		}
	}
	return b.String()
}

func watchlistView(entries []*watchlist.Entry) string {
	if len(entries) == 0 {
		return dimStyle.Render("Watchlist is empty.")
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%-24s %s\n", e.Label(), dimStyle.Render(e.Compound))
	}
	return b.String()
}

func tasksView(views []gateway.TaskView) string {
	if len(views) == 0 {
		return dimStyle.Render("No tasks.")
	}
	var b strings.Builder
	for _, v := range views {
		state := dimStyle.Render("inactive")
		if v.Active {
			state = okStyle.Render("active")
		}
		fmt.Fprintf(&b, "%s  %q  %s  %s\n", v.Name, v.CronExpression, v.Kind, state)
		if !v.LastRun.IsZero() {
			fmt.Fprintf(&b, "  last run %s %s\n", v.LastRun.Format(time.RFC3339), exitLabel(v.LastExitCode))
		}
		if v.NextRun != nil {
			fmt.Fprintf(&b, "  next run %s\n", v.NextRun.Format(time.RFC3339))
		}
	}
	return b.String()
}

func historyView(runs []*storage.Run) string {
	if len(runs) == 0 {
		return dimStyle.Render("No runs recorded.")
	}
	var b strings.Builder
	for _, r := range runs {
		fmt.Fprintf(&b, "%s  %-7s %s  %s\n", r.StartedAt.Local().Format("2006-01-02 15:04"), r.Kind, exitLabel(r.ExitCode), r.Subject)
		if r.Error != "" {
			fmt.Fprintf(&b, "  %s\n", failStyle.Render(firstLine(r.Error)))
		}
	}
	return b.String()
}

func exitLabel(code int) string {
	if code == 0 {
		return okStyle.Render("ok")
	}
	return failStyle.Render(fmt.Sprintf("exit=%d", code))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func helpView(m Model) string {
	status := ""
	if m.loading {
		status = " | refreshing..."
	} else if !m.data.fetched.IsZero() {
		status = " | updated " + m.data.fetched.Format("15:04:05")
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("242")).
		Padding(0, 1).
		Border(lipgloss.NormalBorder()).
		Render("↑↓ section | pgup/pgdown scroll | r refresh | q quit" + status)
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Top,
		lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(m.list.View()),
		m.viewport.View(),
		helpView(m),
	)
}

// loader reads a snapshot through gw. Scheduling is never started here,
// the dashboard only reads.
func loader(ctx context.Context, gw *gateway.Gateway) func() snapshot {
	return func() snapshot {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		snap := snapshot{fetched: time.Now()}
		if _, err := gw.ReloadSkills(); err != nil {
			snap.err = err
			return snap
		}
		snap.interp = gw.InterpreterStatus(ctx)
		snap.skills = gw.Skills.GetSkills()
		if snap.watch, snap.err = gw.Storage.ListWatchlist(); snap.err != nil {
			return snap
		}
		if snap.tasks, snap.err = gw.ListTasks(); snap.err != nil {
			return snap
		}
		snap.runs, snap.err = gw.History.List(ctx, "", 50)
		return snap
	}
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "config path")
	flag.Parse()

	// the alt screen owns stdout; keep logs quiet unless something breaks
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	st, err := storage.New(cfg.StorageDir)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	gw, err := gateway.New(cfg, st)
	if err != nil {
		slog.Error("failed to initialize gateway", "error", err)
		os.Exit(1)
	}
	defer gw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	p := tea.NewProgram(initialModel(loader(ctx, gw)), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		slog.Error("TUI error", "err", err)
		os.Exit(1)
	}
}
