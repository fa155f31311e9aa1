package skills

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"gopkg.in/yaml.v3"

	"pharmaclaw/src/internal/scripts"
)

// ScriptExts are the script types indexed from a skill's scripts/ folder.
var ScriptExts = []string{".py", ".sh", ".js"}

type Skill struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Version     string   `yaml:"version" json:"version"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
	Directory   string   `yaml:"-" json:"directory"`
	FullContent string   `yaml:"-" json:"-"`
	Scripts     []string `yaml:"-" json:"scripts,omitempty"` // file names inside scripts/
}

// ScriptPath returns the absolute path of one of the skill's scripts.
func (s *Skill) ScriptPath(script string) (string, error) {
	if filepath.Base(script) != script {
		return "", fmt.Errorf("invalid script name: %s", script)
	}
	for _, name := range s.Scripts {
		if name == script {
			return filepath.Join(s.Directory, "scripts", script), nil
		}
	}
	return "", fmt.Errorf("%w: %s/scripts/%s", scripts.ErrScriptNotFound, s.Name, script)
}

// RunnerFunc supplies the runner a script tool executes with. It is
// called on every invocation so tools follow the selected interpreter.
type RunnerFunc func(ctx context.Context) (*scripts.Runner, error)

// StaticRunner always hands out r.
func StaticRunner(r *scripts.Runner) RunnerFunc {
	return func(context.Context) (*scripts.Runner, error) {
		return r, nil
	}
}

type SkillLoader struct {
	SkillsDir string
	runner    RunnerFunc

	mu     sync.RWMutex
	skills map[string]*Skill
	tools  []tool.InvokableTool
}

func NewSkillLoader(skillsDir string, runner RunnerFunc) *SkillLoader {
	return &SkillLoader{
		SkillsDir: skillsDir,
		runner:    runner,
		skills:    make(map[string]*Skill),
	}
}

// Load rescans the skills directory, replacing the current index.
func (l *SkillLoader) Load() error {
	found := make(map[string]*Skill)
	if _, err := os.Stat(l.SkillsDir); err == nil {
		err := filepath.WalkDir(l.SkillsDir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() || p == l.SkillsDir {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			skill, err := parseSkillDir(p)
			if err != nil {
				slog.Warn("Failed to parse skill directory", "path", p, "error", err)
				return filepath.SkipDir
			}
			if skill != nil {
				found[skill.Name] = skill
				slog.Debug("Loaded skill", "name", skill.Name, "version", skill.Version, "scripts", len(skill.Scripts))
			}
			return filepath.SkipDir
		})
		if err != nil {
			return err
		}
	}

	var tools []tool.InvokableTool
	for _, s := range sortedSkills(found) {
		for _, script := range s.Scripts {
			tools = append(tools, newScriptTool(s, script, l.runner))
		}
	}

	l.mu.Lock()
	l.skills = found
	l.tools = tools
	l.mu.Unlock()
	return nil
}

func parseSkillDir(dir string) (*Skill, error) {
	skillFile := filepath.Join(dir, "SKILL.md")
	content, err := os.ReadFile(skillFile)
	if err != nil {
		return nil, nil // not a skill directory
	}

	skill, err := ParseSkillFile(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", skillFile, err)
	}
	if skill.Name == "" {
		skill.Name = filepath.Base(dir)
	}
	skill.Directory = dir

	entries, err := os.ReadDir(filepath.Join(dir, "scripts"))
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && isScript(e.Name()) {
				skill.Scripts = append(skill.Scripts, e.Name())
			}
		}
	}
	return skill, nil
}

// ParseSkillFile reads SKILL.md content: YAML frontmatter between "---"
// lines followed by the markdown body.
func ParseSkillFile(content []byte) (*Skill, error) {
	parts := strings.SplitN(string(content), "---", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid skill format: missing frontmatter")
	}

	var skill Skill
	if err := yaml.Unmarshal([]byte(parts[1]), &skill); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	skill.FullContent = strings.TrimSpace(parts[2])
	return &skill, nil
}

func isScript(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range ScriptExts {
		if ext == e {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

// GetSkill looks a skill up by name, tolerating case and -/_ differences.
func (l *SkillLoader) GetSkill(name string) (*Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if s, ok := l.skills[name]; ok {
		return s, true
	}
	normalized := normalizeName(name)
	for _, s := range l.skills {
		if normalizeName(s.Name) == normalized {
			return s, true
		}
	}
	return nil, false
}

// ResolveScript finds script inside the named skill.
func (l *SkillLoader) ResolveScript(skillName, script string) (string, error) {
	s, ok := l.GetSkill(skillName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSkillNotFound, skillName)
	}
	return s.ScriptPath(script)
}

// GetSkills returns all skills sorted by name.
func (l *SkillLoader) GetSkills() []*Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedSkills(l.skills)
}

func sortedSkills(m map[string]*Skill) []*Skill {
	res := make([]*Skill, 0, len(m))
	for _, s := range m {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Search matches query against name, description and tags. A query with
// * or ? is a glob, anything else a case-insensitive substring. An empty
// query matches everything.
func (l *SkillLoader) Search(query string) []*Skill {
	query = strings.ToLower(strings.TrimSpace(query))
	var matches []*Skill
	for _, s := range l.GetSkills() {
		if query == "" || matchSkill(s, query) {
			matches = append(matches, s)
		}
	}
	return matches
}

func matchSkill(s *Skill, query string) bool {
	fields := append([]string{s.Name, s.Description}, s.Tags...)
	glob := strings.ContainsAny(query, "*?")
	for _, f := range fields {
		f = strings.ToLower(f)
		if glob {
			if ok, _ := path.Match(query, f); ok {
				return true
			}
		} else if strings.Contains(f, query) {
			return true
		}
	}
	return false
}

// Tools returns one invokable tool per indexed script.
func (l *SkillLoader) Tools() []tool.InvokableTool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]tool.InvokableTool(nil), l.tools...)
}
