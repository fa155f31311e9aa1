package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"pharmaclaw/src/internal/tools/webfetch"
)

var ErrSkillNotFound = errors.New("skill not found")

// maxSkillFileSize bounds a downloaded SKILL.md.
const maxSkillFileSize = 1 << 20

// RemoveSkill deletes a skill directory. Names may differ from the
// directory by -/_ only.
func RemoveSkill(skillsDir, skillName string) error {
	if skillName == "" || filepath.Base(skillName) != skillName || strings.HasPrefix(skillName, ".") {
		return fmt.Errorf("invalid skill name: %s", skillName)
	}

	for _, candidate := range []string{
		skillName,
		strings.ReplaceAll(skillName, "_", "-"),
		strings.ReplaceAll(skillName, "-", "_"),
	} {
		skillPath := filepath.Join(skillsDir, candidate)
		if _, err := os.Stat(skillPath); err == nil {
			slog.Info("Removing skill", "name", candidate, "path", skillPath)
			return os.RemoveAll(skillPath)
		}
	}
	return fmt.Errorf("%w: %s", ErrSkillNotFound, skillName)
}

// InstallSkill downloads a SKILL.md from rawURL into skillsDir/<name>.
// The name comes from the frontmatter unless given. Existing skills are
// left untouched.
func InstallSkill(ctx context.Context, skillsDir, name, rawURL string) (*Skill, error) {
	if u, err := url.Parse(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid skill url: %q", rawURL)
	}
	status, _, content, err := webfetch.Fetch(ctx, rawURL, maxSkillFileSize)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", rawURL, status)
	}

	skill, err := ParseSkillFile(content)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = skill.Name
	}
	name = strings.ReplaceAll(name, "/", "-")
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid skill name: %q", name)
	}
	if skill.Name == "" {
		skill.Name = name
	}

	skillDir := filepath.Join(skillsDir, name)
	if _, err := os.Stat(skillDir); err == nil {
		return nil, fmt.Errorf("skill %q is already installed", name)
	}
	if err := os.MkdirAll(skillDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create skill directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), content, 0644); err != nil {
		return nil, fmt.Errorf("failed to save SKILL.md: %w", err)
	}
	skill.Directory = skillDir
	slog.Info("Installed skill", "name", name, "url", rawURL)
	return skill, nil
}
