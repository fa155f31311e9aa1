package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// ToolName is the tool name of a script: skill and script stem joined by
// "__", with anything outside [A-Za-z0-9] replaced by "_".
func ToolName(skill, script string) string {
	stem := strings.TrimSuffix(script, extOf(script))
	return sanitize(skill) + "__" + sanitize(stem)
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
}

type scriptTool struct {
	name   string
	skill  string
	script string
	path   string
	runner RunnerFunc
}

func newScriptTool(s *Skill, script string, runner RunnerFunc) *scriptTool {
	p, _ := s.ScriptPath(script)
	return &scriptTool{
		name:   ToolName(s.Name, script),
		skill:  s.Name,
		script: script,
		path:   p,
		runner: runner,
	}
}

func (t *scriptTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.name,
		Desc: fmt.Sprintf("Run %s from the %s skill and return its JSON output.", t.script, t.skill),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"args": {
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Desc:     "Command line arguments passed to the script, one per element",
				Required: false,
			},
		}),
	}, nil
}

// ToolArgs is the JSON argument object accepted by script tools.
type ToolArgs struct {
	Args []string `json:"args"`
}

func (t *scriptTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args ToolArgs
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", t.name, err)
		}
	}
	if t.runner == nil {
		return "", fmt.Errorf("%s: no script runner configured", t.name)
	}

	r, err := t.runner(ctx)
	if err != nil {
		return "", err
	}
	out, err := r.RunJSON(ctx, t.path, args.Args)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SearchTool exposes skill search as a tool.
type SearchTool struct {
	loader *SkillLoader
}

func NewSearchTool(loader *SkillLoader) tool.InvokableTool {
	return &SearchTool{loader: loader}
}

func (t *SearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "skill_search",
		Desc: "Search installed skills. Returns matching skill names, descriptions and scripts.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "Substring or glob matched against skill names, descriptions and tags.",
				Required: false,
			},
		}),
	}, nil
}

func (t *SearchTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for skill_search: %w", err)
		}
	}

	matches := make([]map[string]any, 0)
	for _, s := range t.loader.Search(args.Query) {
		matches = append(matches, map[string]any{
			"name":        s.Name,
			"description": s.Description,
			"version":     s.Version,
			"tags":        s.Tags,
			"scripts":     s.Scripts,
		})
	}
	b, _ := json.Marshal(matches)
	return string(b), nil
}

// FindTool returns the tool with the given name.
func (l *SkillLoader) FindTool(ctx context.Context, name string) (tool.InvokableTool, bool) {
	if name == "skill_search" {
		return NewSearchTool(l), true
	}
	for _, t := range l.Tools() {
		info, err := t.Info(ctx)
		if err == nil && info.Name == name {
			return t, true
		}
	}
	return nil, false
}

// AllTools is every script tool plus skill_search.
func (l *SkillLoader) AllTools() []tool.InvokableTool {
	return append(l.Tools(), NewSearchTool(l))
}
