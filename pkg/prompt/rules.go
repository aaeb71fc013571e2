package prompt

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Rule scopes, in priority order.
const (
	ScopeProject = "project"
	ScopeUser    = "user"
	ScopePlugin  = "plugin"
)

// RuleFile is one markdown rule file contributing to the system prompt.
type RuleFile struct {
	Scope   string
	Path    string
	Content string
}

// LoadRules collects rule files from the project, user config, and
// plugin directories, in that priority order. Missing directories are
// not an error; unreadable files are skipped.
func LoadRules(projectRoot, configDir string, pluginPaths []string) []RuleFile {
	var rules []RuleFile
	rules = append(rules, readRuleDir(ScopeProject, filepath.Join(projectRoot, ".quill", "rules"))...)
	rules = append(rules, readRuleDir(ScopeUser, filepath.Join(configDir, "rules"))...)
	for _, p := range pluginPaths {
		rules = append(rules, readRuleDir(ScopePlugin, filepath.Join(p, "rules"))...)
	}
	return rules
}

func readRuleDir(scope, dir string) []RuleFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var rules []RuleFile
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		rules = append(rules, RuleFile{Scope: scope, Path: path, Content: content})
	}
	return rules
}

// Skill is one named capability document. The one-line description is
// advertised in the system prompt; the full body is injected only on
// trigger.
type Skill struct {
	Name        string
	Description string
	Body        string
	Path        string
}

// LoadSkills discovers skills under <root>/.quill/skills/<name>/SKILL.md
// and <configDir>/skills/<name>/SKILL.md. Project skills shadow user
// skills with the same name.
func LoadSkills(projectRoot, configDir string) []Skill {
	seen := make(map[string]bool)
	var skills []Skill
	for _, dir := range []string{
		filepath.Join(projectRoot, ".quill", "skills"),
		filepath.Join(configDir, "skills"),
	} {
		for _, s := range readSkillDir(dir) {
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			skills = append(skills, s)
		}
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

func readSkillDir(dir string) []Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var skills []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), "SKILL.md")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		body := strings.TrimSpace(string(data))
		if body == "" {
			continue
		}
		skills = append(skills, Skill{
			Name:        e.Name(),
			Description: skillDescription(body),
			Body:        body,
			Path:        path,
		})
	}
	return skills
}

// skillDescription takes the first non-empty line, minus any heading
// marker.
func skillDescription(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			return line
		}
	}
	return ""
}

// ParseSkillCommand recognizes the "/skill <name>" slash command in a
// user message. The remainder after the name is returned as the prompt.
func ParseSkillCommand(message string) (name, rest string, ok bool) {
	trimmed := strings.TrimSpace(message)
	if !strings.HasPrefix(trimmed, "/skill ") {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimSpace(trimmed[len("/skill "):]), " ", 2)
	if fields[0] == "" {
		return "", "", false
	}
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}
	return fields[0], rest, true
}
