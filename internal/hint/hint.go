// Package hint loads service-specific usage hints and injects them into the
// service info tool output. Hints come from a JSON file, matched to the
// service URL by glob-style patterns, or directly from the command line.
package hint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ServiceHint holds guidance for services whose URL matches Pattern.
// Higher Priority hints override lower ones during merging.
type ServiceHint struct {
	Pattern       string                  `json:"pattern"`
	Priority      int                     `json:"priority,omitempty"`
	ServiceType   string                  `json:"service_type,omitempty"`
	KnownIssues   []string                `json:"known_issues,omitempty"`
	Workarounds   []string                `json:"workarounds,omitempty"`
	FieldHints    map[string]FieldHint    `json:"field_hints,omitempty"`
	EntityHints   map[string]EntityHint   `json:"entity_hints,omitempty"`
	FunctionHints map[string]FunctionHint `json:"function_hints,omitempty"`
	Examples      []Example               `json:"examples,omitempty"`
	Notes         []string                `json:"notes,omitempty"`
}

// FieldHint documents a single field.
type FieldHint struct {
	Type        string `json:"type,omitempty"`
	Format      string `json:"format,omitempty"`
	Example     string `json:"example,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// EntityHint documents an entity set.
type EntityHint struct {
	Description string   `json:"description,omitempty"`
	Notes       []string `json:"notes,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// FunctionHint documents a function import.
type FunctionHint struct {
	Description string   `json:"description,omitempty"`
	Parameters  []string `json:"parameters,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// Example is a worked query example.
type Example struct {
	Description string `json:"description"`
	Query       string `json:"query"`
	Note        string `json:"note,omitempty"`
}

// hintFile is the on-disk format: a version marker and a hint list.
type hintFile struct {
	Version string        `json:"version"`
	Hints   []ServiceHint `json:"hints"`
}

// cliHintPriority places command-line hints above anything from a file.
const cliHintPriority = 1000

// Manager holds loaded hints and resolves them against service URLs.
type Manager struct {
	hints     []ServiceHint
	cliHint   *ServiceHint
	hintsFile string
}

// NewManager returns an empty hint manager.
func NewManager() *Manager {
	return &Manager{}
}

// LoadFromFile loads hints from path. With an empty path the default
// locations are tried: hints.json next to the binary, then in the working
// directory. A missing default file is not an error.
func (m *Manager) LoadFromFile(path string) error {
	if path == "" {
		path = findDefaultHintsFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read hints file: %w", err)
	}

	var file hintFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse hints file: %w", err)
	}

	m.hints = file.Hints
	m.hintsFile = path
	return nil
}

func findDefaultHintsFile() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "hints.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("hints.json"); err == nil {
		return "hints.json"
	}
	return ""
}

// SetCLIHint installs a hint given on the command line. The argument is
// parsed as a ServiceHint JSON object; anything that doesn't parse is
// treated as a free-text note applying to every service.
func (m *Manager) SetCLIHint(hintJSON string) error {
	var hint ServiceHint
	if err := json.Unmarshal([]byte(hintJSON), &hint); err != nil {
		hint = ServiceHint{
			Pattern: "*",
			Notes:   []string{hintJSON},
		}
	}
	hint.Priority = cliHintPriority
	m.cliHint = &hint
	return nil
}

// GetHints merges all hints matching serviceURL into a single document,
// lowest priority first so higher priorities override scalar fields. Returns
// nil when nothing matches.
func (m *Manager) GetHints(serviceURL string) map[string]interface{} {
	var matching []ServiceHint
	if m.cliHint != nil {
		matching = append(matching, *m.cliHint)
	}
	for _, h := range m.hints {
		if matchesPattern(serviceURL, h.Pattern) {
			matching = append(matching, h)
		}
	}
	if len(matching) == 0 {
		return nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Priority < matching[j].Priority
	})

	result := make(map[string]interface{})
	for _, h := range matching {
		mergeHint(result, h)
	}

	if m.cliHint != nil {
		result["hint_source"] = "CLI argument"
	} else if m.hintsFile != "" {
		result["hint_source"] = fmt.Sprintf("Hints file: %s", m.hintsFile)
	}
	return result
}

func mergeHint(result map[string]interface{}, h ServiceHint) {
	if h.ServiceType != "" {
		result["service_type"] = h.ServiceType
	}

	mergeNotes := func(key string, values []string) {
		if len(values) == 0 {
			return
		}
		existing, _ := result[key].([]string)
		result[key] = appendUnique(existing, values)
	}
	mergeNotes("known_issues", h.KnownIssues)
	mergeNotes("workarounds", h.Workarounds)
	mergeNotes("notes", h.Notes)

	if len(h.FieldHints) > 0 {
		target := subMap(result, "field_hints")
		for name, fh := range h.FieldHints {
			target[name] = fh
		}
	}
	if len(h.EntityHints) > 0 {
		target := subMap(result, "entity_hints")
		for name, eh := range h.EntityHints {
			target[name] = eh
		}
	}
	if len(h.FunctionHints) > 0 {
		target := subMap(result, "function_hints")
		for name, fh := range h.FunctionHints {
			target[name] = fh
		}
	}
	if len(h.Examples) > 0 {
		existing, _ := result["examples"].([]Example)
		result["examples"] = append(existing, h.Examples...)
	}
}

func subMap(result map[string]interface{}, key string) map[string]interface{} {
	if existing, ok := result[key].(map[string]interface{}); ok {
		return existing
	}
	target := make(map[string]interface{})
	result[key] = target
	return target
}

func appendUnique(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	out := existing
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// matchesPattern matches a URL against a glob pattern where * matches any
// run of characters and ? matches a single character. Matching is
// case-insensitive.
func matchesPattern(url, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.EqualFold(url, pattern) || pattern == "*" {
		return true
	}

	var re strings.Builder
	re.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			re.WriteString(".*")
		case '?':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re.WriteString("$")

	matched, err := regexp.MatchString(re.String(), url)
	return err == nil && matched
}
