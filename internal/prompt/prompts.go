package prompt

import (
	"runtime"
	"strings"
)

// Template ids.
const (
	IDSystem        = "system"
	IDMemory        = "memory"
	IDContext       = "context"
	IDUnderstanding = "understanding"
	IDPlanning      = "planning"
	IDExecutionPlan = "execution_plan"
	IDSummary       = "summary"
)

// Output contract of the memory prompt.
const (
	MemoryUpdated    = "memory updated"
	MemoryNotUpdated = "memory not updated"
)

// NoContext is what the context prompt answers when no memory applies.
const NoContext = "NONE"

// Environment describes where the assistant runs.
type Environment struct {
	OS        string
	Workspace string
	Shell     string
}

// HostEnvironment fills OS from the runtime. Shell falls back to /bin/bash.
func HostEnvironment(workspace, shell string) Environment {
	if shell == "" {
		shell = "/bin/bash"
		if runtime.GOOS == "windows" {
			shell = "cmd"
		}
	}
	return Environment{OS: runtime.GOOS + "/" + runtime.GOARCH, Workspace: workspace, Shell: shell}
}

// System renders the base instructions.
func (l *Library) System(env Environment) (string, error) {
	return l.Render(IDSystem, env)
}

// Memory renders the memory maintenance instructions.
func (l *Library) Memory() (string, error) {
	return l.Render(IDMemory, map[string]string{
		"Updated":    MemoryUpdated,
		"NotUpdated": MemoryNotUpdated,
	})
}

// ContextInjection renders the memory retrieval instructions.
func (l *Library) ContextInjection() (string, error) {
	return l.Render(IDContext, map[string]string{"None": NoContext})
}

// Understanding renders the classification instructions.
func (l *Library) Understanding() (string, error) {
	return l.Render(IDUnderstanding, nil)
}

// Planning renders the scaffolding plan instructions.
func (l *Library) Planning(frameworks []string) (string, error) {
	return l.Render(IDPlanning, map[string]string{"Frameworks": strings.Join(frameworks, ", ")})
}

// ExecutionPlan renders the phase two addendum carrying the plan.
func (l *Library) ExecutionPlan(plan string) (string, error) {
	return l.Render(IDExecutionPlan, map[string]string{"Plan": strings.TrimSpace(plan)})
}

// Summary renders the compaction instructions.
func (l *Library) Summary(maxWords int) (string, error) {
	return l.Render(IDSummary, map[string]int{"MaxWords": maxWords})
}

// WithContext appends retrieved memories to a query as a markdown section.
func WithContext(query, memories string) string {
	memories = strings.TrimSpace(memories)
	if memories == "" || strings.EqualFold(memories, NoContext) {
		return query
	}
	return query + "\n\n## User context\n" + memories
}

// MemoryOutcome reports whether a memory node reply says memory changed.
// Anything other than the two contract strings counts as not updated.
func MemoryOutcome(reply string) bool {
	r := strings.ToLower(strings.TrimSpace(reply))
	r = strings.Trim(r, "\"'`.")
	return r == MemoryUpdated
}
