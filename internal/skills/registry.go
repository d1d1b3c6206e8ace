package skills

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Result is the normalized outcome of a tool invocation, folded by the
// orchestrator into an assistant message.
type Result struct {
	Message string
	Type    string
	Data    any
	// TaskID is set by campaign-launching tools so the caller can poll
	// delivery progress.
	TaskID string
}

// Result types.
const (
	TypeText          = "text"
	TypeError         = "error"
	TypeCandidateList = "candidate-list"
)

type Handler func(ctx context.Context, args map[string]any) (*Result, error)

// UnknownToolError reports a dispatch for a tool no skill declares.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

type toolEntry struct {
	skill       string
	signature   string
	description string
	handler     Handler
	gated       bool
}

// Registry maps tool identifiers to handlers. It is composed once at
// startup; registration after that is a programming error.
type Registry struct {
	tools map[string]toolEntry
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]toolEntry)}
}

type ToolSpec struct {
	Name        string
	Skill       string
	Signature   string
	Description string
	Handler     Handler
	// Gated tools require user confirmation before they execute.
	Gated bool
}

func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %q has no handler", spec.Name)
	}
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("duplicate tool %q", spec.Name)
	}
	r.tools[spec.Name] = toolEntry{
		skill:       spec.Skill,
		signature:   spec.Signature,
		description: spec.Description,
		handler:     spec.Handler,
		gated:       spec.Gated,
	}
	r.order = append(r.order, spec.Name)
	return nil
}

// Dispatch invokes the named tool. Handlers report operational failures
// through Result with TypeError; an error return here means the dispatch
// itself could not happen.
func (r *Registry) Dispatch(ctx context.Context, tool string, args map[string]any) (*Result, error) {
	entry, ok := r.tools[tool]
	if !ok {
		return nil, &UnknownToolError{Tool: tool}
	}
	return entry.handler(ctx, args)
}

func (r *Registry) Has(tool string) bool {
	_, ok := r.tools[tool]
	return ok
}

// IsGated reports whether the tool must round-trip through user
// confirmation before executing.
func (r *Registry) IsGated(tool string) bool {
	entry, ok := r.tools[tool]
	return ok && entry.gated
}

// Catalog renders the tool list for the model's system prompt, one line per
// tool in registration order.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, name := range r.order {
		entry := r.tools[name]
		fmt.Fprintf(&b, "- %s(%s): %s", name, entry.signature, entry.description)
		if entry.gated {
			b.WriteString(" Requires user confirmation.")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ToolNames returns all registered identifiers, sorted.
func (r *Registry) ToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
