// Package prompts renders the Memphora prompt templates. Rendering is pure:
// no network calls are made.
package prompts

import (
	"log/slog"
	"regexp"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/telemetry"
)

const (
	// RecallContext asks the host to search memories about a topic.
	RecallContext = "recall_context"

	// SaveSession asks the host to persist a session summary.
	SaveSession = "save_session"

	// RoleUser is the only role the prompts render.
	RoleUser = "user"
)

// Argument describes one prompt argument.
type Argument struct {
	Name        string
	Description string
	Required    bool
}

// Prompt is a named template. Template and DescriptionTemplate use
// {{name}} placeholders.
type Prompt struct {
	Name                string
	Description         string
	Arguments           []Argument
	Template            string
	DescriptionTemplate string
}

// Message is one rendered prompt message.
type Message struct {
	Role string
	Text string
}

// Rendered is the result of filling a prompt's template.
type Rendered struct {
	Description string
	Messages    []Message
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

var builtin = []Prompt{
	{
		Name:        RecallContext,
		Description: "Search memories to get context about the user before responding",
		Arguments: []Argument{
			{Name: "topic", Description: "Topic to search for context about", Required: true},
		},
		Template:            "Before responding, search my memories for any relevant information about: {{topic}}",
		DescriptionTemplate: "Search memories about: {{topic}}",
	},
	{
		Name:        SaveSession,
		Description: "Save important information from the current conversation",
		Arguments: []Argument{
			{Name: "summary", Description: "Summary of what to remember from this session", Required: true},
		},
		Template:            "Please save the following information to my memories: {{summary}}",
		DescriptionTemplate: "Save session information",
	},
}

// Registry holds the prompt templates.
type Registry struct {
	prompts []Prompt
	metrics *telemetry.MetricsCollector
	logger  *slog.Logger
}

// NewRegistry returns a registry with the built-in prompts.
func NewRegistry(metrics *telemetry.MetricsCollector, logger *slog.Logger) *Registry {
	if metrics == nil {
		metrics = telemetry.NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := make([]Prompt, len(builtin))
	copy(p, builtin)
	return &Registry{prompts: p, metrics: metrics, logger: logger.With("component", "prompts")}
}

// List returns the prompts in registration order.
func (r *Registry) List() []Prompt {
	out := make([]Prompt, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// Get renders the named prompt with args. Missing arguments render as empty
// strings. An undefined name returns a not-found error naming it.
func (r *Registry) Get(name string, args map[string]string) (*Rendered, error) {
	for _, p := range r.prompts {
		if p.Name != name {
			continue
		}
		r.metrics.IncrementCounter(telemetry.MetricPromptsRendered, 1)
		r.logger.Debug("Rendering prompt", "prompt", name)
		return &Rendered{
			Description: Fill(p.DescriptionTemplate, args),
			Messages:    []Message{{Role: RoleUser, Text: Fill(p.Template, args)}},
		}, nil
	}
	return nil, errortypes.NotFoundError("prompt", name)
}

// Fill replaces every {{name}} placeholder in tmpl with args[name].
func Fill(tmpl string, args map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		return args[placeholder.FindStringSubmatch(m)[1]]
	})
}
