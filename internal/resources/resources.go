// Package resources exposes the user's stored memories and summary as
// read-only MCP resources.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/memphora"
	"github.com/memphora/memphora-mcp/internal/telemetry"
)

const (
	// Scheme is the URI scheme of every Memphora resource.
	Scheme = "memphora"

	// MIMEType is the content type of every resource body.
	MIMEType = "application/json"

	// ReadLimit caps how many memories the memories resource returns.
	ReadLimit = 100
)

// Reader is the subset of the Memphora client resources need.
type Reader interface {
	ListMemories(ctx context.Context, userID string, limit int) ([]memphora.Memory, error)
	UserSummary(ctx context.Context, userID string) (map[string]interface{}, error)
}

// Descriptor is the listing entry for a resource.
type Descriptor struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
}

// Registry lists and reads resources for one configured user.
type Registry struct {
	reader  Reader
	userID  string
	metrics *telemetry.MetricsCollector
	logger  *slog.Logger
}

// NewRegistry creates a registry scoped to userID.
func NewRegistry(reader Reader, userID string, metrics *telemetry.MetricsCollector, logger *slog.Logger) *Registry {
	if userID == "" {
		userID = memphora.DefaultUserID
	}
	if metrics == nil {
		metrics = telemetry.NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		reader:  reader,
		userID:  userID,
		metrics: metrics,
		logger:  logger.With("component", "resources"),
	}
}

// MemoriesURI returns the URI of the memories resource for userID.
func MemoriesURI(userID string) string {
	return fmt.Sprintf("%s://users/%s/memories", Scheme, userID)
}

// SummaryURI returns the URI of the summary resource for userID.
func SummaryURI(userID string) string {
	return fmt.Sprintf("%s://users/%s/summary", Scheme, userID)
}

// List returns the two resources available to the configured user.
func (r *Registry) List() []Descriptor {
	return []Descriptor{
		{
			URI:         MemoriesURI(r.userID),
			Name:        "My Memories",
			Description: "All stored memories for the current user",
			MIMEType:    MIMEType,
		},
		{
			URI:         SummaryURI(r.userID),
			Name:        "Memory Summary",
			Description: "Summary of stored memories and statistics",
			MIMEType:    MIMEType,
		},
	}
}

type memoryView struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

type memoriesView struct {
	Memories []memoryView `json:"memories"`
	Count    int          `json:"count"`
}

// Read returns the JSON body of the resource at uri. It never fails: an
// unknown URI or a client error is reported as {"error": "..."}.
func (r *Registry) Read(ctx context.Context, uri string) string {
	r.metrics.IncrementCounter(telemetry.MetricResourceReads, 1)
	userID := r.scope(uri)

	switch {
	case strings.Contains(uri, "/memories"):
		memories, err := r.reader.ListMemories(ctx, userID, ReadLimit)
		if err != nil {
			return r.fail(uri, err)
		}
		view := memoriesView{Memories: make([]memoryView, 0, len(memories)), Count: len(memories)}
		for _, m := range memories {
			view.Memories = append(view.Memories, memoryView{ID: m.ID, Content: m.Content, Metadata: m.Metadata})
		}
		return r.render(uri, view)
	case strings.Contains(uri, "/summary"):
		summary, err := r.reader.UserSummary(ctx, userID)
		if err != nil {
			return r.fail(uri, err)
		}
		return r.render(uri, summary)
	default:
		r.metrics.IncrementCounter(telemetry.MetricResourceErrors, 1)
		r.logger.Warn("Unknown resource requested", "uri", uri)
		return errorBody("Unknown resource: " + uri)
	}
}

// scope extracts the user ID from a users/{id}/ path segment, falling back
// to the registry's user.
func (r *Registry) scope(uri string) string {
	const marker = "users/"
	i := strings.Index(uri, marker)
	if i < 0 {
		return r.userID
	}
	rest := uri[i+len(marker):]
	j := strings.Index(rest, "/")
	if j <= 0 {
		return r.userID
	}
	return rest[:j]
}

func (r *Registry) render(uri string, v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return r.fail(uri, errortypes.InternalError(err, "failed to encode resource"))
	}
	return string(data)
}

func (r *Registry) fail(uri string, err error) string {
	r.metrics.IncrementCounter(telemetry.MetricResourceErrors, 1)
	errortypes.LogError(r.logger.With("uri", uri), err)
	return errorBody(err.Error())
}

func errorBody(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
