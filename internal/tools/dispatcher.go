package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/memphora"
	"github.com/memphora/memphora-mcp/internal/telemetry"
)

// MemoryClient is the subset of the Memphora API client the tools call.
type MemoryClient interface {
	Search(ctx context.Context, query, userID string, limit int, minSimilarity float64) (*memphora.SearchResult, error)
	Store(ctx context.Context, content, userID string, metadata map[string]interface{}) (map[string]interface{}, error)
	ExtractConversation(ctx context.Context, conversation []memphora.Message, userID string) (map[string]interface{}, error)
	ListMemories(ctx context.Context, userID string, limit int) ([]memphora.Memory, error)
	DeleteMemory(ctx context.Context, memoryID, userID string) (map[string]interface{}, error)
}

// Result is the outcome of one tool invocation. Exactly one of text or err
// is meaningful; Text renders either as the single text item returned to
// the host.
type Result struct {
	text string
	err  error
}

// Success wraps a tool's text output.
func Success(text string) Result {
	return Result{text: text}
}

// Failure wraps an error raised while running a tool.
func Failure(err error) Result {
	return Result{err: err}
}

// SoftError reports invalid input without calling the remote service.
func SoftError(message string) Result {
	return Result{err: errortypes.ValidationError(errors.New(message), "")}
}

// Text returns the text shown to the host. Errors render as "Error: "
// followed by the message on a single line.
func (r Result) Text() string {
	if r.err == nil {
		return r.text
	}
	return "Error: " + strings.Join(strings.Fields(r.err.Error()), " ")
}

// Err returns the underlying error, or nil on success.
func (r Result) Err() error { return r.err }

// IsError reports whether the result carries an error.
func (r Result) IsError() bool { return r.err != nil }

// Dispatcher routes tool invocations to the Memphora client and renders the
// responses. It never returns a Go error to its caller: every failure is
// folded into the Result.
type Dispatcher struct {
	client  MemoryClient
	metrics *telemetry.MetricsCollector
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher backed by client. Nil metrics or
// logger fall back to a private collector and the default logger.
func NewDispatcher(client MemoryClient, metrics *telemetry.MetricsCollector, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = telemetry.NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:  client,
		metrics: metrics,
		logger:  logger.With("component", "tools"),
	}
}

// Metrics returns the collector the dispatcher records into.
func (d *Dispatcher) Metrics() *telemetry.MetricsCollector {
	return d.metrics
}

// Call validates args against the named tool's schema, decodes them into
// the tool's request type and runs it. Unknown names produce a plain text
// response naming the tool.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]interface{}) (res Result) {
	def, ok := Lookup(name)
	if !ok {
		d.metrics.IncrementCounter(telemetry.MetricToolUnknown, 1)
		d.logger.Warn("Unknown tool requested", "tool", name)
		return Success("Unknown tool: " + name)
	}

	defer d.recoverInto(name, &res)

	args = withRequiredDefaults(def, args)
	if err := validateArgs(ctx, def, args); err != nil {
		return d.finish(name, time.Now(), Result{err: err})
	}

	switch name {
	case ToolSearch:
		var req SearchRequest
		if err := decodeArgs(args, &req); err != nil {
			return d.finish(name, time.Now(), Result{err: err})
		}
		return d.Search(ctx, req)
	case ToolStore:
		var req StoreRequest
		if err := decodeArgs(args, &req); err != nil {
			return d.finish(name, time.Now(), Result{err: err})
		}
		return d.Store(ctx, req)
	case ToolExtractConversation:
		var req ExtractConversationRequest
		if err := decodeArgs(args, &req); err != nil {
			return d.finish(name, time.Now(), Result{err: err})
		}
		return d.ExtractConversation(ctx, req)
	case ToolListMemories:
		var req ListMemoriesRequest
		if err := decodeArgs(args, &req); err != nil {
			return d.finish(name, time.Now(), Result{err: err})
		}
		return d.ListMemories(ctx, req)
	default: // ToolDelete
		var req DeleteRequest
		if err := decodeArgs(args, &req); err != nil {
			return d.finish(name, time.Now(), Result{err: err})
		}
		return d.Delete(ctx, req)
	}
}

// Search runs memphora_search.
func (d *Dispatcher) Search(ctx context.Context, req SearchRequest) (res Result) {
	defer d.recoverInto(ToolSearch, &res)
	start := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	d.logger.Debug("Searching memories", "query_length", len(req.Query), "limit", limit)
	result, err := d.client.Search(ctx, req.Query, "", limit, memphora.DefaultMinSimilarity)
	if err != nil {
		return d.finish(ToolSearch, start, Failure(err))
	}
	return d.finish(ToolSearch, start, Success(formatSearch(result.Memories, limit)))
}

// Store runs memphora_store.
func (d *Dispatcher) Store(ctx context.Context, req StoreRequest) (res Result) {
	defer d.recoverInto(ToolStore, &res)
	start := time.Now()

	if strings.TrimSpace(req.Content) == "" {
		return d.finish(ToolStore, start, SoftError("No content provided to store."))
	}
	category := req.Category
	if category == "" {
		category = DefaultCategory
	}
	if !slices.Contains(Categories, category) {
		return d.finish(ToolStore, start, SoftError(fmt.Sprintf(
			"Invalid category %q. Expected one of: %s.", category, strings.Join(Categories, ", "))))
	}

	metadata := map[string]interface{}{
		"category": category,
		"source":   "mcp",
	}
	d.logger.Debug("Storing memory", "content_length", len(req.Content), "category", category)
	if _, err := d.client.Store(ctx, req.Content, "", metadata); err != nil {
		return d.finish(ToolStore, start, Failure(err))
	}
	return d.finish(ToolStore, start, Success("✓ Memory stored successfully! I'll remember: \"" + req.Content + "\""))
}

// ExtractConversation runs memphora_extract_conversation.
func (d *Dispatcher) ExtractConversation(ctx context.Context, req ExtractConversationRequest) (res Result) {
	defer d.recoverInto(ToolExtractConversation, &res)
	start := time.Now()

	if len(req.Conversation) == 0 {
		return d.finish(ToolExtractConversation, start, SoftError("No conversation provided."))
	}
	for i, msg := range req.Conversation {
		if !slices.Contains(Roles, msg.Role) {
			return d.finish(ToolExtractConversation, start, SoftError(fmt.Sprintf(
				"Invalid role %q in conversation message %d. Expected \"user\" or \"assistant\".", msg.Role, i+1)))
		}
	}

	d.logger.Debug("Extracting memories from conversation", "messages", len(req.Conversation))
	ack, err := d.client.ExtractConversation(ctx, req.Conversation, "")
	if err != nil {
		return d.finish(ToolExtractConversation, start, Failure(err))
	}
	count := countField(ack, "memories_extracted")
	return d.finish(ToolExtractConversation, start, Success(fmt.Sprintf("✓ Extracted %d memories from the conversation.", count)))
}

// ListMemories runs memphora_list_memories.
func (d *Dispatcher) ListMemories(ctx context.Context, req ListMemoriesRequest) (res Result) {
	defer d.recoverInto(ToolListMemories, &res)
	start := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	memories, err := d.client.ListMemories(ctx, "", limit)
	if err != nil {
		return d.finish(ToolListMemories, start, Failure(err))
	}
	return d.finish(ToolListMemories, start, Success(formatList(memories, limit)))
}

// Delete runs memphora_delete.
func (d *Dispatcher) Delete(ctx context.Context, req DeleteRequest) (res Result) {
	defer d.recoverInto(ToolDelete, &res)
	start := time.Now()

	if strings.TrimSpace(req.MemoryID) == "" {
		return d.finish(ToolDelete, start, SoftError("No memory ID provided."))
	}

	d.logger.Debug("Deleting memory", "memory_id", req.MemoryID)
	if _, err := d.client.DeleteMemory(ctx, req.MemoryID, ""); err != nil {
		return d.finish(ToolDelete, start, Failure(err))
	}
	return d.finish(ToolDelete, start, Success("✓ Memory deleted successfully."))
}

// finish records metrics and logs the outcome of a tool call.
func (d *Dispatcher) finish(tool string, start time.Time, res Result) Result {
	d.metrics.IncrementCounter(telemetry.MetricToolCalls, 1)
	d.metrics.IncrementCounter(telemetry.ToolMetric(telemetry.MetricToolCalls, tool), 1)
	d.metrics.RecordTimer(telemetry.ToolMetric(telemetry.MetricToolCalls, tool), time.Since(start))

	switch {
	case res.err == nil:
	case errortypes.IsValidationError(res.err):
		d.metrics.IncrementCounter(telemetry.MetricToolSoftErrors, 1)
		d.logger.Info("Rejected tool input", "tool", tool, "reason", res.err.Error())
	default:
		d.metrics.IncrementCounter(telemetry.MetricToolErrors, 1)
		d.metrics.IncrementCounter(telemetry.ToolMetric(telemetry.MetricToolErrors, tool), 1)
		errortypes.LogError(d.logger.With("tool", tool), res.err)
	}
	return res
}

// recoverInto converts a panic inside a tool into an error result.
func (d *Dispatcher) recoverInto(tool string, res *Result) {
	if r := recover(); r != nil {
		err := errortypes.InternalError(fmt.Errorf("%v", r), "tool "+tool+" panicked")
		*res = d.finish(tool, time.Now(), Failure(err))
	}
}

// withRequiredDefaults returns a copy of args with nil values dropped and
// absent required arguments set to their empty value.
func withRequiredDefaults(def Definition, args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args)+len(def.requiredZero))
	for k, v := range args {
		if v != nil {
			out[k] = v
		}
	}
	for k, zero := range def.requiredZero {
		if _, ok := out[k]; !ok {
			out[k] = zero
		}
	}
	return out
}

// validateArgs checks args against the tool's JSON Schema.
func validateArgs(ctx context.Context, def Definition, args map[string]interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return errortypes.ValidationError(err, "Invalid arguments for "+def.Name)
	}
	keyErrs, err := def.InputSchema.ValidateBytes(ctx, data)
	if err != nil {
		return errortypes.ValidationError(err, "Invalid arguments for "+def.Name)
	}
	if len(keyErrs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(keyErrs))
	for _, ke := range keyErrs {
		path := ke.PropertyPath
		if path == "" {
			path = "/"
		}
		msgs = append(msgs, path+": "+ke.Message)
	}
	return errortypes.ValidationError(errors.New(strings.Join(msgs, "; ")), "Invalid arguments for "+def.Name)
}

// decodeArgs decodes a validated argument map into a request struct using
// the struct's json tags.
func decodeArgs(args map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errortypes.InternalError(err, "failed to build argument decoder")
	}
	if err := dec.Decode(args); err != nil {
		return errortypes.ValidationError(err, "Invalid arguments")
	}
	return nil
}

func formatSearch(memories []memphora.Memory, limit int) string {
	if len(memories) == 0 {
		return "No relevant memories found for this query."
	}
	if len(memories) > limit {
		memories = memories[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant memories:\n\n", len(memories))
	for i, m := range memories {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, m.Content)
		if m.Similarity != nil {
			fmt.Fprintf(&b, " (relevance: %.0f%%)", *m.Similarity*100)
		}
	}
	return b.String()
}

func formatList(memories []memphora.Memory, limit int) string {
	if len(memories) == 0 {
		return "No memories stored yet."
	}
	if len(memories) > limit {
		memories = memories[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stored memories (%d):\n\n", len(memories))
	for i, m := range memories {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "• [%s...] %s", shortID(m.ID), m.Content)
	}
	return b.String()
}

func shortID(id string) string {
	r := []rune(id)
	if len(r) > shortIDLength {
		return string(r[:shortIDLength])
	}
	return id
}

// countField reads a non-negative integer count from an acknowledgment,
// defaulting to zero.
func countField(ack map[string]interface{}, key string) int {
	switch v := ack[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return int(n)
		}
	}
	return 0
}
