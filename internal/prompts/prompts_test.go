package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/logger"
	"github.com/memphora/memphora-mcp/internal/telemetry"
)

func newTestRegistry() *Registry {
	return NewRegistry(telemetry.NewMetricsCollector(), logger.Discard())
}

func TestList(t *testing.T) {
	list := newTestRegistry().List()

	require.Len(t, list, 2)
	assert.Equal(t, RecallContext, list[0].Name)
	assert.Equal(t, []Argument{{Name: "topic", Description: "Topic to search for context about", Required: true}}, list[0].Arguments)
	assert.Equal(t, SaveSession, list[1].Name)
	assert.True(t, list[1].Arguments[0].Required)
}

func TestRecallContext(t *testing.T) {
	r, err := newTestRegistry().Get(RecallContext, map[string]string{"topic": "travel plans"})

	require.NoError(t, err)
	assert.Equal(t, "Search memories about: travel plans", r.Description)
	require.Len(t, r.Messages, 1)
	assert.Equal(t, RoleUser, r.Messages[0].Role)
	assert.Equal(t, "Before responding, search my memories for any relevant information about: travel plans", r.Messages[0].Text)
}

func TestSaveSession(t *testing.T) {
	r, err := newTestRegistry().Get(SaveSession, map[string]string{"summary": "Prefers dark mode"})

	require.NoError(t, err)
	assert.Equal(t, "Save session information", r.Description)
	assert.Equal(t, "Please save the following information to my memories: Prefers dark mode", r.Messages[0].Text)
}

func TestMissingArgumentRendersEmpty(t *testing.T) {
	r, err := newTestRegistry().Get(RecallContext, nil)

	require.NoError(t, err)
	assert.Equal(t, "Before responding, search my memories for any relevant information about: ", r.Messages[0].Text)
}

func TestUnknownPrompt(t *testing.T) {
	_, err := newTestRegistry().Get("summon_demons", nil)

	require.Error(t, err)
	assert.True(t, errortypes.IsNotFoundError(err))
	assert.Contains(t, err.Error(), "summon_demons")
}

func TestFill(t *testing.T) {
	assert.Equal(t, "a-1-b-", Fill("a-{{x}}-b-{{ y }}", map[string]string{"x": "1"}))
	assert.Equal(t, "no placeholders", Fill("no placeholders", map[string]string{"x": "1"}))
	assert.Equal(t, "{{y}}", Fill("{{x}}", map[string]string{"x": "{{y}}", "y": "expanded"}))
}

func TestRenderCountsMetric(t *testing.T) {
	reg := newTestRegistry()
	_, _ = reg.Get(SaveSession, map[string]string{"summary": "s"})

	assert.Equal(t, int64(1), reg.metrics.GetCounter(telemetry.MetricPromptsRendered))
}
