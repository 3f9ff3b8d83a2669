package resources

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/logger"
	"github.com/memphora/memphora-mcp/internal/memphora"
	"github.com/memphora/memphora-mcp/internal/telemetry"
)

type fakeReader struct {
	memories []memphora.Memory
	summary  map[string]interface{}
	err      error

	lastUser  string
	lastLimit int
}

func (f *fakeReader) ListMemories(_ context.Context, userID string, limit int) ([]memphora.Memory, error) {
	f.lastUser, f.lastLimit = userID, limit
	return f.memories, f.err
}

func (f *fakeReader) UserSummary(_ context.Context, userID string) (map[string]interface{}, error) {
	f.lastUser = userID
	return f.summary, f.err
}

func newTestRegistry(r Reader) *Registry {
	return NewRegistry(r, "alice", telemetry.NewMetricsCollector(), logger.Discard())
}

func TestList(t *testing.T) {
	reg := newTestRegistry(&fakeReader{})

	list := reg.List()

	require.Len(t, list, 2)
	assert.Equal(t, "memphora://users/alice/memories", list[0].URI)
	assert.Equal(t, "My Memories", list[0].Name)
	assert.Equal(t, "memphora://users/alice/summary", list[1].URI)
	assert.Equal(t, "Memory Summary", list[1].Name)
	for _, d := range list {
		assert.Equal(t, "application/json", d.MIMEType)
	}
}

func TestListUsesDefaultUser(t *testing.T) {
	reg := NewRegistry(&fakeReader{}, "", nil, logger.Discard())

	assert.Equal(t, MemoriesURI(memphora.DefaultUserID), reg.List()[0].URI)
}

func TestReadMemories(t *testing.T) {
	fr := &fakeReader{memories: []memphora.Memory{
		{ID: "m1", Content: "Likes tea", Metadata: map[string]interface{}{"category": "preference"}},
		{ID: "m2", Content: "Plays chess"},
	}}
	reg := newTestRegistry(fr)

	body := reg.Read(context.Background(), MemoriesURI("alice"))

	var got struct {
		Memories []map[string]interface{} `json:"memories"`
		Count    int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "m1", got.Memories[0]["id"])
	assert.Equal(t, map[string]interface{}{"category": "preference"}, got.Memories[0]["metadata"])
	assert.Contains(t, got.Memories[1], "metadata")
	assert.Nil(t, got.Memories[1]["metadata"])
	assert.Equal(t, ReadLimit, fr.lastLimit)
	assert.Contains(t, body, "\n  ", "expected indented JSON")
}

func TestReadEmptyMemories(t *testing.T) {
	reg := newTestRegistry(&fakeReader{})

	body := reg.Read(context.Background(), MemoriesURI("alice"))

	assert.JSONEq(t, `{"memories":[],"count":0}`, body)
}

func TestReadSummary(t *testing.T) {
	fr := &fakeReader{summary: map[string]interface{}{"total_memories": float64(7)}}
	reg := newTestRegistry(fr)

	body := reg.Read(context.Background(), SummaryURI("alice"))

	assert.JSONEq(t, `{"total_memories":7}`, body)
}

func TestReadScopesToURIUser(t *testing.T) {
	fr := &fakeReader{}
	reg := newTestRegistry(fr)

	reg.Read(context.Background(), MemoriesURI("bob"))
	assert.Equal(t, "bob", fr.lastUser)

	reg.Read(context.Background(), "memphora://memories")
	assert.Equal(t, "alice", fr.lastUser)
}

func TestReadUnknownResource(t *testing.T) {
	reg := newTestRegistry(&fakeReader{})

	body := reg.Read(context.Background(), "memphora://users/alice/secrets")

	assert.JSONEq(t, `{"error":"Unknown resource: memphora://users/alice/secrets"}`, body)
	assert.Equal(t, int64(1), reg.metrics.GetCounter(telemetry.MetricResourceErrors))
}

func TestReadClientFailure(t *testing.T) {
	fr := &fakeReader{err: errortypes.TransportError(errors.New("connection refused"), "request failed")}
	reg := newTestRegistry(fr)

	body := reg.Read(context.Background(), SummaryURI("alice"))

	assert.JSONEq(t, `{"error":"request failed: connection refused"}`, body)
}
