package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memphora/memphora-mcp/internal/contextstore"
	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/logger"
	"github.com/memphora/memphora-mcp/internal/memphora"
	"github.com/memphora/memphora-mcp/internal/tools"
)

const testKey = "dev_key"

func newTestBackend(t *testing.T) *httptest.Server {
	t.Helper()

	store := contextstore.NewSQLiteMemoryStore()
	require.NoError(t, store.Initialize(filepath.Join(t.TempDir(), "dev.db")))
	t.Cleanup(func() { _ = store.Close() })

	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	srv, err := New(Options{
		APIKey: testKey,
		Store:  store,
		Logger: logger.Discard(),
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, url, key string) *memphora.Client {
	t.Helper()
	c, err := memphora.New(memphora.Options{
		APIKey: key,
		APIURL: url,
		UserID: "alice",
		Logger: logger.Discard(),
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, errortypes.IsConfigError(err))
}

func TestStoreThenListRoundTrip(t *testing.T) {
	ts := newTestBackend(t)
	c := newTestClient(t, ts.URL, testKey)
	ctx := context.Background()

	ack, err := c.Store(ctx, "I work at Acme", "", map[string]interface{}{"category": "work"})
	require.NoError(t, err)
	assert.NotEmpty(t, ack["id"])

	_, err = c.Store(ctx, "My favorite food is sushi", "", nil)
	require.NoError(t, err)

	memories, err := c.ListMemories(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Equal(t, "My favorite food is sushi", memories[0].Content, "newest first")
	assert.Equal(t, "I work at Acme", memories[1].Content)
	assert.Equal(t, map[string]interface{}{"category": "work"}, memories[1].Metadata)
	assert.NotEmpty(t, memories[1].CreatedAt)

	other, err := c.ListMemories(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStoreKeepsLongContentVerbatim(t *testing.T) {
	ts := newTestBackend(t)
	c := newTestClient(t, ts.URL, testKey)
	ctx := context.Background()

	content := strings.Repeat("Notes from the café planning meeting, item by item.  ", 30)
	require.Greater(t, len(content), 1000)

	_, err := c.Store(ctx, content, "", nil)
	require.NoError(t, err)

	memories, err := c.ListMemories(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, content, memories[0].Content)
}

func TestSearchReturnsBareArray(t *testing.T) {
	ts := newTestBackend(t)
	c := newTestClient(t, ts.URL, testKey)
	ctx := context.Background()

	_, err := c.Store(ctx, "My favorite food is sushi", "", nil)
	require.NoError(t, err)
	_, err = c.Store(ctx, "I commute by bicycle every morning", "", nil)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/memories/search",
		strings.NewReader(`{"user_id":"alice","query":"favorite food"}`))
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "My favorite food is sushi", raw[0]["content"])

	result, err := c.Search(ctx, "favorite food", "", 5, -1)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	require.NotNil(t, result.Memories[0].Similarity)
	assert.Greater(t, *result.Memories[0].Similarity, 0.5)
}

func TestExtractAndSummary(t *testing.T) {
	ts := newTestBackend(t)
	c := newTestClient(t, ts.URL, testKey)
	ctx := context.Background()

	ack, err := c.ExtractConversation(ctx, []memphora.Message{
		{Role: "user", Content: "I just moved to Lisbon. Where can I find good coffee?"},
		{Role: "assistant", Content: "Try the cafes in Chiado."},
		{Role: "user", Content: "My partner is vegetarian."},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, float64(2), ack["memories_extracted"])

	_, err = c.Store(ctx, "Plays chess on weekends", "", map[string]interface{}{"category": "hobby"})
	require.NoError(t, err)

	summary, err := c.UserSummary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", summary["user_id"])
	assert.Equal(t, float64(3), summary["total_memories"])
	assert.Equal(t, map[string]interface{}{"general": float64(2), "hobby": float64(1)}, summary["categories"])
	assert.NotEmpty(t, summary["newest_memory"])
}

func TestDelete(t *testing.T) {
	ts := newTestBackend(t)
	c := newTestClient(t, ts.URL, testKey)
	ctx := context.Background()

	ack, err := c.Store(ctx, "Temporary fact about me", "", nil)
	require.NoError(t, err)
	id, _ := ack["id"].(string)
	require.NotEmpty(t, id)

	_, err = c.DeleteMemory(ctx, id, "")
	require.NoError(t, err)

	_, err = c.DeleteMemory(ctx, id, "")
	require.Error(t, err)
	code, ok := errortypes.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRejectsWrongKey(t *testing.T) {
	ts := newTestBackend(t)
	c := newTestClient(t, ts.URL, "wrong_key")

	_, err := c.ListMemories(context.Background(), "", 10)

	require.Error(t, err)
	assert.True(t, errortypes.IsRemoteServiceError(err))
	code, _ := errortypes.StatusCode(err)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, err.Error(), ErrorCodeAuthenticationError)
}

func TestHealthIsUnauthenticated(t *testing.T) {
	ts := newTestBackend(t)

	assert.True(t, newTestClient(t, ts.URL, "wrong_key").HealthCheck(context.Background()))
}

func TestValidation(t *testing.T) {
	ts := newTestBackend(t)
	c := newTestClient(t, ts.URL, testKey)

	_, err := c.Store(context.Background(), "   ", "", nil)
	require.Error(t, err)
	code, _ := errortypes.StatusCode(err)
	assert.Equal(t, http.StatusBadRequest, code)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/memories?limit=abc", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToolsAgainstDevServer(t *testing.T) {
	ts := newTestBackend(t)
	d := tools.NewDispatcher(newTestClient(t, ts.URL, testKey), nil, logger.Discard())
	ctx := context.Background()

	res := d.Call(ctx, tools.ToolStore, map[string]interface{}{"content": "I am allergic to peanuts", "category": "health"})
	assert.Equal(t, `✓ Memory stored successfully! I'll remember: "I am allergic to peanuts"`, res.Text())

	res = d.Call(ctx, tools.ToolSearch, map[string]interface{}{"query": "peanuts allergic"})
	assert.True(t, strings.HasPrefix(res.Text(), "Found 1 relevant memories:\n\n1. I am allergic to peanuts (relevance: "), res.Text())

	res = d.Call(ctx, tools.ToolListMemories, nil)
	assert.True(t, strings.HasPrefix(res.Text(), "Stored memories (1):\n\n• ["), res.Text())

	res = d.Call(ctx, tools.ToolSearch, map[string]interface{}{"query": "bicycle"})
	assert.Equal(t, "No relevant memories found for this query.", res.Text())
}
