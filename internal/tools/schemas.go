// Package tools defines the Memphora MCP tools: their names, input schemas,
// request types, and the dispatcher that routes invocations to the API client.
package tools

import (
	"encoding/json"

	"github.com/qri-io/jsonschema"

	"github.com/memphora/memphora-mcp/internal/memphora"
)

const (
	// ToolSearch is the name of the memphora_search MCP tool
	ToolSearch = "memphora_search"

	// ToolStore is the name of the memphora_store MCP tool
	ToolStore = "memphora_store"

	// ToolExtractConversation is the name of the memphora_extract_conversation MCP tool
	ToolExtractConversation = "memphora_extract_conversation"

	// ToolListMemories is the name of the memphora_list_memories MCP tool
	ToolListMemories = "memphora_list_memories"

	// ToolDelete is the name of the memphora_delete MCP tool
	ToolDelete = "memphora_delete"

	// DefaultSearchLimit is the number of results returned when a
	// memphora_search request does not specify a limit
	DefaultSearchLimit = 5

	// DefaultListLimit is the number of memories returned when a
	// memphora_list_memories request does not specify a limit
	DefaultListLimit = 20

	// DefaultCategory is stored when memphora_store gets no category
	DefaultCategory = "general"

	// shortIDLength is how much of a memory ID the list output shows
	shortIDLength = 8
)

// Categories is the fixed set of values accepted for a stored memory's category.
var Categories = []string{"preference", "work", "health", "relationship", "hobby", "travel", "general"}

// Roles accepted in a conversation submitted for extraction.
var Roles = []string{"user", "assistant"}

// SearchRequest defines the input of the memphora_search tool
type SearchRequest struct {
	// Query is what to search for in memories
	Query string `json:"query"`

	// Limit is the maximum number of results; DefaultSearchLimit when zero
	Limit int `json:"limit,omitempty"`
}

// StoreRequest defines the input of the memphora_store tool
type StoreRequest struct {
	// Content is the fact to remember
	Content string `json:"content"`

	// Category is one of Categories; DefaultCategory when empty
	Category string `json:"category,omitempty"`
}

// ExtractConversationRequest defines the input of the memphora_extract_conversation tool
type ExtractConversationRequest struct {
	// Conversation is the ordered list of messages to extract memories from
	Conversation []memphora.Message `json:"conversation"`
}

// ListMemoriesRequest defines the input of the memphora_list_memories tool
type ListMemoriesRequest struct {
	// Limit is the maximum number of memories; DefaultListLimit when zero
	Limit int `json:"limit,omitempty"`
}

// DeleteRequest defines the input of the memphora_delete tool
type DeleteRequest struct {
	// MemoryID identifies the memory to delete
	MemoryID string `json:"memory_id"`
}

// Definition describes one tool: its name, a description for the host, and
// the JSON Schema its arguments must satisfy.
type Definition struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema

	// schema is the source of InputSchema, advertised to hosts as is.
	schema json.RawMessage

	// requiredZero holds the value an absent required argument takes, so that
	// a missing argument reaches the same empty-value check as an empty one.
	requiredZero map[string]interface{}
}

// SchemaJSON returns the input schema as written, including annotations
// such as defaults that the compiled schema does not marshal back.
func (d Definition) SchemaJSON() json.RawMessage {
	return d.schema
}

func define(name, description, schema string, requiredZero map[string]interface{}) Definition {
	return Definition{
		Name:         name,
		Description:  description,
		InputSchema:  jsonschema.Must(schema),
		schema:       json.RawMessage(schema),
		requiredZero: requiredZero,
	}
}

const searchSchema = `{
  "type": "object",
  "properties": {
    "query": { "type": "string", "description": "What to search for in memories" },
    "limit": { "type": "integer", "description": "Maximum number of results (default: 5)", "default": 5, "minimum": 1 }
  },
  "required": ["query"]
}`

const storeSchema = `{
  "type": "object",
  "properties": {
    "content": { "type": "string", "description": "The information to remember (should be a complete, self-contained fact)" },
    "category": {
      "type": "string",
      "description": "Optional category (e.g., 'preference', 'work', 'health', 'relationship')",
      "enum": ["preference", "work", "health", "relationship", "hobby", "travel", "general"]
    }
  },
  "required": ["content"]
}`

const extractConversationSchema = `{
  "type": "object",
  "properties": {
    "conversation": {
      "type": "array",
      "description": "List of messages in the conversation",
      "items": {
        "type": "object",
        "properties": {
          "role": { "type": "string", "enum": ["user", "assistant"] },
          "content": { "type": "string" }
        },
        "required": ["role", "content"]
      }
    }
  },
  "required": ["conversation"]
}`

const listMemoriesSchema = `{
  "type": "object",
  "properties": {
    "limit": { "type": "integer", "description": "Maximum number of memories to return (default: 20)", "default": 20, "minimum": 1 }
  }
}`

const deleteSchema = `{
  "type": "object",
  "properties": {
    "memory_id": { "type": "string", "description": "The ID of the memory to delete" }
  },
  "required": ["memory_id"]
}`

var definitions = []Definition{
	define(ToolSearch,
		"Search your personal memories for relevant information. "+
			"Use this when the user asks about something they may have mentioned before, "+
			"their preferences, past experiences, or any personal information. "+
			"Examples: 'What's my favorite food?', 'Where do I work?', 'What projects am I working on?'",
		searchSchema, map[string]interface{}{"query": ""}),
	define(ToolStore,
		"Store important information about the user for future recall. "+
			"Use this when the user shares personal details, preferences, facts about themselves, "+
			"or explicitly asks you to remember something. "+
			"Examples: 'I work at Google', 'My favorite color is blue', 'Remember that I'm allergic to peanuts'",
		storeSchema, map[string]interface{}{"content": ""}),
	define(ToolExtractConversation,
		"Extract and store memories from a conversation. "+
			"Use this to save important information from a longer discussion. "+
			"The system will automatically identify and store relevant facts.",
		extractConversationSchema, map[string]interface{}{"conversation": []interface{}{}}),
	define(ToolListMemories,
		"List all stored memories for the user. "+
			"Use this to see what information has been remembered.",
		listMemoriesSchema, nil),
	define(ToolDelete,
		"Delete a specific memory by its ID. "+
			"Use this when the user wants to forget something or correct incorrect information.",
		deleteSchema, map[string]interface{}{"memory_id": ""}),
}

// Definitions returns the tool definitions in registration order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition for a tool name.
func Lookup(name string) (Definition, bool) {
	for _, d := range definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}
