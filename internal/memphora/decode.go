package memphora

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// memoryListShape tags which of the two accepted payload shapes was found.
type memoryListShape int

const (
	shapeWrapped memoryListShape = iota // {"memories": [...], ...}
	shapeBare                           // [...]
)

// memoryList is the normalised form of a search or list payload.
type memoryList struct {
	Shape      memoryListShape
	Memories   []Memory
	SearchPath string
	LatencyMS  *float64
}

var errUnexpectedShape = errors.New("expected a JSON object or array of memories")

// decodeMemoryList normalises a memory payload. The wrapped object shape is
// tried first and the bare array shape is the fallback. Object-only fields
// (search_path, latency_ms) are read only from the wrapped shape, and every
// optional record field is type-checked before use.
func decodeMemoryList(body []byte) (memoryList, error) {
	if !gjson.ValidBytes(body) {
		return memoryList{}, errors.New("response is not valid JSON")
	}

	root := gjson.ParseBytes(body)
	switch {
	case root.IsObject():
		out := memoryList{Shape: shapeWrapped}
		out.Memories = decodeMemories(root.Get("memories"))
		if sp := root.Get("search_path"); sp.Type == gjson.String {
			out.SearchPath = sp.Str
		}
		if lat := root.Get("latency_ms"); lat.Type == gjson.Number {
			out.LatencyMS = Float(lat.Num)
		}
		return out, nil
	case root.IsArray():
		return memoryList{Shape: shapeBare, Memories: decodeMemories(root)}, nil
	default:
		return memoryList{}, errUnexpectedShape
	}
}

// decodeMemories converts a JSON array into records. Non-object elements are
// skipped; a missing or non-array value yields an empty, non-nil slice.
func decodeMemories(arr gjson.Result) []Memory {
	memories := make([]Memory, 0)
	if !arr.IsArray() {
		return memories
	}
	arr.ForEach(func(_, elem gjson.Result) bool {
		if elem.IsObject() {
			memories = append(memories, decodeMemory(elem))
		}
		return true
	})
	return memories
}

func decodeMemory(elem gjson.Result) Memory {
	m := Memory{
		ID:      scalarString(elem.Get("id")),
		Content: scalarString(elem.Get("content")),
	}
	if md := elem.Get("metadata"); md.IsObject() {
		if v, ok := md.Value().(map[string]interface{}); ok {
			m.Metadata = v
		}
	}
	if sim := elem.Get("similarity"); sim.Type == gjson.Number {
		m.Similarity = Float(sim.Num)
	}
	if ts := elem.Get("created_at"); ts.Type == gjson.String {
		m.CreatedAt = ts.Str
	}
	return m
}

// scalarString renders strings and numbers; anything else becomes "".
func scalarString(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

// decodeObject decodes an opaque acknowledgment. An empty body or a JSON
// value that is not an object yields an empty map.
func decodeObject(body []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	if !gjson.ParseBytes(body).IsObject() {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
