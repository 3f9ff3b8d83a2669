package server

import (
	"encoding/json"

	"github.com/localrivet/gomcp/server"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/prompts"
	"github.com/memphora/memphora-mcp/internal/tools"
)

// JSON-RPC error codes
const (
	codeInvalidParams = -32602
	codeInternalError = -32603
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolCallResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError"`
}

type resourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType"`
}

type resourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text"`
}

type promptArgumentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

type promptInfo struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Arguments   []promptArgumentInfo `json:"arguments,omitempty"`
}

type promptMessage struct {
	Role    string      `json:"role"`
	Content textContent `json:"content"`
}

type promptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []promptMessage `json:"messages"`
}

// HandleMessage answers one JSON-RPC message from the host. Resource and
// prompt requests, and calls naming a tool that does not exist, are answered
// from the Memphora registries. Everything else is handled by gomcp.
func (s *MemphoraServer) HandleMessage(message []byte) ([]byte, error) {
	if s.mcpServer == nil {
		return nil, errortypes.ConfigError(ErrServerNotInitialized, "cannot handle message")
	}
	impl := s.mcpServer.GetServer()

	var req rpcRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return server.HandleMessage(impl, message)
	}
	if req.Method == "" && len(req.ID) > 0 {
		// response to a request the server sent to the host
		if err := impl.HandleJSONRPCResponse(message); err != nil {
			s.logger.Warn("Failed to handle response from host", "error", err)
		}
		return nil, nil
	}
	if len(req.ID) == 0 {
		return server.HandleMessage(impl, message)
	}

	var (
		result interface{}
		rpcErr *rpcError
	)
	switch req.Method {
	case "resources/list":
		result = s.listResources()
	case "resources/read":
		result, rpcErr = s.readResource(req.Params)
	case "prompts/list":
		result = s.listPrompts()
	case "prompts/get":
		result, rpcErr = s.getPrompt(req.Params)
	case "tools/call":
		var handled bool
		if result, handled = s.callUndefinedTool(req.Params); !handled {
			return server.HandleMessage(impl, message)
		}
	default:
		return server.HandleMessage(impl, message)
	}

	return json.Marshal(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr})
}

func (s *MemphoraServer) listResources() interface{} {
	list := s.resources.List()
	out := make([]resourceInfo, 0, len(list))
	for _, r := range list {
		out = append(out, resourceInfo{URI: r.URI, Name: r.Name, Description: r.Description, MIMEType: r.MIMEType})
	}
	return map[string]interface{}{"resources": out}
}

func (s *MemphoraServer) readResource(params json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.URI == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "resources/read requires a uri"}
	}
	body := s.resources.Read(s.ctx, p.URI)
	return map[string]interface{}{
		"contents": []resourceContents{{URI: p.URI, MIMEType: s.mimeType(p.URI), Text: body}},
	}, nil
}

// mimeType returns the listed content type of uri. Any other URI is read as
// a JSON error body.
func (s *MemphoraServer) mimeType(uri string) string {
	for _, r := range s.resources.List() {
		if r.URI == uri {
			return r.MIMEType
		}
	}
	return "application/json"
}

func (s *MemphoraServer) listPrompts() interface{} {
	list := s.prompts.List()
	out := make([]promptInfo, 0, len(list))
	for _, p := range list {
		info := promptInfo{Name: p.Name, Description: p.Description}
		for _, a := range p.Arguments {
			info.Arguments = append(info.Arguments, promptArgumentInfo{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		out = append(out, info)
	}
	return map[string]interface{}{"prompts": out}
}

func (s *MemphoraServer) getPrompt(params json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid prompts/get params: " + err.Error()}
	}

	rendered, err := s.prompts.Get(p.Name, p.Arguments)
	if err != nil {
		if errortypes.IsNotFoundError(err) {
			s.logger.Warn("Unknown prompt requested", "prompt", p.Name)
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
		errortypes.LogError(s.logger.With("prompt", p.Name), err)
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}
	return renderPrompt(rendered), nil
}

func renderPrompt(r *prompts.Rendered) promptResult {
	out := promptResult{Description: r.Description, Messages: make([]promptMessage, 0, len(r.Messages))}
	for _, m := range r.Messages {
		out.Messages = append(out.Messages, promptMessage{Role: m.Role, Content: textContent{Type: "text", Text: m.Text}})
	}
	return out
}

// callUndefinedTool answers a tools/call naming a tool the server does not
// define. Defined tools are left to gomcp.
func (s *MemphoraServer) callUndefinedTool(params json.RawMessage) (interface{}, bool) {
	var p struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, false
	}
	if _, ok := tools.Lookup(p.Name); ok {
		return nil, false
	}
	text := s.dispatcher.Call(s.ctx, p.Name, p.Arguments).Text()
	return toolCallResult{Content: []textContent{{Type: "text", Text: text}}}, true
}
