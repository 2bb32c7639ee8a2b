package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tidwall/gjson"

	"sap-mcp-sse/internal/jsonrpc"
	"sap-mcp-sse/internal/tools"
)

// MCP method names.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

type parsed struct {
	msg any
	raw []byte
}

func parseMessage(body []byte) (parsed, error) {
	msg, err := jsonrpc.ParseMessage(body)
	return parsed{msg: msg, raw: body}, err
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content           []textContent   `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
}

// handle runs one POSTed message to completion and emits at most one event.
func (s *Server) handle(ctx context.Context, c *conn, p parsed, parseErr error) {
	var resp *jsonrpc.Response

	switch {
	case parseErr != nil:
		var rpcErr *jsonrpc.Error
		if !errors.As(parseErr, &rpcErr) {
			rpcErr = jsonrpc.NewError(jsonrpc.InternalError, parseErr.Error(), nil)
		}
		var id json.RawMessage
		if rpcErr.Code != jsonrpc.ParseError {
			id = jsonrpc.IDFromInvalid(p.raw)
		}
		resp = jsonrpc.NewErrorResponse(id, rpcErr)

	default:
		switch m := p.msg.(type) {
		case *jsonrpc.Request:
			resp = s.dispatch(ctx, c, m)
		case *jsonrpc.Notification:
			s.notify(ctx, c, m)
			return
		default:
			// client responses are not expected on this transport
			return
		}
	}

	data, err := encodeResponse(resp)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", c.sessionID).Msg("Failed to encode response")
		resp = jsonrpc.NewErrorResponse(resp.ID, jsonrpc.NewError(jsonrpc.InternalError, "failed to encode response", nil))
		data, _ = encodeResponse(resp)
	}

	if !c.send(event{name: "message", data: data}) {
		s.logger.Debug().
			Str("session_id", c.sessionID).
			RawJSON("rpc_id", resp.ID).
			Msg("Connection closed, response discarded")
	}
}

func (s *Server) dispatch(ctx context.Context, c *conn, req *jsonrpc.Request) *jsonrpc.Response {
	logger := s.logger.With().
		Str("session_id", c.sessionID).
		Str("method", req.Method).
		RawJSON("rpc_id", req.ID).
		Logger()
	logger.Debug().Msg("Dispatching request")

	var (
		result any
		rpcErr *jsonrpc.Error
	)

	switch req.Method {
	case MethodInitialize:
		result, rpcErr = s.initialize(ctx, c, req.Params)
	case MethodPing:
		result = struct{}{}
	case MethodToolsList:
		result = map[string]any{"tools": s.tools.Definitions()}
	case MethodToolsCall:
		result, rpcErr = s.callTool(ctx, c, req.Params)
	default:
		rpcErr = jsonrpc.NewError(jsonrpc.MethodNotFound, "Method not found", map[string]string{"method": req.Method})
	}

	if rpcErr != nil {
		logger.Debug().Int("code", int(rpcErr.Code)).Str("error", rpcErr.Message).Msg("Request failed")
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := jsonrpc.NewResult(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.InternalError, err.Error(), nil))
	}
	return resp
}

func (s *Server) notify(ctx context.Context, c *conn, n *jsonrpc.Notification) {
	switch n.Method {
	case MethodInitialized:
		s.logger.Debug().Str("session_id", c.sessionID).Msg("Client initialized")
	default:
		s.logger.Debug().
			Str("session_id", c.sessionID).
			Str("method", n.Method).
			Msg("Ignoring notification")
	}
}

func (s *Server) initialize(ctx context.Context, c *conn, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params initializeParams
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "invalid initialize params", err.Error())
		}
	}

	if params.ClientInfo.Name != "" {
		if err := s.sessions.IdentifyClient(ctx, c.sessionID, params.ClientInfo.Name, params.ClientInfo.Version); err != nil {
			s.logger.Warn().Err(err).Str("session_id", c.sessionID).Msg("Failed to record client info")
		}
	}

	version := params.ProtocolVersion
	if version == "" {
		version = ProtocolVersion
	}

	return map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]bool{"listChanged": false},
		},
		"serverInfo": map[string]string{
			"name":    s.opts.Name,
			"version": s.opts.Version,
		},
	}, nil
}

func (s *Server) callTool(ctx context.Context, c *conn, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params callParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Name == "" {
		return nil, toolError(&tools.Error{
			Kind:    tools.KindInvalidArgument,
			Message: "tools/call requires a tool name",
			Param:   "name",
		})
	}

	start := time.Now()
	payload, err := s.tools.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("session_id", c.sessionID).
			Str("tool", params.Name).
			Dur("duration", time.Since(start)).
			Msg("Tool call failed")
		return nil, toolError(err)
	}

	s.logger.Info().
		Str("session_id", c.sessionID).
		Str("tool", params.Name).
		Int("bytes", len(payload)).
		Dur("duration", time.Since(start)).
		Msg("Tool call succeeded")

	result := callResult{
		Content: []textContent{{Type: "text", Text: string(payload)}},
	}
	if gjson.ParseBytes(payload).IsObject() {
		result.StructuredContent = payload
	}
	return result, nil
}

// encodeResponse renders a response as one compact JSON line without HTML
// escaping, so relayed payloads keep their characters.
func encodeResponse(resp *jsonrpc.Response) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
