package dispatch

import (
	"context"
	"encoding/json"

	"github.com/agrama/agrama/internal/types"
)

// errorCodeFor maps an internal error Kind to a JSON-RPC error code.
// OperationFailed uses -32040, extending the -320xx operational band
// without colliding with the reserved -32700..-32600 range.
func errorCodeFor(err error) (int, string) {
	e, ok := err.(*types.Error)
	if !ok {
		return -32603, err.Error()
	}
	switch e.Kind {
	case types.KindInvalidInput:
		return -32602, e.Error()
	case types.KindUnknownOperation:
		return -32601, e.Error()
	case types.KindNotFound, types.KindUnknownKey:
		return -32001, e.Error()
	case types.KindSizeExceeded:
		return -32002, e.Error()
	case types.KindDimensionMismatch:
		return -32003, e.Error()
	case types.KindWriteFailed:
		return -32010, e.Error()
	case types.KindStorageCorrupt:
		return -32011, e.Error()
	case types.KindBusy:
		return -32020, e.Error()
	case types.KindCancelled:
		return -32030, e.Error()
	case types.KindOperationFailed:
		return -32040, e.Error()
	case types.KindEmpty:
		return -32001, e.Error()
	default:
		return -32603, e.Error()
	}
}

func errToRPC(err error) *rpcError {
	code, msg := errorCodeFor(err)
	var data any
	if e, ok := err.(*types.Error); ok {
		d := map[string]string{"kind": string(e.Kind)}
		if e.Field != "" {
			d["field"] = e.Field
		}
		data = d
	}
	return &rpcError{Code: code, Message: msg, Data: data}
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// legacyAliases maps the tools/* surface onto primitive names, kept for
// clients that still speak the tool-style protocol.
var legacyAliases = map[string]string{
	"read_code":   "retrieve",
	"write_code":  "store",
	"get_context": "retrieve",
}

// handle routes one parsed envelope to its method implementation and
// returns either a JSON-marshalable result or a populated rpcError.
// Notifications (initialized) always return (nil, nil).
func (d *Dispatcher) handle(ctx context.Context, env envelope) (any, *rpcError) {
	switch env.Method {
	case "initialize":
		return d.handleInitialize(env.Params)
	case "initialized", "notifications/initialized":
		return nil, nil
	case "primitives/list", "tools/list":
		return d.handleList(), nil
	case "primitives/describe":
		return d.handleDescribe(env.Params)
	case "primitives/call":
		return d.handleCall(ctx, env.Params, false)
	case "tools/call":
		return d.handleCall(ctx, env.Params, true)
	default:
		return nil, &rpcError{Code: -32601, Message: "method not found", Data: env.Method}
	}
}

func (d *Dispatcher) handleInitialize(raw json.RawMessage) (any, *rpcError) {
	var p initializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &rpcError{Code: -32602, Message: "invalid params", Data: err.Error()}
		}
	}
	rec := d.assignIdentity(p.ClientInfo.Name, p.ClientInfo.Version)
	return map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"capabilities": map[string]any{
			"primitives": map[string]any{"listChanged": false},
		},
		"agentId":   rec.id,
		"sessionId": rec.sessionID,
	}, nil
}

func (d *Dispatcher) handleList() any {
	descs := d.engine.Descriptors()
	list := make([]map[string]any, len(descs))
	for i, desc := range descs {
		list[i] = map[string]any{
			"name":        desc.Name,
			"description": desc.Description,
			"inputSchema": desc.InputSchema,
		}
	}
	return map[string]any{"tools": list, "primitives": list}
}

func (d *Dispatcher) handleDescribe(raw json.RawMessage) (any, *rpcError) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.Name == "" {
		return nil, &rpcError{Code: -32602, Message: "invalid params", Data: "name is required"}
	}
	desc, snap, err := d.engine.Describe(p.Name)
	if err != nil {
		return nil, errToRPC(err)
	}
	return map[string]any{
		"name":        desc.Name,
		"description": desc.Description,
		"inputSchema": desc.InputSchema,
		"stats": map[string]any{
			"count":      snap.Count,
			"sum":        snap.Sum,
			"sum_square": snap.SumSquares,
			"max":        snap.Max,
		},
	}, nil
}

func (d *Dispatcher) handleCall(ctx context.Context, raw json.RawMessage, legacy bool) (any, *rpcError) {
	var p callParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid params", Data: err.Error()}
	}
	name := p.Name
	if legacy {
		mapped, ok := legacyAliases[name]
		if !ok {
			return nil, &rpcError{Code: -32601, Message: "unknown tool", Data: name}
		}
		name = mapped
		if p.Name == "get_context" {
			if p.Arguments == nil {
				p.Arguments = map[string]any{}
			}
			p.Arguments["include_history"] = true
		}
	}

	agentID, sessionID := d.currentIdentity()
	result, err := d.engine.Call(ctx, name, agentID, sessionID, p.Arguments)
	d.noteOutcome(err)
	if err != nil {
		return nil, errToRPC(err)
	}
	// The wire shape wraps every primitive result in a content list.
	return map[string]any{"content": []any{result}}, nil
}
