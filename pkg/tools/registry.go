// Package tools exposes the engine to the LLM as a named, discoverable set
// of functions. Every tool returns a status-coded human-readable string;
// the model reads the bracketed prefix as a control signal, so responses
// double as the protocol's error surface.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/souschef-ai/souschef/pkg/session"
)

// Status codes. Exactly one starts every tool response.
const (
	StatusDone         = "[DONE]"
	StatusStarted      = "[STARTED]"
	StatusTimerRunning = "[TIMER RUNNING]"
	StatusTimerActive  = "[TIMER_ACTIVE]"
	StatusBlocked      = "[BLOCKED]"
	StatusWait         = "[WAIT]"
	StatusInfo         = "[INFO]"
	StatusError        = "[ERROR]"
)

// Handler executes one tool call. The ambient session id is already
// resolved into args["session_id"] when a handler runs.
type Handler func(ctx context.Context, args map[string]any) string

// Tool is one statically registered tool record. The LLM-facing schema is
// produced from these fields; nothing is reflected from signatures.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Registry holds the tool records for one process and dispatches calls
// against the session service.
type Registry struct {
	sessions *session.Service

	tools []*Tool
	index map[string]*Tool

	// Last requested kitchen-timer duration per session, so resume and
	// reset can default sensibly.
	kitchenMu   sync.Mutex
	kitchenSecs map[string]int
}

// NewRegistry builds the full tool surface over the given session service.
func NewRegistry(sessions *session.Service) *Registry {
	r := &Registry{
		sessions:    sessions,
		index:       make(map[string]*Tool),
		kitchenSecs: make(map[string]int),
	}
	r.registerAll()
	return r
}

func (r *Registry) register(t *Tool) {
	r.tools = append(r.tools, t)
	r.index[t.Name] = t
}

// Tools returns the records in registration order.
func (r *Registry) Tools() []*Tool {
	return r.tools
}

// Dispatch runs one tool call. The ambient session id always wins: any
// model-provided session_id argument is overwritten before the handler
// runs, so a tool can never act across sessions. Panics in handlers are
// contained and surfaced as [ERROR].
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result string) {
	tool, ok := r.index[name]
	if !ok {
		return fmt.Sprintf("%s Unknown tool %q", StatusError, name)
	}

	if args == nil {
		args = make(map[string]any)
	}
	sessionID := SessionIDFrom(ctx)
	if supplied, ok := args["session_id"]; ok && supplied != sessionID {
		slog.Warn("Discarding caller-supplied session id",
			"tool", name, "session_id", sessionID)
	}
	args["session_id"] = sessionID

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool handler panic", "tool", name, "session_id", sessionID, "panic", rec)
			result = fmt.Sprintf("%s Internal error in %s", StatusError, name)
		}
	}()

	result = tool.Handler(ctx, args)
	slog.Debug("Tool dispatched", "tool", name, "session_id", sessionID)
	return result
}

// --- argument helpers ---

func strArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// intArg accepts float64 (JSON numbers), int, and numeric strings.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}
