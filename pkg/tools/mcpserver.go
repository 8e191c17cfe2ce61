package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer exposes the registry as an MCP server, one MCP tool per
// record. The ambient session id still comes from the call context, so an
// MCP-attached assistant runtime must thread WithSessionID through its
// request contexts.
func NewMCPServer(registry *Registry, name, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	for _, tool := range registry.Tools() {
		schema := new(jsonschema.Schema)
		if err := json.Unmarshal(tool.InputSchema, schema); err != nil {
			panic(fmt.Sprintf("invalid input schema for tool %s: %v", tool.Name, err))
		}
		server.AddTool(&mcpsdk.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		}, mcpHandler(registry, tool.Name))
	}
	return server
}

func mcpHandler(registry *Registry, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args, err := decodeArguments(req)
		if err != nil {
			return nil, fmt.Errorf("decode arguments for %s: %w", name, err)
		}
		text := registry.Dispatch(ctx, name, args)
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	}
}

// decodeArguments normalizes the SDK's argument payload into a plain map.
func decodeArguments(req *mcpsdk.CallToolRequest) (map[string]any, error) {
	if req == nil || req.Params == nil || req.Params.Arguments == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return nil, err
	}
	args := make(map[string]any)
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
