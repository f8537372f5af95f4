package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/configkv/internal/configstore"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *configstore.Store
}

// NewMCPServer creates an MCP server exposing the config store as tools and
// a read-only resource.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"configkv",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("configkv: flat string key/value configuration. Keys are literal dotted strings such as services.inventory.timeout_ms."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("config_get",
			mcp.WithDescription("Read a configuration value. Returns the default when the key is absent and a default is given."),
			mcp.WithString("key", mcp.Description("Config key"), mcp.Required()),
			mcp.WithString("default", mcp.Description("Value to return when the key is absent")),
		),
		mcpConfigGet(deps),
	)

	s.AddTool(
		mcp.NewTool("config_set",
			mcp.WithDescription("Store a configuration value, overwriting any previous value."),
			mcp.WithString("key", mcp.Description("Config key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to store"), mcp.Required()),
		),
		mcpConfigSet(deps),
	)

	s.AddTool(
		mcp.NewTool("config_all",
			mcp.WithDescription("List every configuration key/value pair as a JSON object."),
		),
		mcpConfigAll(deps),
	)

	s.AddTool(
		mcp.NewTool("config_delete",
			mcp.WithDescription("Remove a configuration key."),
			mcp.WithString("key", mcp.Description("Config key"), mcp.Required()),
		),
		mcpConfigDelete(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"config://all",
			"Configuration",
			mcp.WithResourceDescription("All configuration entries as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAll(deps),
	)

	return s
}

func mcpConfigGet(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		v, ok, err := deps.Store.Get(key)
		if err != nil {
			return mcpError(fmt.Sprintf("get failed: %v", err)), nil
		}
		if !ok {
			def, err := req.RequireString("default")
			if err != nil {
				return mcpError(fmt.Sprintf("key %q not found", key)), nil
			}
			return mcpText(def), nil
		}
		return mcpText(v), nil
	}
}

func mcpConfigSet(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if err := deps.Store.Set(key, value); err != nil {
			return mcpError(fmt.Sprintf("set failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpConfigAll(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := marshalAll(deps.Store)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpConfigDelete(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		removed, err := deps.Store.Remove(key)
		if errors.Is(err, configstore.ErrUnsupported) {
			return mcpError("delete is not supported by the active backend"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		if !removed {
			return mcpText(fmt.Sprintf("%s was not set", key)), nil
		}
		return mcpText(fmt.Sprintf("Deleted %s", key)), nil
	}
}

func mcpResourceAll(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := marshalAll(deps.Store)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func marshalAll(store *configstore.Store) ([]byte, error) {
	all, err := store.All()
	if err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	b, err := json.Marshal(all)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return b, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
