package procedure

import (
	"context"
	"fmt"
	"strings"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// MCPConnector dispatches api_call/data_lookup steps to an MCP server's tool
// instead of raw HTTP, for DataConnectors configured with provider "mcp".
// This is additive to the HTTP-based connector: it proxies the same step
// through a named tool call and maps the result the same way.
type MCPConnector struct {
	client *mcppkg.Client
}

// NewMCPConnector builds a connector using an MCP client identity.
func NewMCPConnector(appName, appVersion string) *MCPConnector {
	return &MCPConnector{
		client: mcppkg.NewClient(&mcppkg.Implementation{Name: appName, Version: appVersion}, nil),
	}
}

// Call connects to connector.BaseURL (a streamable-HTTP MCP endpoint), calls
// connector.MCPToolName with params, and writes the mapped result into vars.
func (c *MCPConnector) Call(ctx context.Context, connector model.DataConnector, params map[string]any, vars map[string]any, dryRun bool) error {
	if dryRun {
		return nil
	}
	if strings.TrimSpace(connector.MCPToolName) == "" {
		return fmt.Errorf("mcp connector requires mcpToolName")
	}

	transport := &mcppkg.StreamableClientTransport{Endpoint: connector.BaseURL}
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect mcp server: %w", err)
	}
	defer session.Close()

	resolved := make(map[string]any, len(params))
	for k, v := range params {
		resolved[k] = Interpolate(fmt.Sprint(v), vars)
	}

	res, err := session.CallTool(ctx, &mcppkg.CallToolParams{Name: connector.MCPToolName, Arguments: resolved})
	if err != nil {
		return fmt.Errorf("call mcp tool: %w", err)
	}
	if res.IsError {
		return fmt.Errorf("mcp tool %q returned an error result", connector.MCPToolName)
	}

	var decoded any
	if res.StructuredContent != nil {
		decoded = res.StructuredContent
	}
	applyResponseMapping(decoded, connector.ResponseMapping, vars)
	return nil
}
