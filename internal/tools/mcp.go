package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/localbrain/voicecore/pkg/provider/channel"
)

// MCPSource connects to external MCP servers and registers every discovered
// tool with a Relay. It owns the server sessions and must be closed when the
// relay is torn down.
//
// The zero value is NOT usable; create instances with [NewMCPSource].
type MCPSource struct {
	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// NewMCPSource creates a ready-to-use MCPSource.
func NewMCPSource() *MCPSource {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "voicecore", Version: "1.0.0"},
		nil,
	)
	return &MCPSource{
		sessions: make(map[string]*mcpsdk.ClientSession),
		client:   client,
	}
}

// RegisterServer connects to the MCP server described by cfg and registers its
// tool catalogue with relay. If a server with the same Name is already
// registered, the old connection is closed and replaced.
//
// For [TransportStdio]: cfg.Command is split on spaces into executable + args;
// cfg.Env is passed as additional environment variables. For
// [TransportStreamableHTTP]: cfg.URL is the endpoint address.
func (s *MCPSource) RegisterServer(ctx context.Context, cfg ServerConfig, relay *Relay) error {
	if cfg.Name == "" {
		return fmt.Errorf("tools: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("tools: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := s.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	s.mu.Lock()
	if old, ok := s.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	s.sessions[cfg.Name] = session
	s.mu.Unlock()

	for _, tool := range discovered {
		def := channel.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schemaToMap(tool.InputSchema),
		}
		if err := relay.Register(def, s.callHandler(session, tool.Name)); err != nil {
			return fmt.Errorf("tools: register %q from server %q: %w", tool.Name, cfg.Name, err)
		}
	}

	return nil
}

// callHandler builds a Handler that routes an invocation to the server
// session and concatenates all text content from the result.
func (s *MCPSource) callHandler(session *mcpsdk.ClientSession, name string) Handler {
	return func(ctx context.Context, args string) (string, error) {
		var argsMap map[string]any
		if args != "" && args != "{}" {
			if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
				return "", fmt.Errorf("invalid args JSON: %w", err)
			}
		}

		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      name,
			Arguments: argsMap,
		})
		if err != nil {
			return "", err
		}

		var sb strings.Builder
		for _, c := range result.Content {
			if tc, ok := c.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		if result.IsError {
			return "", fmt.Errorf("tool reported error: %s", sb.String())
		}
		return sb.String(), nil
	}
}

// Close shuts down all server connections. After Close returns the source must
// not be used again.
func (s *MCPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, session := range s.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tools: close server %q: %w", name, err)
		}
		delete(s.sessions, name)
	}
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
