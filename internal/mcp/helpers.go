package mcpserver

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func boolPtr(v bool) *bool { return &v }

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to indented JSON and wraps it in a text tool result.
// "&" stays literal: company names are full of it.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := indentJSON(v)
	if err != nil {
		return nil, err
	}
	return textResult(data), nil
}

func indentJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// rawJSONArg returns a JSON argument as bytes. Clients send it either as
// a string or as an already-decoded value.
func rawJSONArg(args map[string]any, key string) ([]byte, bool) {
	switch v := args[key].(type) {
	case nil:
		return nil, false
	case string:
		if v == "" {
			return nil, false
		}
		return []byte(v), true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return b, true
	}
}
