// Package mcptool exposes the visual tree renderer as MCP tools.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgallion1/treegest/internal/render"
	"github.com/dgallion1/treegest/internal/source"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Renderer renders a document into a visual tree.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Result, error)
}

// NewServer returns an MCP server with the treegest tools registered.
func NewServer(r Renderer, version string, log *zap.Logger) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "treegest", Version: version}, nil)
	Register(srv, r, log)
	return srv
}

// Register adds the treegest tools to srv.
func Register(srv *mcp.Server, r Renderer, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	registerRenderTool(srv, r, log)
	registerFormatsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool wires a JSON-in, JSON-out handler. Failures become tool errors,
// not protocol errors, so the calling model sees them.
func addTool(srv *mcp.Server, tool *mcp.Tool, handle func(ctx context.Context, args json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := handle(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- render ---

type renderReq struct {
	Path string `json:"path"`
	render.Params
}

func registerRenderTool(srv *mcp.Server, r Renderer, log *zap.Logger) {
	tool := &mcp.Tool{
		Name: "visual_tree_render",
		Description: "Render a document (txt, md, csv, html, pdf, docx, or a yaml/json element snapshot) " +
			"as a token-bounded XML visual tree. Returns the XML and the map from emitted ids to elements.",
		InputSchema: inputSchema(map[string]any{
			"path":         map[string]any{"type": "string", "description": "File path to render"},
			"token_limit":  map[string]any{"type": "integer", "description": "Approximate token budget"},
			"detail_level": map[string]any{"type": "string", "enum": []string{"detailed", "compact", "minimal"}},
			"starting_id":  map[string]any{"type": "integer", "description": "First id assigned in the XML"},
			"seeds": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Element ids to start exploring from; defaults to focused elements, then the root",
			},
		}, []string{"path"}),
	}

	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req renderReq
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if req.Path == "" {
			return nil, errors.New("path is required")
		}
		if _, err := source.ForFile(req.Path); err != nil {
			return nil, err
		}
		if err := req.Params.Validate(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(req.Path)
		if err != nil {
			return nil, err
		}
		res, err := r.Render(ctx, render.Request{
			Filename: filepath.Base(req.Path),
			Content:  data,
			Params:   req.Params,
		})
		if err != nil {
			log.Debug("mcp render failed", zap.String("path", req.Path), zap.Error(err))
			return nil, err
		}
		return res, nil
	})
}

// --- formats ---

func registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "visual_tree_formats",
		Description: "List the file extensions and detail levels visual_tree_render accepts.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	addTool(srv, tool, func(_ context.Context, _ json.RawMessage) (any, error) {
		return map[string]any{
			"extensions":    source.Extensions(),
			"detail_levels": []string{"detailed", "compact", "minimal"},
		}, nil
	})
}
