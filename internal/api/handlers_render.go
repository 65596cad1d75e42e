package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/dgallion1/treegest/internal/render"
	"github.com/dgallion1/treegest/internal/source"
	"github.com/dgallion1/treegest/internal/visualtree"
	"go.uber.org/zap"
)

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	params, err := parseParams(r.Form)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !source.IsSupported(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	res, err := s.renderer.Render(r.Context(), render.Request{Filename: filename, Content: data, Params: params})
	if err != nil {
		s.renderError(w, r, filename, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRenderSnapshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	params, err := parseParams(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	src := &source.SnapshotSource{JSON: !strings.Contains(r.Header.Get("Content-Type"), "yaml")}
	tree, err := src.Load(r.Body, "snapshot")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, fmt.Sprintf("snapshot exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.renderer.RenderTree(r.Context(), tree, params)
	if err != nil {
		s.renderError(w, r, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRenderBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	params, err := parseParams(r.Form)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	// Files that cannot be read keep their slot so results line up with the
	// upload order.
	items := make([]render.BatchItem, len(files))
	var reqs []render.Request
	var slots []int
	for i, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		items[i].Filename = filename
		if !source.IsSupported(filename) {
			items[i].Error = fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename))
			continue
		}

		f, err := fh.Open()
		if err != nil {
			items[i].Error = "failed to open file"
			continue
		}
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > s.cfg.MaxUploadBytes {
			items[i].Error = "file too large or read error"
			continue
		}

		reqs = append(reqs, render.Request{Filename: filename, Content: data, Params: params})
		slots = append(slots, i)
	}

	for j, item := range s.renderer.RenderBatch(r.Context(), reqs) {
		items[slots[j]] = item
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// renderError maps render failures to status codes. Only caller mistakes
// surface their message; anything else is logged and reported generically.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, source.ErrUnsupported),
		errors.Is(err, render.ErrBadDocument),
		errors.Is(err, render.ErrInvalidParams),
		errors.Is(err, element.ErrUnknownElement),
		errors.Is(err, visualtree.ErrNoSeeds):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, visualtree.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		jsonError(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		s.log.Error("render failed", zap.String("input", what), zap.Error(err))
		jsonError(w, "failed to build context", http.StatusInternalServerError)
	}
}

// parseParams reads token_limit, detail_level, starting_id and seeds. Seeds
// may be repeated or comma separated.
func parseParams(v url.Values) (render.Params, error) {
	var p render.Params
	if s := strings.TrimSpace(v.Get("token_limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return p, fmt.Errorf("token_limit must be a positive integer")
		}
		p.TokenLimit = n
	}
	if s := strings.TrimSpace(v.Get("starting_id")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return p, fmt.Errorf("starting_id must be a non-negative integer")
		}
		p.StartingID = &n
	}
	p.Detail = strings.TrimSpace(v.Get("detail_level"))
	for _, raw := range v["seeds"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				p.Seeds = append(p.Seeds, id)
			}
		}
	}
	return p, p.Validate()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
