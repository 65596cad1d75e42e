package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/treegest/internal/config"
	"github.com/dgallion1/treegest/internal/element"
	"github.com/dgallion1/treegest/internal/pipeline"
	"github.com/dgallion1/treegest/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

type stubCapturer struct{}

func (stubCapturer) Capture(_ context.Context, url string) (*element.Tree, error) {
	root := element.NewNode("window", element.TopLevel).SetName(url)
	root.Append(element.NewNode("search", element.TextEdit).SetName("Search").AddStates(element.Focused))
	return element.NewTree(url, root), nil
}

func newTestServer(t *testing.T, captures CaptureQueue) *Server {
	t.Helper()
	svc, err := render.NewService(render.Options{TokenLimit: 1000})
	require.NoError(t, err)
	cfg := config.Defaults()
	cfg.APIKey = testKey
	cfg.MaxUploadBytes = 1024
	return NewServer(svc, captures, nil, cfg)
}

func do(t *testing.T, srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

type upload struct {
	field, name, body string
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth_NoAuth(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats/render", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := do(t, srv, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization")

	req = httptest.NewRequest(http.MethodGet, "/api/stats/render", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = do(t, srv, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid api key")

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/stats/render", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRender_Markdown(t *testing.T) {
	srv := newTestServer(t, nil)

	req := multipartRequest(t, "/api/render",
		map[string]string{"detail_level": "detailed", "starting_id": "5"},
		upload{"file", "guide.md", "# Setup\n\nRun [the installer](https://example.com)."})
	rec := do(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[render.Result](t, rec)
	assert.Equal(t, "detailed", res.Detail)
	assert.Contains(t, res.XML, `<Document id="5"`)
	assert.Contains(t, res.XML, `<Hyperlink`)
	require.NotEmpty(t, res.Elements)
	assert.Equal(t, 5, res.Elements[0].ID)
}

func TestRender_Rejections(t *testing.T) {
	srv := newTestServer(t, nil)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		msg    string
	}{
		{
			name:   "unsupported",
			req:    multipartRequest(t, "/api/render", nil, upload{"file", "tool.exe", "MZ"}),
			status: http.StatusBadRequest,
			msg:    "unsupported file type",
		},
		{
			name:   "no file",
			req:    multipartRequest(t, "/api/render", map[string]string{"token_limit": "10"}),
			status: http.StatusBadRequest,
			msg:    "file is required",
		},
		{
			name:   "bad limit",
			req:    multipartRequest(t, "/api/render", map[string]string{"token_limit": "-3"}, upload{"file", "a.txt", "x"}),
			status: http.StatusBadRequest,
			msg:    "token_limit",
		},
		{
			name:   "bad detail",
			req:    multipartRequest(t, "/api/render", map[string]string{"detail_level": "verbose"}, upload{"file", "a.txt", "x"}),
			status: http.StatusBadRequest,
			msg:    "detail_level",
		},
		{
			name:   "unknown seed",
			req:    multipartRequest(t, "/api/render", map[string]string{"seeds": "nope"}, upload{"file", "a.txt", "x"}),
			status: http.StatusBadRequest,
			msg:    "unknown element",
		},
		{
			name:   "too large",
			req:    multipartRequest(t, "/api/render", nil, upload{"file", "a.txt", strings.Repeat("x", 2048)}),
			status: http.StatusRequestEntityTooLarge,
			msg:    "exceeds max size",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, tc.req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.msg)
		})
	}
}

func TestRenderSnapshot(t *testing.T) {
	srv := newTestServer(t, nil)

	body := `{"title":"Login","root":{"id":"win","type":"TopLevel","name":"Login","children":[
		{"id":"user","type":"TextEdit","name":"User","states":["focused"]},
		{"id":"go","type":"Button","name":"Sign in"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/render/snapshot?seeds=go&detail_level=minimal", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[render.Result](t, rec)
	assert.Equal(t, "Login", res.Title)
	assert.Contains(t, res.XML, `description="Sign in"`)
	assert.Equal(t, []string{"win"}, res.Roots)

	req = httptest.NewRequest(http.MethodPost, "/api/render/snapshot", strings.NewReader(`{"root":{"type":"Gizmo"}}`))
	rec = do(t, srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderSnapshot_YAML(t *testing.T) {
	srv := newTestServer(t, nil)

	body := "root:\n  type: Document\n  children:\n    - type: Label\n      text: hello yaml\n"
	req := httptest.NewRequest(http.MethodPost, "/api/render/snapshot", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/yaml")
	rec := do(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "hello yaml")
}

func TestRenderBatch(t *testing.T) {
	srv := newTestServer(t, nil)

	req := multipartRequest(t, "/api/render/batch", nil,
		upload{"files", "one.txt", "first file"},
		upload{"files", "two.exe", "??"},
		upload{"files", "three.csv", "name,age\nann,31\n"},
	)
	rec := do(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode[struct {
		Items []render.BatchItem `json:"items"`
	}](t, rec)
	require.Len(t, out.Items, 3)

	assert.Equal(t, "one.txt", out.Items[0].Filename)
	require.NotNil(t, out.Items[0].Result)
	assert.Contains(t, out.Items[0].Result.XML, "first file")

	assert.Equal(t, "two.exe", out.Items[1].Filename)
	assert.Contains(t, out.Items[1].Error, "unsupported")

	assert.Equal(t, "three.csv", out.Items[2].Filename)
	require.NotNil(t, out.Items[2].Result)
	assert.Contains(t, out.Items[2].Result.XML, "ann")
}

func TestCapture_Lifecycle(t *testing.T) {
	svc, err := render.NewService(render.Options{})
	require.NoError(t, err)
	orch := pipeline.NewOrchestrator(pipeline.Options{WorkerCount: 1, MaxQueueSize: 2}, stubCapturer{}, svc, nil)
	orch.Start(context.Background())
	defer orch.Stop()
	srv := newTestServer(t, orch)

	req := httptest.NewRequest(http.MethodPost, "/api/capture",
		strings.NewReader(`{"url":"https://example.com","detail_level":"compact","token_limit":500}`))
	rec := do(t, srv, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	accepted := decode[map[string]string](t, rec)
	jobID := accepted["job_id"]
	require.NotEmpty(t, jobID)
	assert.Equal(t, "/api/capture/"+jobID, accepted["poll_url"])

	var snap pipeline.JobSnapshot
	require.Eventually(t, func() bool {
		rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/capture/"+jobID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		snap = decode[pipeline.JobSnapshot](t, rec)
		return snap.Status == pipeline.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	require.NotNil(t, snap.Result)
	assert.Contains(t, snap.Result.XML, `content="Search"`)
	assert.Equal(t, "https://example.com", snap.URL)
}

func TestCapture_Rejections(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/capture", strings.NewReader(`{"url":"https://example.com"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc, err := render.NewService(render.Options{})
	require.NoError(t, err)
	// never started, so the single slot stays taken
	orch := pipeline.NewOrchestrator(pipeline.Options{WorkerCount: 1, MaxQueueSize: 1}, stubCapturer{}, svc, nil)
	srv = newTestServer(t, orch)

	for _, body := range []string{`{`, `{"url":""}`, `{"url":"ftp://x"}`, `{"url":"https://x","detail_level":"loud"}`} {
		rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/capture", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodPost, "/api/capture", strings.NewReader(`{"url":"https://a.example"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = do(t, srv, httptest.NewRequest(http.MethodPost, "/api/capture", strings.NewReader(`{"url":"https://b.example"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/capture/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderStats(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, srv, multipartRequest(t, "/api/render", nil, upload{"file", "a.txt", "hello"}))
	do(t, srv, multipartRequest(t, "/api/render", nil, upload{"file", "a.txt", "hello"}))

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/stats/render", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[struct {
		Render render.Stats `json:"render"`
	}](t, rec)
	assert.Equal(t, 1, out.Render.Latency.Count)
	assert.Equal(t, int64(1), out.Render.CacheHits)
	assert.Equal(t, 1, out.Render.CacheEntries)
	assert.Equal(t, 1, out.Render.Levels["minimal"].Builds)
	assert.Contains(t, rec.Body.String(), `"detail_levels"`)
	assert.NotContains(t, rec.Body.String(), "capture_queue_depth")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "unnamed", sanitizeFilename(""))
	assert.Equal(t, "report.pdf", sanitizeFilename("report.pdf"))
}
