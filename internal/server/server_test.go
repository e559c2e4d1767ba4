package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale/notebook-filetree/internal/archive"
	"github.com/rescale/notebook-filetree/internal/commands"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/contents/memstore"
	"github.com/rescale/notebook-filetree/internal/tree"
	"github.com/rescale/notebook-filetree/internal/upload"
)

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	mem.WriteFile("docs/a.txt", []byte("alpha"))
	mem.WriteFile("readme.txt", []byte("hi"))

	rec := &tree.Recorder{}
	conf := contents.AutoConfirmer{Answer: true}
	c := tree.NewController(mem, contents.NewManager(mem), nil, tree.Options{Renderer: rec, Confirmer: conf})
	require.NoError(t, c.Load(context.Background()))

	uploads := upload.NewPipeline(mem, upload.Options{Confirmer: conf})
	reg := commands.New(commands.Deps{
		Tree:     c,
		Uploads:  uploads,
		Exporter: archive.NewExporter(mem, archive.Options{}),
		Store:    mem,
	})
	s := New(Deps{Commands: reg, Tree: c, Uploads: uploads, Store: mem, Recorder: rec})
	return s, mem
}

func do(s *Server, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"rows":2`)
}

func TestRowsAndToggle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/commands/toggle", bytes.NewBufferString(`{"path":"docs"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res commands.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "toggle", res.Command)
	assert.True(t, res.Done)

	rec = do(s, http.MethodGet, "/api/rows", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows struct {
		Rows []tree.Row `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	var paths []string
	for _, r := range rows.Rows {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{"docs", "docs/a.txt", "readme.txt"}, paths)
}

func TestOpsFeed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, http.MethodGet, "/api/ops", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var first opsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.NotEmpty(t, first.Ops)

	do(s, http.MethodPost, "/api/commands/toggle", bytes.NewBufferString(`{"path":"docs"}`), "application/json")

	rec = do(s, http.MethodGet, "/api/ops?since="+itoa(first.Next), nil, "")
	var next opsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	require.NotEmpty(t, next.Ops)
	assert.Equal(t, tree.OpInsert, next.Ops[0].Kind)
	assert.Equal(t, "docs/a.txt", next.Ops[0].Row.Path)

	rec = do(s, http.MethodGet, "/api/ops?since=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCommandErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown command", "/api/commands/nope", ``, http.StatusNotFound, "UNKNOWN_COMMAND"},
		{"missing row", "/api/commands/toggle", `{"path":"ghost"}`, http.StatusNotFound, "NOT_FOUND"},
		{"invalid name", "/api/commands/rename", `{"path":"readme.txt","name":"a/b"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"conflict", "/api/commands/rename", `{"path":"readme.txt","name":"docs"}`, http.StatusConflict, "CONFLICT"},
		{"bad route", "/api/commands/navigate", `{"path":"/elsewhere"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"upload via commands", "/api/commands/upload", ``, http.StatusBadRequest, "BAD_REQUEST"},
		{"bad json", "/api/commands/toggle", `{`, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, tt.target, bytes.NewBufferString(tt.body), "application/json")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var apiErr APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestMultipartUpload(t *testing.T) {
	s, mem := newTestServer(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "new.txt")
	require.NoError(t, err)
	part.Write([]byte("fresh"))
	require.NoError(t, w.Close())

	rec := do(s, http.MethodPost, "/api/upload?dir=docs", body, w.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	data, ok := mem.FileData("docs/new.txt")
	require.True(t, ok)
	assert.Equal(t, "fresh", string(data))

	rec = do(s, http.MethodPost, "/api/upload", &bytes.Buffer{}, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownload(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, http.MethodGet, "/api/download?path=docs/a.txt", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="a.txt"`)

	rec = do(s, http.MethodGet, "/api/download?path=docs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="docs.zip"`)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))

	rec = do(s, http.MethodGet, "/api/download?path=ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(s, http.MethodPost, "/api/commands/refresh", nil, "")

	rec := do(s, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "filetree_")
}
