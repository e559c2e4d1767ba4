package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesFiletreeMetrics(t *testing.T) {
	RecordContentsRequest("memory", "get", http.StatusOK, 10*time.Millisecond)
	RecordContentsRequest("jupyter", "get", http.StatusTooManyRequests, time.Millisecond)
	SetTreeRows(12)
	RecordRefresh(50 * time.Millisecond)
	RecordFetchError("restore")
	RecordStaleFetch()
	RecordUpload(true, "success", 2048)
	RecordChunk()
	RecordArchiveFile(false)
	RecordCommand("toggle", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`filetree_contents_requests_total{backend="memory",op="get",status="200"}`,
		"filetree_rate_limit_hits_total 1",
		"filetree_tree_rows 12",
		`filetree_uploads_total{status="success",strategy="chunked"}`,
		`filetree_commands_total{command="toggle",status="success"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
