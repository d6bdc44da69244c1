package gdrive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/vecdocs/internal/models"
)

type driveAPI struct {
	mu       sync.Mutex
	requests []string
}

func (d *driveAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.requests = append(d.requests, r.Method+" "+r.URL.Path)
	d.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/"):
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "fake image bytes") {
			http.Error(w, "missing media", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"id": "raw-1"})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/copy"):
		var f map[string]string
		json.NewDecoder(r.Body).Decode(&f)
		if f["mimeType"] != googleDocMimeType {
			http.Error(w, "bad mime type", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"id": "doc-1"})
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/export"):
		w.Header().Set("Content-Type", plainTextMimeType)
		io.WriteString(w, "Scanned text\r\nsecond line")
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		writeJSON(w, map[string]any{
			"files": []map[string]string{{"id": "f1", "name": "one.pdf"}, {"id": "f2", "name": "two.png"}},
		})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newDriveServer(t *testing.T) (*driveAPI, *OCR) {
	t.Helper()
	api := &driveAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	o := NewWithConfig(OCRConfig{Endpoint: srv.URL + "/drive/v3/"}, staticClient{client: srv.Client()})
	return api, o
}

func TestDriveRoundTrip(t *testing.T) {
	api, o := newDriveServer(t)

	res, err := o.RunOCR(context.Background(), models.Upload{
		Data:     []byte("fake image bytes"),
		MimeType: "image/png",
		FileName: "scan.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "Scanned text\r\nsecond line", res.TextContent)

	require.Len(t, api.requests, 5)
	assert.Equal(t, "POST /upload/drive/v3/files", api.requests[0])
	assert.Equal(t, "POST /drive/v3/files/raw-1/copy", api.requests[1])
	assert.Equal(t, "DELETE /drive/v3/files/raw-1", api.requests[2])
	assert.Equal(t, "GET /drive/v3/files/doc-1/export", api.requests[3])
	assert.Equal(t, "DELETE /drive/v3/files/doc-1", api.requests[4])
}

func TestDriveListFiles(t *testing.T) {
	_, o := newDriveServer(t)

	list, err := o.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.DriveFile{{ID: "f1", Name: "one.pdf"}, {ID: "f2", Name: "two.png"}}, list)
}
