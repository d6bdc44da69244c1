package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/vecdocs/internal/models"
	"github.com/xhad/vecdocs/internal/testutil"
	"github.com/xhad/vecdocs/pkg/gdrive"
	"github.com/xhad/vecdocs/pkg/processor"
	"github.com/xhad/vecdocs/pkg/service"
	"github.com/xhad/vecdocs/pkg/store"
)

type fakeOCR struct {
	text    string
	err     error
	uploads []models.Upload
}

func (f *fakeOCR) RunOCR(_ context.Context, upload models.Upload) (*models.OCRResult, error) {
	f.uploads = append(f.uploads, upload)
	if f.err != nil {
		return nil, f.err
	}
	return &models.OCRResult{FileName: upload.FileName, TextContent: f.text}, nil
}

func (f *fakeOCR) ListFiles(context.Context) ([]models.DriveFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.DriveFile{{ID: "abc", Name: "scan.pdf"}}, nil
}

type fakeScraper struct{}

func (fakeScraper) Scrape(_ context.Context, url string) ([]models.Document, error) {
	return []models.Document{{Title: "Page", Text: "scraped page text", Source: url}}, nil
}

type testEnv struct {
	srv      *httptest.Server
	ocr      *fakeOCR
	embedder *testutil.HashEmbedder
}

func newTestEnv(t *testing.T, config Config) *testEnv {
	t.Helper()
	emb := &testutil.HashEmbedder{}
	vs, err := store.NewChromemWithConfig(store.ChromemConfig{}, emb)
	require.NoError(t, err)

	ocr := &fakeOCR{text: "extracted text"}
	svc := service.NewWithConfig(service.ServiceConfig{}, vs, ocr, fakeScraper{},
		processor.NewWithConfig(processor.ProcessorConfig{}))

	srv := httptest.NewServer(NewServer(config, svc).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, ocr: ocr, embedder: emb}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) postJSON(t *testing.T, path string, v interface{}) (*http.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, http.MethodPost, path, bytes.NewReader(payload), "application/json")
}

func (e *testEnv) postFile(t *testing.T, path, field, name string, content []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, path, &buf, mw.FormDataContentType())
}

func decodeError(t *testing.T, data []byte) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestHelloAndHeartbeat(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, body := env.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello World!", string(body))

	resp, body = env.do(t, http.MethodGet, "/heartbeat", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var beat map[string]int64
	require.NoError(t, json.Unmarshal(body, &beat))
	assert.Positive(t, beat["nanosecond heartbeat"])

	resp, _ = env.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/add", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAddSearchDelete(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, body := env.postJSON(t, "/add", models.AddRequest{Title: "t", Text: "x"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"message":"Document added.","data":{"title":"t","text":"x"}}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/search?query=x", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res models.QueryResult
	require.NoError(t, json.Unmarshal(body, &res))
	require.Len(t, res.IDs, 1)
	require.Len(t, res.IDs[0], 1)
	assert.Equal(t, "x", res.Documents[0][0])
	assert.Equal(t, "t", res.Metadatas[0][0]["title"])
	require.Len(t, res.Distances[0], 1)

	resp, body = env.do(t, http.MethodDelete, "/delete", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Collection deleted.","collection":"test"}`, string(body))

	_, body = env.do(t, http.MethodGet, "/search?query=x", nil, "")
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Empty(t, res.IDs[0])
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, Config{})

	t.Run("missing text", func(t *testing.T) {
		resp, body := env.postJSON(t, "/add", map[string]string{"title": "only"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		e := decodeError(t, body)
		assert.Equal(t, http.StatusBadRequest, e.StatusCode)
		assert.Contains(t, e.Message, "text is required")
	})

	t.Run("bad json", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/add", strings.NewReader("{"), "application/json")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing query", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodGet, "/search", nil, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("store failure", func(t *testing.T) {
		env.embedder.SetErr(errors.New("embedding backend down"))
		defer env.embedder.SetErr(nil)

		resp, body := env.postJSON(t, "/add", models.AddRequest{Title: "t", Text: "x"})
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "Failed to add document", decodeError(t, body).Message)
	})
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, body := env.postFile(t, "/upload", "file", "invoice.pdf", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"message":"Document added.","data":{"title":"invoice.pdf","text":"extracted text"}}`, string(body))
	require.Len(t, env.ocr.uploads, 1)
	assert.Equal(t, "application/pdf", env.ocr.uploads[0].MimeType)
	assert.Equal(t, []byte("%PDF-1.4 fake"), env.ocr.uploads[0].Data)

	resp, body = env.do(t, http.MethodGet, "/search?query=extracted", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "invoice.pdf")
}

func TestUploadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		resp, body := env.postFile(t, "/upload", "document", "a.pdf", []byte("x"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, body).Message, "file is required")

		resp, _ = env.postJSON(t, "/upload", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ocr stage failure", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		env.ocr.err = &gdrive.StageError{Stage: gdrive.StageConvert, Err: errors.New("unsupported")}

		resp, body := env.postFile(t, "/upload", "file", "a.png", []byte("png"))
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		e := decodeError(t, body)
		assert.Equal(t, "Failed to run OCR on files", e.Message)
		assert.Equal(t, "convert", e.Stage)
	})

	t.Run("empty text", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		env.ocr.text = "   "

		resp, _ := env.postFile(t, "/upload", "file", "blank.png", []byte("png"))
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		env := newTestEnv(t, Config{MaxUploadBytes: 64})
		resp, _ := env.postFile(t, "/upload", "file", "big.bin", bytes.Repeat([]byte("a"), 1024))
		assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, resp.StatusCode)
		assert.Empty(t, env.ocr.uploads)
	})
}

func TestGoogleDriveEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, body := env.postFile(t, "/google-drive/upload", "file", "scan.png", []byte("image"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"fileName":"scan.png","textContent":"extracted text"}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/google-drive/list-files", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"files":[{"id":"abc","name":"scan.pdf"}]}`, string(body))

	env.ocr.err = &gdrive.StageError{Stage: gdrive.StageAuthorize, Err: errors.New("no token")}
	resp, body = env.do(t, http.MethodGet, "/google-drive/list-files", nil, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "authorize", decodeError(t, body).Stage)
}

func TestAddURL(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, body := env.postJSON(t, "/add-url", models.AddURLRequest{URL: "https://example.com/"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"message":"Documents added.","data":[{"title":"Page","text":"scraped page text"}]}`, string(body))

	resp, _ = env.postJSON(t, "/add-url", models.AddURLRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketSearch(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, _ := env.postJSON(t, "/add", models.AddRequest{Title: "greeting", Text: "hello websocket"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "search", Content: "hello websocket"}))

	var reply struct {
		Type    string             `json:"type"`
		Content string             `json:"content"`
		Data    models.QueryResult `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "results", reply.Type)
	assert.Equal(t, "hello websocket", reply.Content)
	require.Len(t, reply.Data.IDs, 1)
	assert.Equal(t, []string{"hello websocket"}, reply.Data.Documents[0])

	require.NoError(t, conn.WriteJSON(Message{Type: "chat", Content: "hi"}))
	var errReply Message
	require.NoError(t, conn.ReadJSON(&errReply))
	assert.Equal(t, "error", errReply.Type)
	assert.Contains(t, errReply.Content, "unknown message type")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.ReadJSON(&errReply))
	assert.Equal(t, "error", errReply.Type)
}
