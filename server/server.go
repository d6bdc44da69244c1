package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/vecdocs/internal/models"
	"github.com/xhad/vecdocs/pkg/gdrive"
	"github.com/xhad/vecdocs/pkg/processor"
	"github.com/xhad/vecdocs/pkg/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the websocket envelope in both directions.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Stage      string `json:"stage,omitempty"`
}

type deleteResponse struct {
	Message    string `json:"message"`
	Collection string `json:"collection"`
}

type listFilesResponse struct {
	Files []models.DriveFile `json:"files"`
}

type Config struct {
	MaxUploadBytes int64
}

type Server struct {
	config Config
	svc    *service.Service
	mux    *http.ServeMux
}

func NewServer(config Config, svc *service.Service) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 32 << 20
	}

	s := &Server{config: config, svc: svc, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleHello)
	s.mux.HandleFunc("GET /heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("DELETE /delete", s.handleDelete)
	s.mux.HandleFunc("POST /add", s.handleAdd)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("POST /add-url", s.handleAddURL)
	s.mux.HandleFunc("GET /google-drive/list-files", s.handleListFiles)
	s.mux.HandleFunc("POST /google-drive/upload", s.handleDriveUpload)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler returns the router wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, s.svc.Hello())
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	beat, err := s.svc.Heartbeat(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, beat)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCollection(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		Message:    "Collection deleted.",
		Collection: s.svc.CollectionName(),
	})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req models.AddRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.svc.Add(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleAddURL(w http.ResponseWriter, r *http.Request) {
	var req models.AddURLRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.svc.AddURL(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.svc.UploadAndAdd(r.Context(), *upload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.svc.ListFiles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if files == nil {
		files = []models.DriveFile{}
	}
	writeJSON(w, http.StatusOK, listFilesResponse{Files: files})
}

func (s *Server) handleDriveUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.svc.RunOCR(r.Context(), *upload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Error reading message", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(conn, Message{Type: "error", Content: "invalid message"})
			continue
		}

		switch msg.Type {
		case "search":
			res, err := s.svc.Search(r.Context(), msg.Content)
			if err != nil {
				s.sendMessage(conn, Message{Type: "error", Content: err.Error()})
				continue
			}
			s.sendMessage(conn, Message{Type: "results", Content: msg.Content, Data: res})
		default:
			s.sendMessage(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type: %s", msg.Type)})
		}
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		slog.Warn("Error sending message", "error", err)
	}
}

var errMissingFile = models.ValidationError{Field: "file", Message: "file is required"}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*models.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, maxErr
		}
		return nil, errMissingFile
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errMissingFile
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	return &models.Upload{Data: data, MimeType: mimeType, FileName: header.Filename}, nil
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return maxErr
		}
		return models.ValidationError{Field: "body", Message: "invalid JSON body"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{StatusCode: http.StatusInternalServerError, Message: "Internal server error"}

	var (
		verr     models.ValidationError
		stageErr *gdrive.StageError
		maxErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		resp.StatusCode = http.StatusBadRequest
		resp.Message = verr.Error()
	case errors.As(err, &maxErr):
		resp.StatusCode = http.StatusRequestEntityTooLarge
		resp.Message = fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit)
	case errors.As(err, &stageErr):
		resp.StatusCode = http.StatusBadGateway
		resp.Message = "Failed to run OCR on files"
		resp.Stage = string(stageErr.Stage)
	case errors.Is(err, processor.ErrEmptyText):
		resp.StatusCode = http.StatusUnprocessableEntity
		resp.Message = err.Error()
	case errors.Is(err, service.ErrAddFailed):
		resp.Message = "Failed to add document"
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, resp.StatusCode, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
