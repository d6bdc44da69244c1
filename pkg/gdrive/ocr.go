// Package gdrive extracts text from uploaded files by round-tripping them
// through Google Drive's document conversion.
package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xhad/vecdocs/internal/models"
)

var ErrOCRFailed = errors.New("failed to run OCR on files")

type Stage string

const (
	StageAuthorize Stage = "authorize"
	StageUpload    Stage = "upload"
	StageConvert   Stage = "convert"
	StageExport    Stage = "export"
	StageDelete    Stage = "delete"
)

// StageError reports which step of the OCR round trip failed.
// errors.Is(err, ErrOCRFailed) holds for every StageError.
type StageError struct {
	Stage  Stage
	FileID string
	Err    error
}

func (e *StageError) Error() string {
	if e.FileID != "" {
		return fmt.Sprintf("ocr %s failed for file %s: %v", e.Stage, e.FileID, e.Err)
	}
	return fmt.Sprintf("ocr %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrOCRFailed }

// ClientSource hands out authorized HTTP clients.
type ClientSource interface {
	Client(ctx context.Context) (*http.Client, error)
}

type OCRConfig struct {
	// Endpoint overrides the Drive API base path.
	Endpoint     string
	ListPageSize int64
	// CleanupTimeout bounds the compensating deletes after a failure.
	CleanupTimeout time.Duration
}

type OCR struct {
	config   OCRConfig
	auth     ClientSource
	newFiles func(ctx context.Context, client *http.Client) (Files, error)
}

func NewWithConfig(config OCRConfig, auth ClientSource) *OCR {
	if config.ListPageSize <= 0 {
		config.ListPageSize = 10
	}
	if config.CleanupTimeout <= 0 {
		config.CleanupTimeout = 30 * time.Second
	}

	o := &OCR{config: config, auth: auth}
	o.newFiles = func(ctx context.Context, client *http.Client) (Files, error) {
		return NewDriveFiles(ctx, client, o.config.Endpoint)
	}
	return o
}

func (o *OCR) files(ctx context.Context) (Files, error) {
	client, err := o.auth.Client(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageAuthorize, Err: err}
	}
	files, err := o.newFiles(ctx, client)
	if err != nil {
		return nil, &StageError{Stage: StageAuthorize, Err: err}
	}
	return files, nil
}

// RunOCR uploads the file, converts it to a Google Doc, exports the doc as
// plain text and removes both Drive copies. Temporary files left behind by
// a failed step are deleted on a best effort basis.
func (o *OCR) RunOCR(ctx context.Context, upload models.Upload) (result *models.OCRResult, err error) {
	log := slog.With("fileName", upload.FileName, "mimeType", upload.MimeType)

	files, err := o.files(ctx)
	if err != nil {
		log.Error("Error running OCR", "error", err)
		return nil, err
	}

	var pending []string
	defer func() {
		if err != nil {
			log.Error("Error running OCR", "error", err)
			o.cleanup(ctx, files, pending)
		}
	}()

	name := upload.FileName
	if name == "" {
		name = "Sample file"
	}

	uploadID, err := files.Upload(ctx, name, upload.MimeType, bytes.NewReader(upload.Data))
	if err != nil {
		return nil, &StageError{Stage: StageUpload, Err: err}
	}
	pending = append(pending, uploadID)
	log.Debug("Uploaded file to drive", "fileId", uploadID)

	docID, err := files.Copy(ctx, uploadID, googleDocMimeType)
	if err != nil {
		return nil, &StageError{Stage: StageConvert, FileID: uploadID, Err: err}
	}
	pending = append(pending, docID)

	if err = files.Delete(ctx, uploadID); err != nil {
		return nil, &StageError{Stage: StageDelete, FileID: uploadID, Err: err}
	}
	pending = []string{docID}

	text, err := files.Export(ctx, docID, plainTextMimeType)
	if err != nil {
		return nil, &StageError{Stage: StageExport, FileID: docID, Err: err}
	}

	if err = files.Delete(ctx, docID); err != nil {
		return nil, &StageError{Stage: StageDelete, FileID: docID, Err: err}
	}
	pending = nil

	log.Info("OCR complete", "chars", len(text))
	return &models.OCRResult{FileName: upload.FileName, TextContent: text}, nil
}

func (o *OCR) cleanup(ctx context.Context, files Files, ids []string) {
	if len(ids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.CleanupTimeout)
	defer cancel()

	for _, id := range ids {
		if err := files.Delete(ctx, id); err != nil {
			slog.Warn("Failed to delete temporary drive file", "fileId", id, "error", err)
		}
	}
}

// ListFiles returns the first page of the authorized account's files.
func (o *OCR) ListFiles(ctx context.Context) ([]models.DriveFile, error) {
	files, err := o.files(ctx)
	if err != nil {
		return nil, err
	}

	list, err := files.List(ctx, o.config.ListPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list drive files: %w", err)
	}

	if len(list) == 0 {
		slog.Info("No files found.")
	}
	for _, f := range list {
		slog.Info("Drive file", "name", f.Name, "id", f.ID)
	}
	return list, nil
}
