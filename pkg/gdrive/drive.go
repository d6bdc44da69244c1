package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/xhad/vecdocs/internal/models"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	googleDocMimeType = "application/vnd.google-apps.document"
	plainTextMimeType = "text/plain"
)

// Files is the slice of the Drive files API the OCR pipeline needs.
type Files interface {
	Upload(ctx context.Context, name, mimeType string, media io.Reader) (string, error)
	Copy(ctx context.Context, fileID, mimeType string) (string, error)
	Export(ctx context.Context, fileID, mimeType string) (string, error)
	Delete(ctx context.Context, fileID string) error
	List(ctx context.Context, pageSize int64) ([]models.DriveFile, error)
}

type driveFiles struct {
	svc *drive.Service
}

// NewDriveFiles builds a Drive v3 client on top of an authorized HTTP client.
// endpoint overrides the API base path when set.
func NewDriveFiles(ctx context.Context, client *http.Client, endpoint string) (Files, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &driveFiles{svc: svc}, nil
}

func (d *driveFiles) Upload(ctx context.Context, name, mimeType string, media io.Reader) (string, error) {
	f, err := d.svc.Files.Create(&drive.File{Name: name}).
		Media(media, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

func (d *driveFiles) Copy(ctx context.Context, fileID, mimeType string) (string, error) {
	f, err := d.svc.Files.Copy(fileID, &drive.File{MimeType: mimeType}).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

func (d *driveFiles) Export(ctx context.Context, fileID, mimeType string) (string, error) {
	resp, err := d.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (d *driveFiles) Delete(ctx context.Context, fileID string) error {
	return d.svc.Files.Delete(fileID).Context(ctx).Do()
}

func (d *driveFiles) List(ctx context.Context, pageSize int64) ([]models.DriveFile, error) {
	resp, err := d.svc.Files.List().
		PageSize(pageSize).
		Fields("nextPageToken, files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	files := make([]models.DriveFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, models.DriveFile{ID: f.Id, Name: f.Name})
	}
	return files, nil
}
