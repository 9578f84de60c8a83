package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"wellfeed/models"
)

const (
	// Base URL for serving files
	baseURL = "/uploads"
	// Maximum file size (50MB)
	maxFileSize = 50 * 1024 * 1024
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var allowedVideoTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/x-ms-wmv":   true,
	"video/3gpp":       true,
	"video/x-matroska": true,
	"video/webm":       true,
	// Some video files arrive with this MIME type
	"application/octet-stream": true,
}

var ErrFileTooLarge = errors.New("file too large, maximum size is 50MB")

type ErrUnsupportedMediaType struct {
	MIME string
}

func (e *ErrUnsupportedMediaType) Error() string {
	return fmt.Sprintf("invalid file type: %s, only images and videos are allowed", e.MIME)
}

// MediaTypeFor classifies an upload's MIME type as image or video.
// The octet-stream fallback counts as video, matching the allow-list.
func MediaTypeFor(mime string) string {
	if strings.HasPrefix(mime, "video/") || mime == "application/octet-stream" {
		return models.MediaTypeVideo
	}
	return models.MediaTypeImage
}

// DiskStore persists uploaded media under a local directory and serves it
// back as relative /uploads/... references.
type DiskStore struct {
	baseDir string
}

func NewDiskStore(baseDir string) *DiskStore {
	return &DiskStore{baseDir: baseDir}
}

// Save validates and writes an uploaded file, returning its reference.
func (s *DiskStore) Save(fh *multipart.FileHeader) (string, error) {
	if fh.Size > maxFileSize {
		return "", ErrFileTooLarge
	}

	mime := fh.Header.Get("Content-Type")
	if !allowedImageTypes[mime] && !allowedVideoTypes[mime] {
		return "", &ErrUnsupportedMediaType{MIME: mime}
	}

	dir := filepath.Join(s.baseDir, "posts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], ext)

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return path.Join(baseURL, "posts", name), nil
}

// Remove deletes the blob behind a previously returned reference. Missing
// files and references outside the store are ignored.
func (s *DiskStore) Remove(ref string) error {
	rel := strings.TrimPrefix(ref, baseURL+"/")
	if rel == ref || rel == "" {
		return nil
	}
	rel = filepath.Clean(rel)
	if strings.HasPrefix(rel, "..") {
		return nil
	}

	err := os.Remove(filepath.Join(s.baseDir, rel))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
