package storage

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellfeed/models"
)

// uploadFileHeader builds a real multipart.FileHeader the way gin would
// hand it to a handler.
func uploadFileHeader(t *testing.T, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="media"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))

	fhs := req.MultipartForm.File["media"]
	require.Len(t, fhs, 1)
	return fhs[0]
}

func TestDiskStoreSaveImage(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	fh := uploadFileHeader(t, "photo.PNG", "image/png", []byte("fake png bytes"))
	ref, err := store.Save(fh)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/uploads/posts/"), ref)
	assert.True(t, strings.HasSuffix(ref, ".png"), "extension preserved lowercase: %s", ref)

	data, err := os.ReadFile(filepath.Join(store.baseDir, strings.TrimPrefix(ref, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake png bytes"), data)
}

func TestDiskStoreSaveUniqueNames(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	fh := uploadFileHeader(t, "clip.mp4", "video/mp4", []byte("a"))
	ref1, err := store.Save(fh)
	require.NoError(t, err)
	ref2, err := store.Save(fh)
	require.NoError(t, err)

	assert.NotEqual(t, ref1, ref2)
}

func TestDiskStoreRejectsUnsupportedType(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	fh := &multipart.FileHeader{
		Filename: "notes.pdf",
		Header:   textproto.MIMEHeader{"Content-Type": []string{"application/pdf"}},
		Size:     10,
	}

	_, err := store.Save(fh)
	var unsupported *ErrUnsupportedMediaType
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "application/pdf", unsupported.MIME)
	assert.Contains(t, err.Error(), "application/pdf")
}

func TestDiskStoreRejectsOversizedFile(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	fh := &multipart.FileHeader{
		Filename: "movie.mp4",
		Header:   textproto.MIMEHeader{"Content-Type": []string{"video/mp4"}},
		Size:     maxFileSize + 1,
	}

	_, err := store.Save(fh)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestDiskStoreOctetStreamAccepted(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	fh := uploadFileHeader(t, "clip.mkv", "application/octet-stream", []byte("video bytes"))
	ref, err := store.Save(fh)

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".mkv"))
}

func TestDiskStoreRemove(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	fh := uploadFileHeader(t, "photo.jpg", "image/jpeg", []byte("jpeg"))
	ref, err := store.Save(fh)
	require.NoError(t, err)

	path := filepath.Join(store.baseDir, strings.TrimPrefix(ref, "/uploads/"))
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, store.Remove(ref))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing again is not an error
	assert.NoError(t, store.Remove(ref))
}

func TestDiskStoreRemoveIgnoresForeignRefs(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	assert.NoError(t, store.Remove(""))
	assert.NoError(t, store.Remove("https://cdn.example.com/photo.jpg"))
	assert.NoError(t, store.Remove("/uploads/../../../etc/passwd"))
}

func TestMediaTypeFor(t *testing.T) {
	assert.Equal(t, models.MediaTypeImage, MediaTypeFor("image/jpeg"))
	assert.Equal(t, models.MediaTypeImage, MediaTypeFor("image/webp"))
	assert.Equal(t, models.MediaTypeVideo, MediaTypeFor("video/mp4"))
	assert.Equal(t, models.MediaTypeVideo, MediaTypeFor("video/x-matroska"))
	assert.Equal(t, models.MediaTypeVideo, MediaTypeFor("application/octet-stream"))
}
