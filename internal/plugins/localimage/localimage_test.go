package localimage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedash/pkg/plugin"
)

// memReader is an in-memory DirReader.
type memReader struct {
	files map[string][]byte
}

func newMemReader(names ...string) *memReader {
	r := &memReader{files: map[string][]byte{}}
	for _, name := range names {
		r.files[name] = []byte("data-" + filepath.Base(name))
	}
	return r
}

func (r *memReader) ListFiles(dir string) ([]FileMeta, error) {
	var out []FileMeta
	for path, data := range r.files {
		if filepath.Dir(path) != dir {
			continue
		}
		out = append(out, FileMeta{
			Name:    filepath.Base(path),
			Path:    path,
			Size:    int64(len(data)),
			ModTime: time.Unix(0, 0),
		})
	}
	return out, nil
}

func (r *memReader) Read(path string) ([]byte, error) {
	data, ok := r.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (r *memReader) Write(path string, data []byte) error {
	r.files[path] = data
	return nil
}

func (r *memReader) Remove(path string) error {
	if _, ok := r.files[path]; !ok {
		return errors.New("no such file")
	}
	delete(r.files, path)
	return nil
}

func newTestSource(t *testing.T, reader DirReader, cfg map[string]any) *Source {
	t.Helper()
	obj, err := NewProvider(reader).NewInstance("img-1", TypeID, "Frame", cfg)
	require.NoError(t, err)
	return obj.(*Source)
}

func TestScanFiltersNonImages(t *testing.T) {
	reader := newMemReader("/photos/a.jpg", "/photos/b.png", "/photos/notes.txt")
	src := newTestSource(t, reader, map[string]any{"directory": "/photos"})

	images, err := src.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 2)
	for _, img := range images {
		assert.NotEqual(t, "notes.txt", img.Name)
		assert.NotEmpty(t, img.MimeType)
	}
}

func TestImageDataByID(t *testing.T) {
	reader := newMemReader("/photos/a.jpg")
	src := newTestSource(t, reader, map[string]any{"directory": "/photos"})
	ctx := context.Background()

	images, err := src.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, images, 1)

	data, err := src.ImageData(ctx, images[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("data-a.jpg"), data)

	missing, err := src.ImageData(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUploadGatedByConfig(t *testing.T) {
	reader := newMemReader()
	src := newTestSource(t, reader, map[string]any{"directory": "/photos"})
	ctx := context.Background()

	_, err := src.UploadImage(ctx, []byte("bytes"), "new.jpg")
	assert.ErrorIs(t, err, plugin.ErrUnsupported)

	deleted, err := src.DeleteImage(ctx, "any")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUploadAndDelete(t *testing.T) {
	reader := newMemReader()
	src := newTestSource(t, reader, map[string]any{"directory": "/photos", "allow_uploads": true})
	ctx := context.Background()

	meta, err := src.UploadImage(ctx, []byte("bytes"), "../sneaky/new.jpg")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "new.jpg", meta.Name, "uploads are confined to the configured directory")

	deleted, err := src.DeleteImage(ctx, meta.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	images, err := src.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestInitRequiresDirectory(t *testing.T) {
	obj, err := NewProvider(newMemReader()).NewInstance("img-1", TypeID, "Frame", nil)
	require.NoError(t, err)
	assert.Error(t, obj.Init(context.Background()))
}
