// Package localimage serves images from a directory on the host.
package localimage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"homedash/pkg/plugin"
)

// TypeID identifies the local directory image source.
const TypeID = "local_images"

var schema = plugin.Schema{
	{Name: "directory", Kind: "string", Required: true},
	{Name: "allow_uploads", Kind: "bool", Default: false},
}

// FileMeta describes one file reported by a DirReader.
type FileMeta struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// DirReader is the image-store collaborator: list, read, and for
// sources that allow it, write and remove.
type DirReader interface {
	ListFiles(dir string) ([]FileMeta, error)
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Remove(path string) error
}

// Provider announces the local image type and constructs instances.
type Provider struct {
	reader DirReader
}

// NewProvider builds the provider. A nil reader falls back to the OS
// filesystem.
func NewProvider(reader DirReader) *Provider {
	if reader == nil {
		reader = osReader{}
	}
	return &Provider{reader: reader}
}

// PluginTypes implements plugin.Provider. Multiple directories may be
// configured side by side, so the type toggle does not propagate.
func (p *Provider) PluginTypes() []plugin.Info {
	return []plugin.Info{{
		TypeID:      TypeID,
		Name:        "Local images",
		Description: "Serves images from a directory on the dashboard host.",
		Version:     "1.0.0",
		Category:    plugin.CategoryImage,
		Schema:      schema,
	}}
}

// NewInstance implements plugin.Provider.
func (p *Provider) NewInstance(instanceID, typeID, name string, cfg map[string]any) (plugin.Plugin, error) {
	if typeID != TypeID {
		return nil, nil
	}
	src := &Source{
		Base:   plugin.NewBase(instanceID, name),
		reader: p.reader,
	}
	if err := src.Configure(cfg); err != nil {
		return nil, err
	}
	return src, nil
}

// Source is one configured image directory.
type Source struct {
	plugin.Base
	reader DirReader

	mu     sync.RWMutex
	images map[string]plugin.ImageMeta
	order  []string
}

// Info implements plugin.Plugin.
func (s *Source) Info() plugin.Info {
	return (&Provider{}).PluginTypes()[0]
}

// Init scans the directory once so the source is ready to serve.
func (s *Source) Init(ctx context.Context) error {
	if err := s.BeginInit(); err != nil {
		return err
	}
	_, err := s.Scan(ctx)
	return err
}

// Cleanup implements plugin.Plugin.
func (s *Source) Cleanup(context.Context) error {
	s.FinishCleanup()
	return nil
}

// Images implements plugin.ImageSource.
func (s *Source) Images(ctx context.Context) ([]plugin.ImageMeta, error) {
	s.mu.RLock()
	scanned := s.images != nil
	s.mu.RUnlock()
	if !scanned {
		return s.Scan(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]plugin.ImageMeta, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.images[id])
	}
	return out, nil
}

// Image implements plugin.ImageSource.
func (s *Source) Image(_ context.Context, id string) (*plugin.ImageMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if meta, ok := s.images[id]; ok {
		return &meta, nil
	}
	return nil, nil
}

// ImageData implements plugin.ImageSource.
func (s *Source) ImageData(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	meta, ok := s.images[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.reader.Read(meta.Path)
}

// Scan implements plugin.ImageSource: it re-reads the directory and
// rebuilds the image index.
func (s *Source) Scan(context.Context) ([]plugin.ImageMeta, error) {
	dir := s.ConfigString("directory")
	if dir == "" {
		return nil, errors.New("directory is not configured")
	}
	files, err := s.reader.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	images := make(map[string]plugin.ImageMeta, len(files))
	order := make([]string, 0, len(files))
	var out []plugin.ImageMeta
	for _, file := range files {
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Name)))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		meta := plugin.ImageMeta{
			ID:       imageID(file.Path),
			Name:     file.Name,
			Path:     file.Path,
			MimeType: mimeType,
			Size:     file.Size,
			TakenAt:  file.ModTime,
		}
		images[meta.ID] = meta
		order = append(order, meta.ID)
		out = append(out, meta)
	}

	s.mu.Lock()
	s.images = images
	s.order = order
	s.mu.Unlock()
	return out, nil
}

// UploadImage implements plugin.ImageUploader when uploads are allowed
// for the directory.
func (s *Source) UploadImage(ctx context.Context, data []byte, filename string) (*plugin.ImageMeta, error) {
	if !s.ConfigBool("allow_uploads") {
		return nil, plugin.ErrUnsupported
	}
	dir := s.ConfigString("directory")
	if dir == "" {
		return nil, errors.New("directory is not configured")
	}
	path := filepath.Join(dir, filepath.Base(filename))
	if err := s.reader.Write(path, data); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if _, err := s.Scan(ctx); err != nil {
		return nil, err
	}
	return s.Image(ctx, imageID(path))
}

// DeleteImage implements plugin.ImageDeleter when uploads are allowed.
func (s *Source) DeleteImage(ctx context.Context, id string) (bool, error) {
	if !s.ConfigBool("allow_uploads") {
		return false, nil
	}
	s.mu.RLock()
	meta, ok := s.images[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := s.reader.Remove(meta.Path); err != nil {
		return false, fmt.Errorf("remove image: %w", err)
	}
	if _, err := s.Scan(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func imageID(path string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return fmt.Sprintf("%x", h.Sum64())
}

// ensure interface compliance at compile time
var (
	_ plugin.Provider      = (*Provider)(nil)
	_ plugin.ImageSource   = (*Source)(nil)
	_ plugin.ImageUploader = (*Source)(nil)
	_ plugin.ImageDeleter  = (*Source)(nil)
)
