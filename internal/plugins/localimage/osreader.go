package localimage

import (
	"os"
	"path/filepath"
)

// osReader is the default DirReader backed by the host filesystem.
type osReader struct{}

func (osReader) ListFiles(dir string) ([]FileMeta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]FileMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, FileMeta{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

func (osReader) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (osReader) Write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (osReader) Remove(path string) error {
	return os.Remove(path)
}

var _ DirReader = osReader{}
