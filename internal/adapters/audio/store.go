package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"newsroom/internal/domain"
)

// FileStore кладёт аудио в локальный каталог.
type FileStore struct {
	dir string
}

var _ domain.AssetStore = (*FileStore)(nil)

// NewFileStore создаёт хранилище.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "static/audio"
	}
	return &FileStore{dir: dir}
}

// Persist записывает файл. Пустые данные дают пустой путь без ошибки.
func (s *FileStore) Persist(_ context.Context, data []byte, name string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("audio: create dir: %w", err)
	}
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("audio: write file: %w", err)
	}
	return path, nil
}
