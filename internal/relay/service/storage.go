package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ha-floorplan/internal/common/apperr"
)

// ============================================================
// File Storage
// ============================================================

// FileStorage хранит ассеты планов в одном каталоге (UPLOAD_DIR).
type FileStorage struct {
	root string
}

func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

func (s *FileStorage) Root() string {
	return s.root
}

// SafeName оставляет от имени файла только базовую часть.
func SafeName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", apperr.New(apperr.CodeInvalidInput, "invalid file name %q", name)
	}
	return base, nil
}

func (s *FileStorage) PlanPath(filename string) string {
	return filepath.Join(s.root, filename)
}

func (s *FileStorage) EnsureDir() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("mkdir uploads dir: %w", err)
	}
	return nil
}

// SaveFile пишет ассет под безопасным именем и возвращает это имя.
func (s *FileStorage) SaveFile(filename string, data []byte) (string, error) {
	name, err := SafeName(filename)
	if err != nil {
		return "", err
	}
	if err := s.EnsureDir(); err != nil {
		return "", err
	}
	if err := os.WriteFile(s.PlanPath(name), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}

func (s *FileStorage) Exists(filename string) bool {
	name, err := SafeName(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(s.PlanPath(name))
	return err == nil && !info.IsDir()
}

// Prune удаляет файлы, на которые не ссылается ни один план.
func (s *FileStorage) Prune(keep map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() || keep[e.Name()] {
			continue
		}
		if err := os.Remove(s.PlanPath(e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
