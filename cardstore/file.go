package cardstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type document struct {
	Cards []Card `yaml:"cards"`
}

// FileStore keeps cards in a YAML document:
//
//	cards:
//	  - identifier: 02FE1A2B3C4D5E6F
//	    name: Front door
//
// Each write rewrites the whole file through a temporary file and rename, so
// a crash leaves either the old or the new document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore at path. The file is created on first
// write; a missing file lists as empty.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) List(ctx context.Context) ([]Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Cards, nil
}

func (s *FileStore) Create(ctx context.Context, card Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Cards = append(doc.Cards, card)
	return s.save(doc)
}

func (s *FileStore) Update(ctx context.Context, index int, card Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(doc.Cards) {
		return indexError("update", index, len(doc.Cards))
	}
	doc.Cards[index] = card
	return s.save(doc)
}

func (s *FileStore) load() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read card store: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse card store %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) save(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode card store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create card store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cards-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write card store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write card store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace card store: %w", err)
	}
	return nil
}
