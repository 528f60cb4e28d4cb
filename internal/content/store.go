package content

import (
	"context"
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned by a Backend when no object exists at a key.
var ErrObjectNotFound = errors.New("object not found")

// Backend is a flat object store addressed by key.
type Backend interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

func Key(docID string) string {
	return "documents/" + docID + "/content.txt"
}

// LegacyKey is where bodies were written before the content.txt naming.
func LegacyKey(docID string) string {
	return "documents/" + docID + "/latest.txt"
}

func VersionKey(docID string, version int) string {
	return fmt.Sprintf("documents/%s/versions/%d.txt", docID, version)
}

// Store holds the latest body of every document.
type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Write overwrites the canonical object. On error the stored body is unknown.
func (s *Store) Write(ctx context.Context, docID, text string) error {
	if err := s.backend.Put(ctx, Key(docID), []byte(text)); err != nil {
		return fmt.Errorf("write content %s: %w", docID, err)
	}
	return nil
}

// Read returns the body at the canonical key, then the legacy key, and the
// empty string only when both are missing. Any other failure is returned.
func (s *Store) Read(ctx context.Context, docID string) (string, error) {
	for _, key := range []string{Key(docID), LegacyKey(docID)} {
		body, err := s.backend.Get(ctx, key)
		if err == nil {
			return string(body), nil
		}
		if !errors.Is(err, ErrObjectNotFound) {
			return "", fmt.Errorf("read content %s: %w", key, err)
		}
	}
	return "", nil
}

func (s *Store) Delete(ctx context.Context, docID string) error {
	return s.RemoveObject(ctx, Key(docID))
}

func (s *Store) WriteObject(ctx context.Context, key, text string) error {
	if err := s.backend.Put(ctx, key, []byte(text)); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

func (s *Store) ReadObject(ctx context.Context, key string) (string, error) {
	body, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", key, err)
	}
	return string(body), nil
}

// RemoveObject treats a missing object as already removed.
func (s *Store) RemoveObject(ctx context.Context, key string) error {
	err := s.backend.Remove(ctx, key)
	if err == nil || errors.Is(err, ErrObjectNotFound) {
		return nil
	}
	return fmt.Errorf("remove object %s: %w", key, err)
}
