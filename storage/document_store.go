package storage

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// defaultStorageDir is used when no storage path is configured.
const defaultStorageDir = "_documents"

// ErrDocumentNotFound is returned when no document exists at a path.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore defines the interface for persisting signed CLA documents.
type DocumentStore interface {
	// Store saves the document and returns the relative path it was stored under.
	Store(projectID, signatureType, signatureID string, content io.Reader) (relativePath string, err error)
	Open(relativePath string) (afero.File, error)
	Delete(relativePath string) error
}

// FileDocumentStore keeps documents on an afero filesystem:
// <basePath>/<projectID>/<signatureType>/<signatureID>.pdf
type FileDocumentStore struct {
	fs       afero.Fs
	basePath string
}

// NewFileDocumentStore creates a store rooted at basePath on fs.
// If basePath is empty, it defaults to defaultStorageDir.
func NewFileDocumentStore(fs afero.Fs, basePath string) *FileDocumentStore {
	if basePath == "" {
		basePath = defaultStorageDir
	}
	return &FileDocumentStore{fs: afero.NewBasePathFs(fs, basePath), basePath: basePath}
}

func (s *FileDocumentStore) Store(projectID, signatureType, signatureID string, content io.Reader) (string, error) {
	if projectID == "" || signatureType == "" || signatureID == "" {
		return "", fmt.Errorf("projectID, signatureType and signatureID cannot be empty for storing a document")
	}

	relativeDir := filepath.Join(projectID, signatureType)
	relativePath := filepath.Join(relativeDir, signatureID+".pdf")

	if err := s.fs.MkdirAll(relativeDir, os.ModePerm); err != nil {
		log.Printf("ERROR (DocumentStore): Failed to create storage directory '%s': %v", relativeDir, err)
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	f, err := s.fs.OpenFile(relativePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create document file: %w", err)
	}
	written, copyErr := io.Copy(f, content)
	closeErr := f.Close()
	if copyErr != nil {
		_ = s.fs.Remove(relativePath)
		return "", fmt.Errorf("failed to write document: %w", copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to close document file: %w", closeErr)
	}

	log.Printf("INFO (DocumentStore): Saved document to %s (%d bytes)", filepath.Join(s.basePath, relativePath), written)
	return relativePath, nil
}

func (s *FileDocumentStore) Open(relativePath string) (afero.File, error) {
	f, err := s.fs.Open(relativePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, relativePath)
		}
		return nil, fmt.Errorf("failed to open document %s: %w", relativePath, err)
	}
	return f, nil
}

func (s *FileDocumentStore) Delete(relativePath string) error {
	if err := s.fs.Remove(relativePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, relativePath)
		}
		return fmt.Errorf("failed to delete document %s: %w", relativePath, err)
	}
	return nil
}
