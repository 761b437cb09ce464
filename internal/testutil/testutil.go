package testutil

import (
	"testing"

	"github.com/abrezinsky/rallyoverlay/internal/logger"
	"github.com/abrezinsky/rallyoverlay/internal/repository"
)

// NewTestRepository creates a new in-memory repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// NewFileRepository opens a repository on a file in a temp dir. Two calls
// with the same path behave like two processes sharing durable storage.
func NewFileRepository(t *testing.T, path string) *repository.Repository {
	t.Helper()

	repo, err := repository.New(path)
	if err != nil {
		t.Fatalf("failed to open repository %s: %v", path, err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// NewTestLogger returns a logger that discards output
func NewTestLogger() logger.Logger {
	return logger.Discard()
}
