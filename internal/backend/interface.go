package backend

import (
	"context"

	"receitas/internal/core"
	"receitas/internal/storage"
)

// Backend is the income management surface used by the binaries
type Backend interface {
	Save(ctx context.Context, in *core.Income) error
	Get(ctx context.Context, id int64) (*core.Income, error)
	List(ctx context.Context) ([]core.Income, error)
	ListActive(ctx context.Context, m core.Month) ([]core.Income, error)
	Delete(ctx context.Context, id int64) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	// Repository is set for the sql backends
	Repository *storage.Repository
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
