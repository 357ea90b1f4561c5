package dao

import (
	"context"

	"github.com/viant/opflow/model"
)

// Service is a keyed store shared between the scheduler and its workers.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}

// Registry is the status registry: launch reports keyed by (operation,
// configuration).  Implementations must be safe for concurrent use and a
// Save must become visible to later Loads.
type Registry = Service[model.Key, model.Report]
