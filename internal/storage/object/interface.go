// internal/storage/object/interface.go
package object

import "context"

// Storage defines the interface for object storage backends. Both the
// processed-dataset store and the model loader read through it.
type Storage interface {
	// Write stores data at the given key, replacing any existing object
	// atomically.
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves data from the given key.
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns all keys matching the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the object at the given key.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
}
