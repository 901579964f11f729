// package models defines the persisted entities of the backup service
package models

import "context"

// Model defines the base interface for all persistent models.
type Model interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(ctx context.Context, model T) error        // Create inserts a new model, assigning its ID
	Get(ctx context.Context, id string) (T, error)    // Get retrieves a model by its ID
	Update(ctx context.Context, model T) error        // Update modifies an existing model
	List(ctx context.Context, limit int) ([]T, error) // List retrieves the newest models first, at most limit when limit > 0
}
