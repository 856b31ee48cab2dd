package store

import "context"

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	// Migrate brings the schema up to date. Idempotent.
	Migrate(ctx context.Context) error

	UpsertCasualRequest(ctx context.Context, upsert *UpsertCasualRequest) (*CasualRequest, error)
	GetCasualRequest(ctx context.Context, find *FindCasualRequest) (*CasualRequest, error)
	ListCasualRequests(ctx context.Context, find *FindCasualRequest) ([]*CasualRequest, error)
	DeactivateCasualRequest(ctx context.Context, userID string) error

	Close() error
}
