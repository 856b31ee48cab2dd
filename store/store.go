package store

import (
	"context"

	"github.com/luoshen/linkmate/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertCasualRequest(ctx context.Context, upsert *UpsertCasualRequest) (*CasualRequest, error) {
	return s.driver.UpsertCasualRequest(ctx, upsert)
}

func (s *Store) GetCasualRequest(ctx context.Context, find *FindCasualRequest) (*CasualRequest, error) {
	return s.driver.GetCasualRequest(ctx, find)
}

func (s *Store) ListCasualRequests(ctx context.Context, find *FindCasualRequest) ([]*CasualRequest, error) {
	return s.driver.ListCasualRequests(ctx, find)
}

func (s *Store) DeactivateCasualRequest(ctx context.Context, userID string) error {
	return s.driver.DeactivateCasualRequest(ctx, userID)
}
