package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luoshen/linkmate/internal/profile"
	"github.com/luoshen/linkmate/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := NewDB(&profile.Profile{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	return d
}

func TestUpsertCasualRequestCreates(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	request, err := d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{
		UserID:         "u1",
		Activity:       "tennis",
		RawMessage:     "周末想找人打网球",
		OptimizedQuery: "tennis partner weekend shanghai",
		Preferences:    `{"time":"weekend"}`,
		Embedding:      []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.NotZero(t, request.ID)
	assert.Equal(t, store.CasualRequestActive, request.Status)
	assert.NotZero(t, request.CreatedTs)
}

func TestUpsertCasualRequestReplacesInPlace(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	first, err := d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{
		UserID:    "u1",
		Activity:  "tennis",
		UpdatedTs: 1000,
	})
	require.NoError(t, err)

	second, err := d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{
		UserID:    "u1",
		Activity:  "coffee",
		UpdatedTs: 2000,
	})
	require.NoError(t, err)

	// Same row, rewritten: the per-user invariant holds.
	assert.Equal(t, first.ID, second.ID)

	list, err := d.ListCasualRequests(ctx, &store.FindCasualRequest{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "coffee", list[0].Activity)
	assert.Equal(t, int64(2000), list[0].LastActivityTs)
	assert.Equal(t, first.CreatedTs, list[0].CreatedTs)
}

func TestUpsertReactivatesInactiveRequest(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{UserID: "u1", Activity: "tennis"})
	require.NoError(t, err)
	require.NoError(t, d.DeactivateCasualRequest(ctx, "u1"))

	_, err = d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{UserID: "u1", Activity: "tennis"})
	require.NoError(t, err)

	request, err := d.GetCasualRequest(ctx, &store.FindCasualRequest{UserID: ptr("u1")})
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, store.CasualRequestActive, request.Status)
}

func TestListCasualRequestsFilters(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{UserID: "u1", Activity: "tennis", UpdatedTs: 1})
	require.NoError(t, err)
	_, err = d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{UserID: "u2", Activity: "coffee", UpdatedTs: 2})
	require.NoError(t, err)
	_, err = d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{UserID: "u3", Activity: "tennis", UpdatedTs: 3})
	require.NoError(t, err)
	require.NoError(t, d.DeactivateCasualRequest(ctx, "u3"))

	active := store.CasualRequestActive
	tennis := "tennis"
	list, err := d.ListCasualRequests(ctx, &store.FindCasualRequest{Activity: &tennis, Status: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u1", list[0].UserID)
}

func TestGetCasualRequestMissingReturnsNil(t *testing.T) {
	d := newTestDB(t)

	request, err := d.GetCasualRequest(context.Background(), &store.FindCasualRequest{UserID: ptr("ghost")})
	require.NoError(t, err)
	assert.Nil(t, request)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{
		UserID:    "u1",
		Activity:  "tennis",
		Embedding: []float32{0.5, -0.25},
	})
	require.NoError(t, err)

	request, err := d.GetCasualRequest(ctx, &store.FindCasualRequest{UserID: ptr("u1")})
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, []float32{0.5, -0.25}, request.Embedding)
}

func TestEmptyPreferencesDefaultToObject(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.UpsertCasualRequest(ctx, &store.UpsertCasualRequest{UserID: "u1", Activity: "tennis"})
	require.NoError(t, err)

	request, err := d.GetCasualRequest(ctx, &store.FindCasualRequest{UserID: ptr("u1")})
	require.NoError(t, err)
	assert.Equal(t, "{}", request.Preferences)
}

func ptr[T any](v T) *T {
	return &v
}
