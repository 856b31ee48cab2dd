package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/luoshen/linkmate/store"
)

// Migrate creates the casual_request table. SQLite has no vector type, so
// the optimized-query embedding is stored as a JSON array; dev deployments
// do not run the external matcher anyway.
func (d *DB) Migrate(ctx context.Context) error {
	stmt := `
		CREATE TABLE IF NOT EXISTS casual_request (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL UNIQUE,
			activity TEXT NOT NULL,
			raw_message TEXT NOT NULL DEFAULT '',
			optimized_query TEXT NOT NULL DEFAULT '',
			preferences TEXT NOT NULL DEFAULT '{}',
			embedding TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			created_ts INTEGER NOT NULL,
			updated_ts INTEGER NOT NULL,
			last_activity_ts INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_casual_request_activity_status
			ON casual_request (activity, status);
	`
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to migrate casual_request")
	}
	return nil
}

// UpsertCasualRequest inserts or replaces a user's active request.
func (d *DB) UpsertCasualRequest(ctx context.Context, upsert *store.UpsertCasualRequest) (*store.CasualRequest, error) {
	now := upsert.UpdatedTs
	if now == 0 {
		now = time.Now().Unix()
	}

	var embedding any
	if len(upsert.Embedding) > 0 {
		encoded, err := json.Marshal(upsert.Embedding)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode embedding")
		}
		embedding = string(encoded)
	}

	stmt := `
		INSERT INTO casual_request (
			user_id, activity, raw_message, optimized_query, preferences,
			embedding, status, created_ts, updated_ts, last_activity_ts
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET
			activity = excluded.activity,
			raw_message = excluded.raw_message,
			optimized_query = excluded.optimized_query,
			preferences = excluded.preferences,
			embedding = excluded.embedding,
			status = excluded.status,
			updated_ts = excluded.updated_ts,
			last_activity_ts = excluded.last_activity_ts
		RETURNING id, created_ts
	`

	request := &store.CasualRequest{
		UserID:         upsert.UserID,
		Activity:       upsert.Activity,
		RawMessage:     upsert.RawMessage,
		OptimizedQuery: upsert.OptimizedQuery,
		Preferences:    upsert.Preferences,
		Embedding:      upsert.Embedding,
		Status:         store.CasualRequestActive,
		UpdatedTs:      now,
		LastActivityTs: now,
	}

	err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID,
		upsert.Activity,
		upsert.RawMessage,
		upsert.OptimizedQuery,
		preferencesOrDefault(upsert.Preferences),
		embedding,
		store.CasualRequestActive,
		now,
		now,
		now,
	).Scan(&request.ID, &request.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert casual request")
	}

	return request, nil
}

// GetCasualRequest returns the first match or nil when nothing matches.
func (d *DB) GetCasualRequest(ctx context.Context, find *store.FindCasualRequest) (*store.CasualRequest, error) {
	list, err := d.ListCasualRequests(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListCasualRequests lists casual requests, most recently active first.
func (d *DB) ListCasualRequests(ctx context.Context, find *store.FindCasualRequest) ([]*store.CasualRequest, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.Activity != nil {
		where, args = append(where, "activity = ?"), append(args, *find.Activity)
	}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, *find.Status)
	}

	query := `
		SELECT id, user_id, activity, raw_message, optimized_query, preferences,
			embedding, status, created_ts, updated_ts, last_activity_ts
		FROM casual_request
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY last_activity_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list casual requests")
	}
	defer rows.Close()

	list := []*store.CasualRequest{}
	for rows.Next() {
		var request store.CasualRequest
		var embedding sql.NullString
		err := rows.Scan(
			&request.ID,
			&request.UserID,
			&request.Activity,
			&request.RawMessage,
			&request.OptimizedQuery,
			&request.Preferences,
			&embedding,
			&request.Status,
			&request.CreatedTs,
			&request.UpdatedTs,
			&request.LastActivityTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan casual request")
		}
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &request.Embedding); err != nil {
				return nil, errors.Wrap(err, "failed to decode embedding")
			}
		}
		list = append(list, &request)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// DeactivateCasualRequest marks a user's request inactive.
func (d *DB) DeactivateCasualRequest(ctx context.Context, userID string) error {
	stmt := `UPDATE casual_request SET status = ?, updated_ts = ? WHERE user_id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, store.CasualRequestInactive, time.Now().Unix(), userID); err != nil {
		return errors.Wrap(err, "failed to deactivate casual request")
	}
	return nil
}

func preferencesOrDefault(preferences string) string {
	if strings.TrimSpace(preferences) == "" {
		return "{}"
	}
	return preferences
}
