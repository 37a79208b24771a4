package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
)

// CreateCollection inserts a collection, assigning an ID when unset.
func (s *Store) CreateCollection(ctx context.Context, c *content.Collection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO collections (id, handle, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID.String(), nullString(c.Handle), c.Name, c.Description, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("inserting collection: %w", err)
	}
	if c.Handle != "" {
		if err := s.CreateHandle(ctx, c.Handle, ResourceCollection, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetCollection retrieves a collection by ID.
func (s *Store) GetCollection(ctx context.Context, id uuid.UUID) (*content.Collection, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, handle, name, description, created_at, updated_at
		FROM collections WHERE id = ?
	`, id.String())
	return scanCollection(row)
}

// UpdateCollection saves name and description changes.
func (s *Store) UpdateCollection(ctx context.Context, c *content.Collection) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		UPDATE collections SET name = ?, description = ?, updated_at = ? WHERE id = ?
	`, c.Name, c.Description, formatTime(c.UpdatedAt), c.ID.String())
	if err != nil {
		return fmt.Errorf("updating collection: %w", err)
	}
	return expectRow(res)
}

// DeleteCollection removes a collection and, by cascade, its items.
func (s *Store) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM handles
		WHERE resource_id = ? OR resource_id IN (SELECT id FROM items WHERE owning_collection = ?)
	`, id.String(), id.String())
	if err != nil {
		return fmt.Errorf("deleting collection handles: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return expectRow(res)
}

// ListCollections returns all collections ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]*content.Collection, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, handle, name, description, created_at, updated_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*content.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(row scanner) (*content.Collection, error) {
	var c content.Collection
	var id string
	var handle, created, updated sql.NullString
	if err := row.Scan(&id, &handle, &c.Name, &c.Description, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("collection id %q: %w", id, err)
	}
	c.ID = parsed
	c.Handle = handle.String
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
