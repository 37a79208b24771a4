package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Resource types a handle can point at.
const (
	ResourceItem       = "item"
	ResourceCollection = "collection"
)

// HandleTarget is the object a handle resolves to.
type HandleTarget struct {
	Handle string
	Type   string
	ID     uuid.UUID
}

// CreateHandle binds handle to a resource. Binding a handle that already
// points elsewhere is an error.
func (s *Store) CreateHandle(ctx context.Context, handle, resourceType string, id uuid.UUID) error {
	existing, err := s.ResolveHandle(ctx, handle)
	switch {
	case err == nil && existing.ID == id:
		return nil
	case err == nil:
		return fmt.Errorf("handle %s is already in use by %s %s", handle, existing.Type, existing.ID)
	case !errors.Is(err, ErrNotFound):
		return err
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO handles (handle, resource_type, resource_id) VALUES (?, ?, ?)`,
		handle, resourceType, id.String())
	if err != nil {
		return fmt.Errorf("inserting handle: %w", err)
	}
	return nil
}

// ResolveHandle looks up the resource bound to handle.
func (s *Store) ResolveHandle(ctx context.Context, handle string) (*HandleTarget, error) {
	var t HandleTarget
	var id string
	err := s.q.QueryRowContext(ctx, `SELECT handle, resource_type, resource_id FROM handles WHERE handle = ?`, handle).
		Scan(&t.Handle, &t.Type, &id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("handle %s resource id: %w", handle, err)
	}
	return &t, nil
}

// MintHandle returns the next unused handle under prefix, in the form
// prefix/N. The handle is not bound until CreateHandle is called.
func (s *Store) MintHandle(ctx context.Context, prefix string) (string, error) {
	var last sql.NullInt64
	err := s.q.QueryRowContext(ctx, `
		SELECT MAX(CAST(substr(handle, ?) AS INTEGER)) FROM handles
		WHERE handle LIKE ? AND substr(handle, ?) GLOB '[0-9]*'
	`, len(prefix)+2, prefix+"/%", len(prefix)+2).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("minting handle: %w", err)
	}
	return fmt.Sprintf("%s/%d", prefix, last.Int64+1), nil
}
