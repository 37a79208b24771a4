package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
)

// CreateDOI inserts a DOI row. DOI values are stored without the "doi:"
// scheme and upper-cased, as DOIs are case insensitive.
func (s *Store) CreateDOI(ctx context.Context, d *content.DOI) error {
	res, err := s.q.ExecContext(ctx, `INSERT INTO dois (doi, item_id, status) VALUES (?, ?, ?)`,
		normalizeDOI(d.DOI), nullUUID(d.ItemID), int(d.Status))
	if err != nil {
		return fmt.Errorf("inserting doi: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

// GetDOI looks up a DOI row by its value.
func (s *Store) GetDOI(ctx context.Context, doi string) (*content.DOI, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, doi, item_id, status FROM dois WHERE doi = ?`, normalizeDOI(doi))
	return scanDOI(row)
}

// GetDOIByItem returns the DOI row bound to an item. Rows in DELETED
// state are returned too; callers decide how to treat them.
func (s *Store) GetDOIByItem(ctx context.Context, item uuid.UUID) (*content.DOI, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, doi, item_id, status FROM dois WHERE item_id = ? ORDER BY id DESC LIMIT 1
	`, item.String())
	return scanDOI(row)
}

// UpdateDOI saves the item binding and status of a DOI row.
func (s *Store) UpdateDOI(ctx context.Context, d *content.DOI) error {
	res, err := s.q.ExecContext(ctx, `UPDATE dois SET item_id = ?, status = ? WHERE id = ?`,
		nullUUID(d.ItemID), int(d.Status), d.ID)
	if err != nil {
		return fmt.Errorf("updating doi: %w", err)
	}
	return expectRow(res)
}

// ListDOIsByStatus returns DOI rows in any of the given statuses.
func (s *Store) ListDOIsByStatus(ctx context.Context, statuses ...content.DOIStatus) ([]*content.DOI, error) {
	query := `SELECT id, doi, item_id, status FROM dois`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, int(st))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*content.DOI
	for rows.Next() {
		d, err := scanDOI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// NextDOISuffix returns one more than the highest numeric suffix already
// minted under prefix/namespace.
func (s *Store) NextDOISuffix(ctx context.Context, prefixAndNamespace string) (int64, error) {
	base := normalizeDOI(prefixAndNamespace)
	var last sql.NullInt64
	err := s.q.QueryRowContext(ctx, `
		SELECT MAX(CAST(substr(doi, ?) AS INTEGER)) FROM dois
		WHERE doi LIKE ? AND substr(doi, ?) GLOB '[0-9]*'
	`, len(base)+1, base+"%", len(base)+1).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("reading doi suffix: %w", err)
	}
	return last.Int64 + 1, nil
}

func scanDOI(row scanner) (*content.DOI, error) {
	var d content.DOI
	var itemID sql.NullString
	var status int
	if err := row.Scan(&d.ID, &d.DOI, &itemID, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if itemID.Valid {
		id, err := uuid.Parse(itemID.String)
		if err != nil {
			return nil, fmt.Errorf("doi item id %q: %w", itemID.String, err)
		}
		d.ItemID = id
	}
	d.Status = content.DOIStatus(status)
	return &d, nil
}

func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if len(doi) >= 4 && strings.EqualFold(doi[:4], "doi:") {
		doi = doi[4:]
	}
	return strings.ToUpper(doi)
}
