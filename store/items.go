package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
)

// ItemFilter narrows ListItems and CountItems.
type ItemFilter struct {
	// Collection restricts to one owning collection when set.
	Collection uuid.UUID
	// ArchivedOnly excludes workspace and withdrawn items.
	ArchivedOnly bool
	// ModifiedFrom and ModifiedUntil bound last_modified, inclusive.
	ModifiedFrom  time.Time
	ModifiedUntil time.Time
	Offset        int
	Limit         int
}

// CreateItem inserts an item with its metadata and bundles.
func (s *Store) CreateItem(ctx context.Context, item *content.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.LastModified.IsZero() {
		item.LastModified = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO items (id, handle, owning_collection, in_archive, withdrawn, discoverable, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.ID.String(), nullString(item.Handle), nullUUID(item.OwningCollection),
		boolInt(item.InArchive), boolInt(item.Withdrawn), boolInt(item.Discoverable), formatTime(item.LastModified))
	if err != nil {
		return fmt.Errorf("inserting item: %w", err)
	}
	if err := s.writeItemChildren(ctx, item); err != nil {
		return err
	}
	if item.Handle != "" {
		return s.CreateHandle(ctx, item.Handle, ResourceItem, item.ID)
	}
	return nil
}

// UpdateItem saves the item row and rewrites its metadata and bundles.
func (s *Store) UpdateItem(ctx context.Context, item *content.Item) error {
	item.LastModified = time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		UPDATE items SET handle = ?, owning_collection = ?, in_archive = ?, withdrawn = ?, discoverable = ?, last_modified = ?
		WHERE id = ?
	`, nullString(item.Handle), nullUUID(item.OwningCollection), boolInt(item.InArchive),
		boolInt(item.Withdrawn), boolInt(item.Discoverable), formatTime(item.LastModified), item.ID.String())
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM metadata_values WHERE item_id = ?`, item.ID.String()); err != nil {
		return fmt.Errorf("clearing metadata: %w", err)
	}
	if err := s.clearBundles(ctx, item.ID); err != nil {
		return err
	}
	if err := s.writeItemChildren(ctx, item); err != nil {
		return err
	}

	if item.Handle != "" {
		owner, err := s.ResolveHandle(ctx, item.Handle)
		switch {
		case errors.Is(err, ErrNotFound):
			return s.CreateHandle(ctx, item.Handle, ResourceItem, item.ID)
		case err != nil:
			return err
		case owner.ID != item.ID:
			return fmt.Errorf("handle %s already belongs to %s", item.Handle, owner.ID)
		}
	}
	return nil
}

func (s *Store) writeItemChildren(ctx context.Context, item *content.Item) error {
	for _, mv := range item.Metadata {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO metadata_values (item_id, schema_name, element, qualifier, language, value, authority, confidence, place)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, item.ID.String(), mv.Schema, mv.Element, mv.Qualifier, mv.Language, mv.Value, mv.Authority, mv.Confidence, mv.Place)
		if err != nil {
			return fmt.Errorf("inserting metadata %s: %w", mv.Field(), err)
		}
	}

	for i := range item.Bundles {
		b := &item.Bundles[i]
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if _, err := s.q.ExecContext(ctx, `INSERT INTO bundles (id, item_id, name) VALUES (?, ?, ?)`,
			b.ID.String(), item.ID.String(), b.Name); err != nil {
			return fmt.Errorf("inserting bundle %s: %w", b.Name, err)
		}
		for seq := range b.Bitstreams {
			bs := &b.Bitstreams[seq]
			if bs.ID == uuid.Nil {
				bs.ID = uuid.New()
			}
			_, err := s.q.ExecContext(ctx, `
				INSERT INTO bitstreams (id, bundle_id, sequence, name, mime_type, size, checksum, source, content)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, bs.ID.String(), b.ID.String(), seq, bs.Name, bs.MimeType, bs.Size, bs.Checksum, bs.Source, bs.Content)
			if err != nil {
				return fmt.Errorf("inserting bitstream %s: %w", bs.Name, err)
			}
		}
	}
	return nil
}

// GetItem retrieves an item with its metadata and bundles.
func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*content.Item, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, handle, owning_collection, in_archive, withdrawn, discoverable, last_modified
		FROM items WHERE id = ?
	`, id.String())
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadItemChildren(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item, its handle and its harvest bookkeeping.
func (s *Store) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM handles WHERE resource_id = ?`, id.String()); err != nil {
		return fmt.Errorf("deleting item handle: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM metadata_values WHERE item_id = ?`, id.String()); err != nil {
		return fmt.Errorf("deleting item metadata: %w", err)
	}
	if err := s.clearBundles(ctx, id); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM harvested_items WHERE item_id = ?`, id.String()); err != nil {
		return fmt.Errorf("deleting harvested item: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return expectRow(res)
}

func (s *Store) clearBundles(ctx context.Context, itemID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM bitstreams WHERE bundle_id IN (SELECT id FROM bundles WHERE item_id = ?)
	`, itemID.String())
	if err != nil {
		return fmt.Errorf("clearing bitstreams: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM bundles WHERE item_id = ?`, itemID.String()); err != nil {
		return fmt.Errorf("clearing bundles: %w", err)
	}
	return nil
}

// ListItems returns items matching filter ordered by last modification.
func (s *Store) ListItems(ctx context.Context, filter ItemFilter) ([]*content.Item, error) {
	where, args := filter.clause()
	query := `SELECT id, handle, owning_collection, in_archive, withdrawn, discoverable, last_modified FROM items` +
		where + ` ORDER BY last_modified, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var items []*content.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, item := range items {
		if err := s.loadItemChildren(ctx, item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// CountItems counts items matching filter, ignoring Offset and Limit.
func (s *Store) CountItems(ctx context.Context, filter ItemFilter) (int, error) {
	where, args := filter.clause()
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`+where, args...).Scan(&n)
	return n, err
}

// FindItemsByMetadata returns items holding value in field. When collection
// is set only items owned by it are returned.
func (s *Store) FindItemsByMetadata(ctx context.Context, field, value string, collection uuid.UUID) ([]*content.Item, error) {
	mv := content.ParseField(field)
	query := `
		SELECT DISTINCT i.id, i.handle, i.owning_collection, i.in_archive, i.withdrawn, i.discoverable, i.last_modified
		FROM items i JOIN metadata_values m ON m.item_id = i.id
		WHERE m.schema_name = ? AND m.element = ? AND m.qualifier = ? AND m.value = ?`
	args := []any{mv.Schema, mv.Element, mv.Qualifier, value}
	if collection != uuid.Nil {
		query += ` AND i.owning_collection = ?`
		args = append(args, collection.String())
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var items []*content.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := s.loadItemChildren(ctx, item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (f ItemFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if f.Collection != uuid.Nil {
		conds = append(conds, "owning_collection = ?")
		args = append(args, f.Collection.String())
	}
	if f.ArchivedOnly {
		conds = append(conds, "in_archive = 1 AND withdrawn = 0")
	}
	if !f.ModifiedFrom.IsZero() {
		conds = append(conds, "last_modified >= ?")
		args = append(args, formatTime(f.ModifiedFrom))
	}
	if !f.ModifiedUntil.IsZero() {
		conds = append(conds, "last_modified <= ?")
		args = append(args, formatTime(f.ModifiedUntil))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) loadItemChildren(ctx context.Context, item *content.Item) error {
	rows, err := s.q.QueryContext(ctx, `
		SELECT schema_name, element, qualifier, language, value, authority, confidence, place
		FROM metadata_values WHERE item_id = ? ORDER BY id
	`, item.ID.String())
	if err != nil {
		return fmt.Errorf("loading metadata: %w", err)
	}
	item.Metadata = nil
	for rows.Next() {
		var mv content.MetadataValue
		if err := rows.Scan(&mv.Schema, &mv.Element, &mv.Qualifier, &mv.Language, &mv.Value, &mv.Authority, &mv.Confidence, &mv.Place); err != nil {
			rows.Close()
			return err
		}
		item.Metadata = append(item.Metadata, mv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	brows, err := s.q.QueryContext(ctx, `
		SELECT b.id, b.name, bs.id, bs.name, bs.mime_type, bs.size, bs.checksum, bs.source, bs.content
		FROM bundles b LEFT JOIN bitstreams bs ON bs.bundle_id = b.id
		WHERE b.item_id = ? ORDER BY b.rowid, bs.sequence
	`, item.ID.String())
	if err != nil {
		return fmt.Errorf("loading bundles: %w", err)
	}
	defer brows.Close()

	item.Bundles = nil
	for brows.Next() {
		var bundleID, bundleName string
		var bsID, bsName, mimeType, checksum, source sql.NullString
		var size sql.NullInt64
		var data []byte
		if err := brows.Scan(&bundleID, &bundleName, &bsID, &bsName, &mimeType, &size, &checksum, &source, &data); err != nil {
			return err
		}
		bid, err := uuid.Parse(bundleID)
		if err != nil {
			return fmt.Errorf("bundle id %q: %w", bundleID, err)
		}
		b := item.Bundle(bundleName)
		if b == nil || b.ID != bid {
			item.Bundles = append(item.Bundles, content.Bundle{ID: bid, Name: bundleName})
			b = &item.Bundles[len(item.Bundles)-1]
		}
		if !bsID.Valid {
			continue
		}
		id, err := uuid.Parse(bsID.String)
		if err != nil {
			return fmt.Errorf("bitstream id %q: %w", bsID.String, err)
		}
		b.Bitstreams = append(b.Bitstreams, content.Bitstream{
			ID:       id,
			Name:     bsName.String,
			MimeType: mimeType.String,
			Size:     size.Int64,
			Checksum: checksum.String,
			Source:   source.String,
			Content:  data,
		})
	}
	return brows.Err()
}

func scanItem(row scanner) (*content.Item, error) {
	var item content.Item
	var id string
	var handle, owner, modified sql.NullString
	var inArchive, withdrawn, discoverable int
	if err := row.Scan(&id, &handle, &owner, &inArchive, &withdrawn, &discoverable, &modified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("item id %q: %w", id, err)
	}
	item.ID = parsed
	item.Handle = handle.String
	if owner.Valid {
		if item.OwningCollection, err = uuid.Parse(owner.String); err != nil {
			return nil, fmt.Errorf("item collection %q: %w", owner.String, err)
		}
	}
	item.InArchive = inArchive == 1
	item.Withdrawn = withdrawn == 1
	item.Discoverable = discoverable == 1
	item.LastModified = parseTime(modified)
	return &item, nil
}

func nullUUID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
