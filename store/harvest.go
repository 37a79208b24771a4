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

const harvestedCollectionColumns = `collection_id, harvest_type, oai_source, oai_set_id, metadata_config_id,
	harvest_message, harvest_status, harvest_start_time, last_harvested`

// GetHarvestedCollection returns the harvest settings for a collection.
func (s *Store) GetHarvestedCollection(ctx context.Context, collection uuid.UUID) (*content.HarvestedCollection, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+harvestedCollectionColumns+`
		FROM harvested_collections WHERE collection_id = ?`, collection.String())
	return scanHarvestedCollection(row)
}

// SaveHarvestedCollection inserts or replaces harvest settings and state.
func (s *Store) SaveHarvestedCollection(ctx context.Context, hc *content.HarvestedCollection) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO harvested_collections (`+harvestedCollectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_id) DO UPDATE SET
			harvest_type = excluded.harvest_type,
			oai_source = excluded.oai_source,
			oai_set_id = excluded.oai_set_id,
			metadata_config_id = excluded.metadata_config_id,
			harvest_message = excluded.harvest_message,
			harvest_status = excluded.harvest_status,
			harvest_start_time = excluded.harvest_start_time,
			last_harvested = excluded.last_harvested
	`, hc.CollectionID.String(), int(hc.HarvestType), hc.OaiSource, hc.OaiSetID, hc.MetadataConfigID,
		hc.HarvestMessage, int(hc.HarvestStatus), formatTime(hc.HarvestStartTime), formatTime(hc.LastHarvested))
	if err != nil {
		return fmt.Errorf("saving harvested collection: %w", err)
	}
	return nil
}

// DeleteHarvestedCollection removes the harvest settings of a collection.
func (s *Store) DeleteHarvestedCollection(ctx context.Context, collection uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM harvested_collections WHERE collection_id = ?`, collection.String())
	if err != nil {
		return err
	}
	return expectRow(res)
}

// ListHarvestedCollections returns every collection with harvest settings.
func (s *Store) ListHarvestedCollections(ctx context.Context) ([]*content.HarvestedCollection, error) {
	return s.queryHarvestedCollections(ctx, `SELECT `+harvestedCollectionColumns+`
		FROM harvested_collections ORDER BY collection_id`)
}

// FindReadyToHarvest returns harvestable collections in READY or RETRY
// state whose last harvest is older than before, or which were never
// harvested. Oldest harvests come first.
func (s *Store) FindReadyToHarvest(ctx context.Context, before time.Time) ([]*content.HarvestedCollection, error) {
	all, err := s.queryHarvestedCollections(ctx, `SELECT `+harvestedCollectionColumns+`
		FROM harvested_collections
		WHERE harvest_type > 0 AND harvest_status IN (?, ?)
		AND (last_harvested IS NULL OR last_harvested < ?)
		ORDER BY last_harvested`, int(content.StatusReady), int(content.StatusRetry), formatTime(before))
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, hc := range all {
		if hc.IsHarvestable() {
			out = append(out, hc)
		}
	}
	return out, nil
}

// FindByStatus returns harvested collections in the given status.
func (s *Store) FindByStatus(ctx context.Context, status content.HarvestStatus) ([]*content.HarvestedCollection, error) {
	return s.queryHarvestedCollections(ctx, `SELECT `+harvestedCollectionColumns+`
		FROM harvested_collections WHERE harvest_status = ?`, int(status))
}

// ResetStatus moves every collection in from to to, returning the count.
// The scheduler uses it to clear BUSY rows left by an interrupted process.
func (s *Store) ResetStatus(ctx context.Context, from, to content.HarvestStatus, message string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE harvested_collections SET harvest_status = ?, harvest_message = ? WHERE harvest_status = ?
	`, int(to), message, int(from))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryHarvestedCollections(ctx context.Context, query string, args ...any) ([]*content.HarvestedCollection, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*content.HarvestedCollection
	for rows.Next() {
		hc, err := scanHarvestedCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

func scanHarvestedCollection(row scanner) (*content.HarvestedCollection, error) {
	var hc content.HarvestedCollection
	var id string
	var harvestType, status int
	var start, last sql.NullString
	err := row.Scan(&id, &harvestType, &hc.OaiSource, &hc.OaiSetID, &hc.MetadataConfigID,
		&hc.HarvestMessage, &status, &start, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if hc.CollectionID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("harvested collection id %q: %w", id, err)
	}
	hc.HarvestType = content.HarvestType(harvestType)
	hc.HarvestStatus = content.HarvestStatus(status)
	hc.HarvestStartTime = parseTime(start)
	hc.LastHarvested = parseTime(last)
	return &hc, nil
}

// GetHarvestedItemByOaiID finds the harvested item for an OAI identifier
// within a collection.
func (s *Store) GetHarvestedItemByOaiID(ctx context.Context, oaiID string, collection uuid.UUID) (*content.HarvestedItem, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT item_id, collection_id, oai_id, harvest_date FROM harvested_items
		WHERE oai_id = ? AND collection_id = ?
	`, oaiID, collection.String())
	return scanHarvestedItem(row)
}

// GetHarvestedItem returns the harvest row of an item.
func (s *Store) GetHarvestedItem(ctx context.Context, item uuid.UUID) (*content.HarvestedItem, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT item_id, collection_id, oai_id, harvest_date FROM harvested_items WHERE item_id = ?
	`, item.String())
	return scanHarvestedItem(row)
}

// SaveHarvestedItem inserts or replaces the harvest row of an item.
func (s *Store) SaveHarvestedItem(ctx context.Context, hi *content.HarvestedItem) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO harvested_items (item_id, collection_id, oai_id, harvest_date) VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			collection_id = excluded.collection_id,
			oai_id = excluded.oai_id,
			harvest_date = excluded.harvest_date
	`, hi.ItemID.String(), hi.CollectionID.String(), hi.OaiID, formatTime(hi.HarvestDate))
	if err != nil {
		return fmt.Errorf("saving harvested item: %w", err)
	}
	return nil
}

// DeleteHarvestedItem removes the harvest row of an item.
func (s *Store) DeleteHarvestedItem(ctx context.Context, item uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM harvested_items WHERE item_id = ?`, item.String())
	return err
}

func scanHarvestedItem(row scanner) (*content.HarvestedItem, error) {
	var hi content.HarvestedItem
	var itemID, collectionID string
	var date sql.NullString
	if err := row.Scan(&itemID, &collectionID, &hi.OaiID, &date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if hi.ItemID, err = uuid.Parse(itemID); err != nil {
		return nil, fmt.Errorf("harvested item id %q: %w", itemID, err)
	}
	if hi.CollectionID, err = uuid.Parse(collectionID); err != nil {
		return nil, fmt.Errorf("harvested item collection %q: %w", collectionID, err)
	}
	hi.HarvestDate = parseTime(date)
	return &hi, nil
}
