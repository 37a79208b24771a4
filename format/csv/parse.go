package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Parse reads metadata CSV. Rows whose id is "+" or empty become new items
// with fresh ids.
func (f *Format) Parse(r io.Reader, opts *format.ParseOptions) ([]*content.Item, error) {
	if opts == nil {
		opts = format.NewParseOptions()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty CSV input")
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var items []*content.Item
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}

		item, err := rowToItem(header, row, opts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func rowToItem(header, row []string, opts *format.ParseOptions) (*content.Item, error) {
	item := &content.Item{ID: uuid.New()}
	for i, col := range header {
		if i >= len(row) {
			break
		}
		cell := strings.TrimSpace(row[i])

		switch col {
		case ColumnID:
			if cell == "" || cell == "+" {
				continue
			}
			id, err := uuid.Parse(cell)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q", cell)
			}
			item.ID = id
			continue
		case ColumnCollection:
			if cell == "" {
				continue
			}
			id, err := uuid.Parse(cell)
			if err != nil {
				if opts.Strict {
					return nil, fmt.Errorf("invalid collection %q", cell)
				}
				continue
			}
			item.OwningCollection = id
			continue
		case ColumnHandle:
			item.Handle = cell
			continue
		}

		if cell == "" {
			continue
		}
		field, lang := parseColumn(col)
		if strings.Count(field, ".") < 1 {
			if opts.Strict {
				return nil, fmt.Errorf("column %q is not a metadata field", col)
			}
			continue
		}
		if lang == "" {
			lang = opts.DefaultLanguage
		}
		for _, v := range strings.Split(cell, "||") {
			if v = strings.TrimSpace(v); v != "" {
				item.AddMetadata(field, lang, v)
			}
		}
	}
	return item, nil
}
