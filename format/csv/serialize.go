package csv

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Serialize writes items as metadata CSV. opts.Columns restricts the field
// columns; the id, collection and handle columns are always written.
func (f *Format) Serialize(w io.Writer, items []*content.Item, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}

	sep := opts.MultiValueSeparator
	if sep == "" {
		sep = "||"
	}

	columns := opts.Columns
	if len(columns) == 0 {
		columns = MetadataColumns(items)
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if opts.IncludeHeader {
		header := append([]string{ColumnID, ColumnCollection, ColumnHandle}, columns...)
		if err := writer.Write(header); err != nil {
			return err
		}
	}

	for _, item := range items {
		if err := writer.Write(itemToRow(item, columns, sep)); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func itemToRow(item *content.Item, columns []string, sep string) []string {
	row := make([]string, 0, len(columns)+3)
	row = append(row, item.ID.String())
	if item.OwningCollection != uuid.Nil {
		row = append(row, item.OwningCollection.String())
	} else {
		row = append(row, "")
	}
	row = append(row, item.Handle)

	for _, col := range columns {
		field, lang := parseColumn(col)
		var values []string
		for _, mv := range item.GetMetadata(field) {
			if mv.Field() == field && mv.Language == lang {
				values = append(values, mv.Value)
			}
		}
		row = append(row, strings.Join(values, sep))
	}
	return row
}
