package api

import (
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lehigh-university-libraries/dspacekit/content"
)

// REST resource type names.
const (
	typeCollection = "collection"
	typeItem       = "item"
	typeHarvester  = "collectionharvestsettings"
	typeDOI        = "doi"
)

// Harvest type names as the REST API spells them.
var harvestTypeNames = map[content.HarvestType]string{
	content.HarvestNone:                  "NONE",
	content.HarvestMetadata:              "METADATA_ONLY",
	content.HarvestMetadataAndReferences: "METADATA_AND_REF",
	content.HarvestFull:                  "METADATA_AND_BITSTREAMS",
}

// optional renders "" as JSON null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func idOrNull(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

// metadataMap groups values by field, in place order.
func metadataMap(values []content.MetadataValue) map[string]any {
	out := make(map[string]any)
	for _, mv := range values {
		field := mv.Field()
		list, _ := out[field].([]any)
		out[field] = append(list, map[string]any{
			"value":      mv.Value,
			"language":   optional(mv.Language),
			"authority":  optional(mv.Authority),
			"confidence": mv.Confidence,
			"place":      mv.Place,
		})
	}
	return out
}

func collectionDTO(c *content.Collection) map[string]any {
	md := []content.MetadataValue{{Schema: "dc", Element: "title", Value: c.Name, Confidence: content.ConfidenceUnset}}
	if c.Description != "" {
		md = append(md, content.MetadataValue{
			Schema: "dc", Element: "description", Value: c.Description, Confidence: content.ConfidenceUnset,
		})
	}
	return map[string]any{
		"id":       c.ID.String(),
		"uuid":     c.ID.String(),
		"name":     c.Name,
		"handle":   optional(c.Handle),
		"metadata": metadataMap(md),
		"type":     typeCollection,
	}
}

func itemDTO(item *content.Item) map[string]any {
	return map[string]any{
		"id":               item.ID.String(),
		"uuid":             item.ID.String(),
		"name":             item.Title(),
		"handle":           optional(item.Handle),
		"inArchive":        item.InArchive,
		"discoverable":     item.Discoverable,
		"withdrawn":        item.Withdrawn,
		"lastModified":     timestamp(item.LastModified),
		"owningCollection": idOrNull(item.OwningCollection),
		"metadata":         metadataMap(item.Metadata),
		"bundles":          bundlesDTO(item.Bundles),
		"type":             typeItem,
	}
}

func bundlesDTO(bundles []content.Bundle) []any {
	out := make([]any, 0, len(bundles))
	for _, b := range bundles {
		files := make([]any, 0, len(b.Bitstreams))
		for _, bs := range b.Bitstreams {
			files = append(files, map[string]any{
				"uuid":      idOrNull(bs.ID),
				"name":      bs.Name,
				"mimeType":  optional(bs.MimeType),
				"sizeBytes": bs.Size,
				"checkSum":  map[string]any{"checkSumAlgorithm": "MD5", "value": bs.Checksum},
			})
		}
		out = append(out, map[string]any{
			"uuid":       idOrNull(b.ID),
			"name":       b.Name,
			"bitstreams": files,
		})
	}
	return out
}

func harvesterDTO(hc *content.HarvestedCollection) map[string]any {
	return map[string]any{
		"harvest_type":       harvestTypeNames[hc.HarvestType],
		"oai_source":         optional(hc.OaiSource),
		"oai_set_id":         optional(hc.OaiSetID),
		"metadata_config_id": optional(hc.MetadataConfigID),
		"harvest_message":    optional(hc.HarvestMessage),
		"harvest_status":     hc.HarvestStatus.String(),
		"harvest_start_time": timestamp(hc.HarvestStartTime),
		"last_harvested":     timestamp(hc.LastHarvested),
		"type":               typeHarvester,
	}
}

func doiDTO(d *content.DOI) map[string]any {
	return map[string]any{
		"id":         d.ID,
		"doi":        "doi:" + d.DOI,
		"status":     d.Status.String(),
		"statusCode": int(d.Status),
		"item":       idOrNull(d.ItemID),
		"type":       typeDOI,
	}
}

// pageDTO wraps a slice in the HAL envelope of list endpoints.
func pageDTO(name string, entries []any, number, size, total int) map[string]any {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return map[string]any{
		"_embedded": map[string]any{name: entries},
		"page": map[string]any{
			"number":        number,
			"size":          size,
			"totalElements": total,
			"totalPages":    pages,
		},
	}
}

// toStruct converts a DTO map for protojson encoding.
func toStruct(m map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(m)
}
