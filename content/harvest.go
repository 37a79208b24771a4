package content

import (
	"time"

	"github.com/google/uuid"
)

// HarvestType selects what the harvester pulls for a collection.
type HarvestType int

const (
	HarvestNone HarvestType = iota
	// HarvestMetadata pulls descriptive metadata only.
	HarvestMetadata
	// HarvestMetadataAndReferences also stores the ORE resource map.
	HarvestMetadataAndReferences
	// HarvestFull also downloads the aggregated files.
	HarvestFull
)

func (t HarvestType) String() string {
	switch t {
	case HarvestMetadata:
		return "metadata only"
	case HarvestMetadataAndReferences:
		return "metadata and references"
	case HarvestFull:
		return "metadata and bitstreams"
	default:
		return "none"
	}
}

// HarvestStatus is the lifecycle state of a harvested collection.
type HarvestStatus int

const (
	StatusUnknownError HarvestStatus = -1
	StatusReady        HarvestStatus = 0
	StatusBusy         HarvestStatus = 1
	StatusQueued       HarvestStatus = 2
	StatusOAIError     HarvestStatus = 3
	StatusRetry        HarvestStatus = 4
)

func (s HarvestStatus) String() string {
	switch s {
	case StatusReady:
		return "READY"
	case StatusBusy:
		return "BUSY"
	case StatusQueued:
		return "QUEUED"
	case StatusOAIError:
		return "OAI_ERROR"
	case StatusRetry:
		return "RETRY"
	default:
		return "UNKNOWN_ERROR"
	}
}

// HarvestedCollection holds the harvest settings and state of a collection.
type HarvestedCollection struct {
	CollectionID     uuid.UUID
	HarvestType      HarvestType
	OaiSource        string
	OaiSetID         string
	MetadataConfigID string
	HarvestMessage   string
	HarvestStatus    HarvestStatus
	HarvestStartTime time.Time
	LastHarvested    time.Time
}

// IsHarvestable reports whether enough settings are present to run a harvest.
func (hc *HarvestedCollection) IsHarvestable() bool {
	return hc.HarvestType > HarvestNone &&
		hc.OaiSource != "" &&
		hc.OaiSetID != "" &&
		hc.MetadataConfigID != ""
}

// SetAll is the set id meaning "no set filter".
const SetAll = "all"

// HarvestedItem links a local item to the OAI record it came from.
type HarvestedItem struct {
	ItemID       uuid.UUID
	CollectionID uuid.UUID
	OaiID        string
	HarvestDate  time.Time
}
