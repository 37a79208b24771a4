package content

import "github.com/google/uuid"

// DOIStatus tracks a DOI through registration with the agency.
type DOIStatus int

const (
	DOIStatusNone               DOIStatus = 0
	DOIToBeRegistered           DOIStatus = 1
	DOIToBeReserved             DOIStatus = 2
	DOIIsRegistered             DOIStatus = 3
	DOIIsReserved               DOIStatus = 4
	DOIUpdateReserved           DOIStatus = 5
	DOIUpdateRegistered         DOIStatus = 6
	DOIUpdateBeforeRegistration DOIStatus = 7
	DOIToBeDeleted              DOIStatus = 8
	DOIDeleted                  DOIStatus = 9
)

func (s DOIStatus) String() string {
	switch s {
	case DOIToBeRegistered:
		return "TO_BE_REGISTERED"
	case DOIToBeReserved:
		return "TO_BE_RESERVED"
	case DOIIsRegistered:
		return "IS_REGISTERED"
	case DOIIsReserved:
		return "IS_RESERVED"
	case DOIUpdateReserved:
		return "UPDATE_RESERVED"
	case DOIUpdateRegistered:
		return "UPDATE_REGISTERED"
	case DOIUpdateBeforeRegistration:
		return "UPDATE_BEFORE_REGISTRATION"
	case DOIToBeDeleted:
		return "TO_BE_DELETED"
	case DOIDeleted:
		return "DELETED"
	default:
		return "NONE"
	}
}

// DOI is a minted identifier. DOI holds the bare "10.x/y" form.
type DOI struct {
	ID     int64
	DOI    string
	ItemID uuid.UUID
	Status DOIStatus
}

// HasItem reports whether the DOI is bound to an item.
func (d *DOI) HasItem() bool {
	return d.ItemID != uuid.Nil
}
