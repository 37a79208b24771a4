package harvest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/validate"
)

// RecordFailure is a record that could not be imported.
type RecordFailure struct {
	OaiID string
	Err   error
}

// InvalidRecord is a record that was imported with validation findings.
type InvalidRecord struct {
	OaiID  string
	Result *validate.Result
}

// Report summarizes one collection harvest.
type Report struct {
	CollectionID uuid.UUID
	Source       string
	Set          string
	Started      time.Time
	Finished     time.Time

	// Imported counts records handled without error, skipped ones included.
	Imported int
	Created  int
	Updated  int
	Deleted  int
	Skipped  int

	Failures []RecordFailure
	Invalid  []InvalidRecord

	// Fatal is the error that stopped the harvest, if any.
	Fatal error

	noUpdates bool
}

func newReport(hc *content.HarvestedCollection, started time.Time) *Report {
	return &Report{
		CollectionID: hc.CollectionID,
		Source:       hc.OaiSource,
		Set:          hc.OaiSetID,
		Started:      started,
	}
}

func (r *Report) record(outcome string) {
	r.Imported++
	switch outcome {
	case outcomeCreated:
		r.Created++
	case outcomeUpdated:
		r.Updated++
	case outcomeDeleted:
		r.Deleted++
	case outcomeSkipped:
		r.Skipped++
	}
}

func (r *Report) fail(oaiID string, err error) {
	r.Failures = append(r.Failures, RecordFailure{OaiID: oaiID, Err: err})
}

func (r *Report) invalid(oaiID string, result *validate.Result) {
	r.Invalid = append(r.Invalid, InvalidRecord{OaiID: oaiID, Result: result})
}

// NoUpdates reports whether the provider answered noRecordsMatch.
func (r *Report) NoUpdates() bool {
	return r.noUpdates
}

// NeedsAttention reports whether an administrator should be alerted.
func (r *Report) NeedsAttention() bool {
	if r.Fatal != nil || len(r.Failures) > 0 {
		return true
	}
	for _, inv := range r.Invalid {
		if !inv.Result.IsValid() {
			return true
		}
	}
	return false
}

// String renders the report for logs and alert emails.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Harvest of %s (set %s) into collection %s\n", r.Source, r.Set, r.CollectionID)
	fmt.Fprintf(&b, "Started %s, finished %s\n", ProcessDate(r.Started, 0), ProcessDate(r.Finished, 0))
	if r.noUpdates {
		b.WriteString("No records matched the request.\n")
	}
	fmt.Fprintf(&b, "Imported %d (created %d, updated %d, deleted %d, skipped %d), failed %d\n",
		r.Imported, r.Created, r.Updated, r.Deleted, r.Skipped, len(r.Failures))
	if r.Fatal != nil {
		fmt.Fprintf(&b, "Fatal: %v\n", r.Fatal)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "%s: %v\n", f.OaiID, f.Err)
	}
	for _, inv := range r.Invalid {
		for _, msg := range inv.Result.Messages() {
			fmt.Fprintf(&b, "%s: %s\n", inv.OaiID, msg)
		}
	}
	return b.String()
}
