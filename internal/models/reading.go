package models

import "time"

// Category identifies one of the metric kinds the system stores.
type Category string

const (
	CategoryEnvironment    Category = "Environment"
	CategoryHealthStatus   Category = "HealthStatus"
	CategorySleep          Category = "Sleep"
	CategoryGPS            Category = "GPS"
	CategoryEvent          Category = "Event"
	CategoryPersonalStatus Category = "PersonalStatus"
	CategoryPath           Category = "Path"
)

// StreamedCategories are the categories polled automatically by the
// aggregation scheduler. Everything else is fetched on demand.
var StreamedCategories = map[Category]bool{
	CategoryGPS:          true,
	CategoryHealthStatus: true,
	CategorySleep:        true,
}

// Record is one normalized reading: flat field name -> scalar value.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies fields of other into r, overwriting same-named fields.
func (r Record) Merge(other Record) {
	for k, v := range other {
		r[k] = v
	}
}

// BatchEntry is one (category, fields) pair emitted by a scheduler tick.
type BatchEntry struct {
	Category Category `json:"category"`
	Fields   Record   `json:"fields"`
}

// TimeField is the timestamp field stamped onto persisted records.
const TimeField = "time"

// Stamp sets the time field to now unless the record already carries one.
func (r Record) Stamp(now time.Time) {
	if _, ok := r[TimeField]; !ok {
		r[TimeField] = now.Unix()
	}
}
