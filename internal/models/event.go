package models

// EventSummary accumulates notable events detected during one scheduler
// tick. Event and metric names are kept unique.
type EventSummary struct {
	Events  []string `json:"events"`
	Metrics []string `json:"metrics"`
	Data    Record   `json:"data"`
}

// NewEventSummary returns an empty accumulator.
func NewEventSummary() *EventSummary {
	return &EventSummary{Data: Record{}}
}

// Empty reports whether no events were accumulated.
func (e *EventSummary) Empty() bool {
	return len(e.Events) == 0
}

// Add merges another summary into the accumulator, de-duplicating names.
func (e *EventSummary) Add(other *EventSummary) {
	if other == nil {
		return
	}
	e.Events = appendUnique(e.Events, other.Events)
	e.Metrics = appendUnique(e.Metrics, other.Metrics)
	e.Data.Merge(other.Data)
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
