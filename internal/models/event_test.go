package models

import (
	"testing"
	"time"
)

func TestEventSummaryAddDeduplicates(t *testing.T) {
	acc := NewEventSummary()

	first := NewEventSummary()
	first.Events = append(first.Events, "high heart rate")
	first.Metrics = append(first.Metrics, "HealthStatus")
	first.Data["heart_rate"] = 130.0

	second := NewEventSummary()
	second.Events = append(second.Events, "high heart rate", "high co2")
	second.Metrics = append(second.Metrics, "HealthStatus", "Environment")

	acc.Add(first)
	acc.Add(second)
	acc.Add(nil)

	if len(acc.Events) != 2 {
		t.Errorf("Events = %v, want 2 unique entries", acc.Events)
	}
	if len(acc.Metrics) != 2 {
		t.Errorf("Metrics = %v, want 2 unique entries", acc.Metrics)
	}
	if acc.Data["heart_rate"] != 130.0 {
		t.Errorf("Data not merged: %v", acc.Data)
	}
}

func TestEventSummaryEmpty(t *testing.T) {
	acc := NewEventSummary()
	if !acc.Empty() {
		t.Error("fresh summary not empty")
	}
	acc.Metrics = append(acc.Metrics, "HealthStatus")
	if !acc.Empty() {
		t.Error("metrics alone should not make the summary non-empty")
	}
	acc.Events = append(acc.Events, "high heart rate")
	if acc.Empty() {
		t.Error("summary with events reported empty")
	}
}

func TestRecordMergeOverwrites(t *testing.T) {
	rec := Record{"steps": 10.0, "heart_rate": 70.0}
	rec.Merge(Record{"heart_rate": 80.0, "calories": 500.0})

	if rec["heart_rate"] != 80.0 {
		t.Errorf("heart_rate = %v, want overwritten value 80", rec["heart_rate"])
	}
	if rec["steps"] != 10.0 || rec["calories"] != 500.0 {
		t.Errorf("merge lost fields: %v", rec)
	}
}

func TestRecordStampKeepsExistingTime(t *testing.T) {
	now := time.Unix(1700000000, 0)

	rec := Record{}
	rec.Stamp(now)
	if rec[TimeField] != now.Unix() {
		t.Errorf("time = %v, want %v", rec[TimeField], now.Unix())
	}

	carried := Record{TimeField: int64(1600000000)}
	carried.Stamp(now)
	if carried[TimeField] != int64(1600000000) {
		t.Errorf("existing timestamp overwritten: %v", carried[TimeField])
	}
}

func TestRecordCloneIsIndependent(t *testing.T) {
	rec := Record{"steps": 10.0}
	clone := rec.Clone()
	clone["steps"] = 99.0
	if rec["steps"] != 10.0 {
		t.Errorf("mutating the clone changed the original: %v", rec)
	}
}
