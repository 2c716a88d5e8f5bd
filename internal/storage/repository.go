package storage

import (
	"context"

	v1 "github.com/bookrelay-lab/bookrelay/internal/api/v1"
)

// Granularity discriminates the two rollup kinds sharing one collection.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
)

// Detail references one event that contributed to a daily rollup bucket.
type Detail struct {
	EventID string `json:"event_id" bson:"event_id"`
	RoomID  string `json:"room_id" bson:"room_id"`
}

// Rollup is one persisted aggregate row, uniquely keyed by
// (hotel_id, bucket, granularity). Bucket is "YYYY-MM-DD" for daily rows
// and "YYYY-MM" for monthly rows. Details is populated for daily rows only.
type Rollup struct {
	HotelID     int64       `json:"hotel_id" bson:"hotel_id"`
	Bucket      string      `json:"bucket" bson:"bucket"`
	Granularity Granularity `json:"granularity" bson:"granularity"`
	Count       int         `json:"count" bson:"count"`
	Year        int         `json:"year" bson:"year"`
	Details     []Detail    `json:"details,omitempty" bson:"details,omitempty"`
}

// EventStore persists raw reservation events.
type EventStore interface {
	// UpsertEvent writes the event keyed by (hotel_id, timestamp). Writing
	// the same key twice is a no-op replace, which makes broker redelivery
	// safe under at-least-once semantics.
	UpsertEvent(ctx context.Context, evt *v1.Event) error

	// QueryEvents returns events matching the filter, ascending by timestamp.
	QueryEvents(ctx context.Context, filter v1.EventFilter) ([]*v1.Event, error)
}

// RollupStore persists materialized aggregates. The materializer is the only
// writer; the dashboard reads.
type RollupStore interface {
	// ReplaceYear clears the year's rollup rows and bulk-upserts the new
	// set in one unordered batch, so one failing row does not block the
	// rest. It returns the number of individual operations that failed;
	// those are logged by the store and the pass continues.
	ReplaceYear(ctx context.Context, year int, rollups []Rollup) (failed int, err error)

	// QueryYear returns one hotel's rollups for a year and granularity,
	// ascending by bucket.
	QueryYear(ctx context.Context, hotelID int64, year int, g Granularity) ([]Rollup, error)
}
