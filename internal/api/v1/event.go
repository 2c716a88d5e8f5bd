package v1

import (
	"fmt"
	"time"
)

// Reservation status codes carried by RPGStatus.
const (
	StatusBooking      = 1
	StatusCancellation = 2
)

// Event is one reservation-affecting fact flowing through the pipeline.
// It is created by the ingestion API, relayed over the broker, and persisted
// by the consumer. Events are never mutated after acceptance.
type Event struct {
	// ID is the caller-supplied identifier. When absent the ingestion API
	// assigns one from the current unix time, so it stays stable across
	// broker redeliveries of the same message.
	ID int64 `json:"id" bson:"id"`

	// HotelID is the tenant the reservation belongs to. It is one half of
	// the idempotency key used by the persistence consumer.
	HotelID int64 `json:"hotel_id" bson:"hotel_id"`

	// Timestamp is when the reservation fact occurred (client clock),
	// serialized as RFC 3339 UTC. The other half of the idempotency key.
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// RPGStatus is 1 for an active booking, 2 for a cancellation. Only
	// status 1 events count toward rollups.
	RPGStatus int `json:"rpg_status" bson:"rpg_status"`

	// RoomID identifies the booked room. Kept as a string: upstream feeds
	// have shipped both numeric and string room ids over time.
	RoomID string `json:"room_id" bson:"room_id"`

	// NightOfStay is the calendar date the booking targets. This is the
	// dimension daily and monthly rollups group by.
	NightOfStay Date `json:"night_of_stay" bson:"night_of_stay"`
}

// Validate checks the event field invariants. The returned error names the
// violating field so the ingestion API can surface it to the caller.
func (e *Event) Validate() error {
	if e.HotelID <= 0 {
		return fmt.Errorf("hotel_id is required")
	}

	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if e.RPGStatus != StatusBooking && e.RPGStatus != StatusCancellation {
		return fmt.Errorf("rpg_status must be %d or %d", StatusBooking, StatusCancellation)
	}

	if e.RoomID == "" {
		return fmt.Errorf("room_id is required")
	}

	if e.NightOfStay.IsZero() {
		return fmt.Errorf("night_of_stay is required")
	}

	return nil
}

// Canonicalize normalizes the event to its wire form: UTC timestamp, id
// assigned from the clock when absent. The caller passes now so tests can
// pin time.
func (e *Event) Canonicalize(now time.Time) {
	if e.ID == 0 {
		e.ID = now.Unix()
	}
	e.Timestamp = e.Timestamp.UTC()
}

// EventFilter scopes an event store query. Zero values mean "not filtered".
type EventFilter struct {
	HotelID         int64
	UpdatedFrom     time.Time
	UpdatedTo       time.Time
	Status          int
	RoomID          string
	NightOfStayFrom Date
	NightOfStayTo   Date
}
