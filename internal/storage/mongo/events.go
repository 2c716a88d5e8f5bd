package mongo

import (
	"context"
	"fmt"

	v1 "github.com/bookrelay-lab/bookrelay/internal/api/v1"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventStore implements storage.EventStore on a MongoDB collection.
type EventStore struct {
	coll *mongo.Collection
}

// NewEventStore creates an event store over the named collection.
func NewEventStore(client *Client, collection string) *EventStore {
	return &EventStore{coll: client.Collection(collection)}
}

// EnsureIndexes creates the unique natural-key index the upsert relies on
// plus the indexes backing the query endpoint. Safe to call on every startup.
func (s *EventStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "hotel_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("hotel_id_timestamp_unique"),
		},
		{
			Keys: bson.D{{Key: "night_of_stay", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "rpg_status", Value: 1}},
		},
	}

	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}
	return nil
}

// UpsertEvent writes the event keyed by (hotel_id, timestamp). Redelivery of
// the same message replaces the document instead of duplicating it.
func (s *EventStore) UpsertEvent(ctx context.Context, evt *v1.Event) error {
	filter := bson.M{"hotel_id": evt.HotelID, "timestamp": evt.Timestamp}
	update := bson.M{"$set": evt}

	opts := options.Update().SetUpsert(true)
	if _, err := s.coll.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert event %d: %w", evt.ID, err)
	}
	return nil
}

// QueryEvents returns events matching the filter, ascending by timestamp.
func (s *EventStore) QueryEvents(ctx context.Context, filter v1.EventFilter) ([]*v1.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := s.coll.Find(ctx, eventQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*v1.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// eventQuery translates an EventFilter into a Mongo filter document.
// Night-of-stay bounds compare as strings; the YYYY-MM-DD encoding keeps
// lexicographic and chronological order identical.
func eventQuery(filter v1.EventFilter) bson.M {
	query := bson.M{}

	if filter.HotelID != 0 {
		query["hotel_id"] = filter.HotelID
	}
	if filter.Status != 0 {
		query["rpg_status"] = filter.Status
	}
	if filter.RoomID != "" {
		query["room_id"] = filter.RoomID
	}

	if !filter.UpdatedFrom.IsZero() || !filter.UpdatedTo.IsZero() {
		window := bson.M{}
		if !filter.UpdatedFrom.IsZero() {
			window["$gte"] = filter.UpdatedFrom
		}
		if !filter.UpdatedTo.IsZero() {
			window["$lte"] = filter.UpdatedTo
		}
		query["timestamp"] = window
	}

	if !filter.NightOfStayFrom.IsZero() || !filter.NightOfStayTo.IsZero() {
		window := bson.M{}
		if !filter.NightOfStayFrom.IsZero() {
			window["$gte"] = filter.NightOfStayFrom.String()
		}
		if !filter.NightOfStayTo.IsZero() {
			window["$lte"] = filter.NightOfStayTo.String()
		}
		query["night_of_stay"] = window
	}

	return query
}
