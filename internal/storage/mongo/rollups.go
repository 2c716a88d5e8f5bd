package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bookrelay-lab/bookrelay/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RollupStore implements storage.RollupStore on a MongoDB collection.
// Daily and monthly rows share the collection, discriminated by the
// granularity field.
type RollupStore struct {
	coll *mongo.Collection
}

// NewRollupStore creates a rollup store over the named collection.
func NewRollupStore(client *Client, collection string) *RollupStore {
	return &RollupStore{coll: client.Collection(collection)}
}

// EnsureIndexes creates the unique rollup key index and the dashboard
// query index. Safe to call on every startup.
func (s *RollupStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "hotel_id", Value: 1},
				{Key: "bucket", Value: 1},
				{Key: "granularity", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("rollup_key_unique"),
		},
		{
			Keys: bson.D{
				{Key: "hotel_id", Value: 1},
				{Key: "year", Value: 1},
				{Key: "granularity", Value: 1},
			},
		},
	}

	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create rollup indexes: %w", err)
	}
	return nil
}

// ReplaceYear rebuilds a year's rollups: clear, then one unordered bulk
// upsert keyed by (hotel_id, bucket, granularity). Unordered means one bad
// row cannot block the rest; individual write errors are logged and counted
// but do not fail the call.
func (s *RollupStore) ReplaceYear(ctx context.Context, year int, rollups []storage.Rollup) (int, error) {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"year": year}); err != nil {
		return 0, fmt.Errorf("failed to clear rollups for year %d: %w", year, err)
	}

	if len(rollups) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(rollups))
	for _, r := range rollups {
		doc := bson.M{
			"count": r.Count,
			"year":  r.Year,
		}
		if r.Granularity == storage.GranularityDaily {
			doc["details"] = r.Details
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				"hotel_id":    r.HotelID,
				"bucket":      r.Bucket,
				"granularity": r.Granularity,
			}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	_, err := s.coll.BulkWrite(ctx, models, opts)
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			for _, we := range bwe.WriteErrors {
				slog.Error("[RollupStore] Rollup upsert failed",
					"year", year,
					"index", we.Index,
					"code", we.Code,
					"error", we.Message,
				)
			}
			return len(bwe.WriteErrors), nil
		}
		return 0, fmt.Errorf("failed to bulk write rollups for year %d: %w", year, err)
	}

	return 0, nil
}

// QueryYear returns one hotel's rollups for a year and granularity,
// ascending by bucket.
func (s *RollupStore) QueryYear(ctx context.Context, hotelID int64, year int, g storage.Granularity) ([]storage.Rollup, error) {
	filter := bson.M{
		"hotel_id":    hotelID,
		"year":        year,
		"granularity": g,
	}
	opts := options.Find().SetSort(bson.D{{Key: "bucket", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollups: %w", err)
	}
	defer cursor.Close(ctx)

	var rollups []storage.Rollup
	if err := cursor.All(ctx, &rollups); err != nil {
		return nil, fmt.Errorf("failed to decode rollups: %w", err)
	}
	return rollups, nil
}
