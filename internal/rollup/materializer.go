package rollup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	v1 "github.com/bookrelay-lab/bookrelay/internal/api/v1"
	"github.com/bookrelay-lab/bookrelay/internal/storage"
)

const defaultWindowYears = 5

// Materializer recomputes daily and monthly booking rollups for a trailing
// window of years. Each pass is a full recompute per year rather than an
// incremental merge: the write volume is higher, but a pass always leaves
// the rollups exactly matching the event store, which also self-heals any
// previously missed update.
type Materializer struct {
	source      Source
	rollups     storage.RollupStore
	windowYears int
	nowFn       func() time.Time
}

// NewMaterializer creates a materializer over the given event source and
// rollup store. windowYears <= 0 selects the default 5-year trailing window.
func NewMaterializer(source Source, rollups storage.RollupStore, windowYears int) *Materializer {
	if windowYears <= 0 {
		windowYears = defaultWindowYears
	}
	return &Materializer{
		source:      source,
		rollups:     rollups,
		windowYears: windowYears,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RunPass recomputes rollups for every year in the window, oldest first.
// Years are independent: a fetch failure skips that year until the next
// pass, and partial upsert failures are logged without aborting the year.
func (m *Materializer) RunPass(ctx context.Context) error {
	now := m.nowFn().UTC()
	currentYear := now.Year()

	for year := currentYear - m.windowYears + 1; year <= currentYear; year++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := m.source.FetchYear(ctx, year, now)
		if err != nil {
			slog.Error("[Materializer] Failed to fetch events, skipping year",
				"year", year,
				"error", err,
			)
			continue
		}

		rollups := buildRollups(events, year)

		failed, err := m.rollups.ReplaceYear(ctx, year, rollups)
		if err != nil {
			slog.Error("[Materializer] Failed to replace rollups",
				"year", year,
				"error", err,
			)
			continue
		}
		if failed > 0 {
			slog.Warn("[Materializer] Year rebuilt with partial failures",
				"year", year,
				"failed_upserts", failed,
				"total_upserts", len(rollups),
			)
		}

		slog.Info("[Materializer] Year rebuilt",
			"year", year,
			"events", len(events),
			"rollups", len(rollups),
		)
	}

	return nil
}

type dailyBucket struct {
	count   int
	details []storage.Detail
}

// buildRollups groups qualifying events by hotel, then by exact date and by
// year-month, producing one upsert row per (hotel, bucket) pair.
func buildRollups(events []*v1.Event, year int) []storage.Rollup {
	daily := make(map[int64]map[string]*dailyBucket)
	monthly := make(map[int64]map[string]int)

	for _, evt := range events {
		if evt.RPGStatus != v1.StatusBooking {
			continue
		}
		if evt.NightOfStay.Year() != year {
			continue
		}

		hotelID := evt.HotelID
		dateKey := evt.NightOfStay.String()
		monthKey := evt.NightOfStay.MonthKey()

		if daily[hotelID] == nil {
			daily[hotelID] = make(map[string]*dailyBucket)
		}
		if monthly[hotelID] == nil {
			monthly[hotelID] = make(map[string]int)
		}

		bucket := daily[hotelID][dateKey]
		if bucket == nil {
			bucket = &dailyBucket{}
			daily[hotelID][dateKey] = bucket
		}
		bucket.count++
		bucket.details = append(bucket.details, storage.Detail{
			EventID: strconv.FormatInt(evt.ID, 10),
			RoomID:  evt.RoomID,
		})

		monthly[hotelID][monthKey]++
	}

	var rollups []storage.Rollup
	for hotelID, buckets := range daily {
		for dateKey, bucket := range buckets {
			rollups = append(rollups, storage.Rollup{
				HotelID:     hotelID,
				Bucket:      dateKey,
				Granularity: storage.GranularityDaily,
				Count:       bucket.count,
				Year:        year,
				Details:     bucket.details,
			})
		}
		for monthKey, count := range monthly[hotelID] {
			rollups = append(rollups, storage.Rollup{
				HotelID:     hotelID,
				Bucket:      monthKey,
				Granularity: storage.GranularityMonthly,
				Count:       count,
				Year:        year,
			})
		}
	}

	return rollups
}
