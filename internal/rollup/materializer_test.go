package rollup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	v1 "github.com/bookrelay-lab/bookrelay/internal/api/v1"
	"github.com/bookrelay-lab/bookrelay/internal/storage"

	"github.com/stretchr/testify/require"
)

// memorySource serves canned events per year and can fail selected years.
type memorySource struct {
	events     map[int][]*v1.Event
	failYears  map[int]bool
	fetchCalls []int
}

func (s *memorySource) FetchYear(_ context.Context, year int, _ time.Time) ([]*v1.Event, error) {
	s.fetchCalls = append(s.fetchCalls, year)
	if s.failYears[year] {
		return nil, errors.New("upstream unavailable")
	}
	return s.events[year], nil
}

// memoryRollupStore keeps rollups keyed the way the real collection is,
// replacing a year wholesale like the Mongo adapter does.
type memoryRollupStore struct {
	rows         map[string]storage.Rollup
	replaceCalls int
}

func newMemoryRollupStore() *memoryRollupStore {
	return &memoryRollupStore{rows: make(map[string]storage.Rollup)}
}

func rollupKey(r storage.Rollup) string {
	return fmt.Sprintf("%d|%s|%s", r.HotelID, r.Bucket, r.Granularity)
}

func (s *memoryRollupStore) ReplaceYear(_ context.Context, year int, rollups []storage.Rollup) (int, error) {
	s.replaceCalls++
	for key, row := range s.rows {
		if row.Year == year {
			delete(s.rows, key)
		}
	}
	for _, r := range rollups {
		s.rows[rollupKey(r)] = r
	}
	return 0, nil
}

func (s *memoryRollupStore) QueryYear(_ context.Context, hotelID int64, year int, g storage.Granularity) ([]storage.Rollup, error) {
	var out []storage.Rollup
	for _, r := range s.rows {
		if r.HotelID == hotelID && r.Year == year && r.Granularity == g {
			out = append(out, r)
		}
	}
	return out, nil
}

func booking(id, hotelID int64, night v1.Date) *v1.Event {
	return &v1.Event{
		ID:          id,
		HotelID:     hotelID,
		Timestamp:   night.Time().Add(-24 * time.Hour),
		RPGStatus:   v1.StatusBooking,
		RoomID:      "12",
		NightOfStay: night,
	}
}

func newTestMaterializer(source Source, store storage.RollupStore, windowYears int, now time.Time) *Materializer {
	m := NewMaterializer(source, store, windowYears)
	m.nowFn = func() time.Time { return now }
	return m
}

func TestRunPassWorkedExample(t *testing.T) {
	// Hotel 7, year 2024, one booking for 2024-03-05.
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &memorySource{events: map[int][]*v1.Event{
		2024: {booking(100, 7, v1.NewDate(2024, time.March, 5))},
	}}
	store := newMemoryRollupStore()
	m := newTestMaterializer(source, store, 5, now)

	require.NoError(t, m.RunPass(context.Background()))

	daily, err := store.QueryYear(context.Background(), 7, 2024, storage.GranularityDaily)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	require.Equal(t, "2024-03-05", daily[0].Bucket)
	require.Equal(t, 1, daily[0].Count)
	require.Equal(t, []storage.Detail{{EventID: "100", RoomID: "12"}}, daily[0].Details)

	monthly, err := store.QueryYear(context.Background(), 7, 2024, storage.GranularityMonthly)
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	require.Equal(t, "2024-03", monthly[0].Bucket)
	require.Equal(t, 1, monthly[0].Count)
}

func TestRunPassProcessesTrailingWindowOldestFirst(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &memorySource{}
	m := newTestMaterializer(source, newMemoryRollupStore(), 5, now)

	require.NoError(t, m.RunPass(context.Background()))
	require.Equal(t, []int{2020, 2021, 2022, 2023, 2024}, source.fetchCalls)
}

func TestRunPassRollupConsistency(t *testing.T) {
	now := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	events := []*v1.Event{
		booking(1, 7, v1.NewDate(2024, time.March, 5)),
		booking(2, 7, v1.NewDate(2024, time.March, 5)),
		booking(3, 7, v1.NewDate(2024, time.March, 6)),
		booking(4, 7, v1.NewDate(2024, time.April, 1)),
		booking(5, 9, v1.NewDate(2024, time.March, 5)),
	}
	source := &memorySource{events: map[int][]*v1.Event{2024: events}}
	store := newMemoryRollupStore()
	m := newTestMaterializer(source, store, 1, now)

	require.NoError(t, m.RunPass(context.Background()))

	for _, hotelID := range []int64{7, 9} {
		qualifying := 0
		for _, evt := range events {
			if evt.HotelID == hotelID {
				qualifying++
			}
		}

		daily, err := store.QueryYear(context.Background(), hotelID, 2024, storage.GranularityDaily)
		require.NoError(t, err)
		dailySum := 0
		for _, r := range daily {
			dailySum += r.Count
			require.Len(t, r.Details, r.Count, "count must equal len(details)")
		}

		monthly, err := store.QueryYear(context.Background(), hotelID, 2024, storage.GranularityMonthly)
		require.NoError(t, err)
		monthlySum := 0
		for _, r := range monthly {
			monthlySum += r.Count
		}

		require.Equal(t, qualifying, dailySum, "hotel %d daily sum", hotelID)
		require.Equal(t, qualifying, monthlySum, "hotel %d monthly sum", hotelID)
	}
}

func TestRunPassRebuildReplacesNotMerges(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	first := []*v1.Event{
		booking(1, 7, v1.NewDate(2024, time.March, 5)),
		booking(2, 7, v1.NewDate(2024, time.March, 5)),
	}
	source := &memorySource{events: map[int][]*v1.Event{2024: first}}
	store := newMemoryRollupStore()
	m := newTestMaterializer(source, store, 1, now)

	require.NoError(t, m.RunPass(context.Background()))
	daily, _ := store.QueryYear(context.Background(), 7, 2024, storage.GranularityDaily)
	require.Len(t, daily, 1)
	require.Equal(t, 2, daily[0].Count)

	// One event disappears from the source; the next pass must shrink the
	// bucket rather than keep the stale detail around.
	source.events[2024] = first[:1]
	require.NoError(t, m.RunPass(context.Background()))

	daily, _ = store.QueryYear(context.Background(), 7, 2024, storage.GranularityDaily)
	require.Len(t, daily, 1)
	require.Equal(t, 1, daily[0].Count)
	require.Len(t, daily[0].Details, 1)

	// And if all events vanish, the buckets vanish too.
	source.events[2024] = nil
	require.NoError(t, m.RunPass(context.Background()))
	daily, _ = store.QueryYear(context.Background(), 7, 2024, storage.GranularityDaily)
	require.Empty(t, daily)
}

func TestRunPassSkipsFailingYear(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &memorySource{
		events: map[int][]*v1.Event{
			2023: {booking(1, 7, v1.NewDate(2023, time.July, 10))},
			2024: {booking(2, 7, v1.NewDate(2024, time.March, 5))},
		},
		failYears: map[int]bool{2023: true},
	}
	store := newMemoryRollupStore()
	m := newTestMaterializer(source, store, 2, now)

	require.NoError(t, m.RunPass(context.Background()))

	// 2023 skipped, 2024 still rebuilt.
	daily2023, _ := store.QueryYear(context.Background(), 7, 2023, storage.GranularityDaily)
	require.Empty(t, daily2023)
	daily2024, _ := store.QueryYear(context.Background(), 7, 2024, storage.GranularityDaily)
	require.Len(t, daily2024, 1)

	// Next pass, upstream recovered: 2023 catches up.
	source.failYears = nil
	require.NoError(t, m.RunPass(context.Background()))
	daily2023, _ = store.QueryYear(context.Background(), 7, 2023, storage.GranularityDaily)
	require.Len(t, daily2023, 1)
}

func TestBuildRollupsFiltersNonQualifyingEvents(t *testing.T) {
	cancelled := booking(1, 7, v1.NewDate(2024, time.March, 5))
	cancelled.RPGStatus = v1.StatusCancellation
	wrongYear := booking(2, 7, v1.NewDate(2023, time.March, 5))

	rollups := buildRollups([]*v1.Event{
		cancelled,
		wrongYear,
		booking(3, 7, v1.NewDate(2024, time.March, 5)),
	}, 2024)

	require.Len(t, rollups, 2, "one daily and one monthly row")
	for _, r := range rollups {
		require.Equal(t, 1, r.Count)
	}
}

func TestYearWindowCapsAtNow(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	from, to := yearWindow(2024, now)
	require.Equal(t, "2024-01-01", from.String())
	require.Equal(t, "2024-06-15", to.String())

	from, to = yearWindow(2022, now)
	require.Equal(t, "2022-01-01", from.String())
	require.Equal(t, "2022-12-31", to.String())
}
