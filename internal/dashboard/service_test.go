package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/bookrelay-lab/bookrelay/internal/storage"

	"github.com/stretchr/testify/require"
)

type stubRollupStore struct {
	rollups map[storage.Granularity][]storage.Rollup
	err     error
}

func (s *stubRollupStore) ReplaceYear(context.Context, int, []storage.Rollup) (int, error) {
	return 0, nil
}

func (s *stubRollupStore) QueryYear(_ context.Context, hotelID int64, year int, g storage.Granularity) ([]storage.Rollup, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []storage.Rollup
	for _, r := range s.rollups[g] {
		if r.HotelID == hotelID && r.Year == year {
			out = append(out, r)
		}
	}
	return out, nil
}

func seededStore() *stubRollupStore {
	return &stubRollupStore{rollups: map[storage.Granularity][]storage.Rollup{
		storage.GranularityDaily: {
			{HotelID: 7, Bucket: "2024-03-05", Granularity: storage.GranularityDaily, Count: 2, Year: 2024,
				Details: []storage.Detail{{EventID: "100", RoomID: "12"}, {EventID: "101", RoomID: "14"}}},
			{HotelID: 7, Bucket: "2024-04-01", Granularity: storage.GranularityDaily, Count: 1, Year: 2024,
				Details: []storage.Detail{{EventID: "102", RoomID: "12"}}},
			{HotelID: 9, Bucket: "2024-03-05", Granularity: storage.GranularityDaily, Count: 1, Year: 2024,
				Details: []storage.Detail{{EventID: "103", RoomID: "3"}}},
		},
		storage.GranularityMonthly: {
			{HotelID: 7, Bucket: "2024-03", Granularity: storage.GranularityMonthly, Count: 2, Year: 2024},
			{HotelID: 7, Bucket: "2024-04", Granularity: storage.GranularityMonthly, Count: 1, Year: 2024},
		},
	}}
}

func TestDashboardDailyView(t *testing.T) {
	svc := NewService(seededStore())

	view, err := svc.Dashboard(context.Background(), 7, PeriodDay, 2024)
	require.NoError(t, err)

	daily, ok := view.(DailyView)
	require.True(t, ok, "period day must yield a DailyView, got %T", view)
	require.Equal(t, int64(7), daily.HotelID)
	require.Equal(t, 2024, daily.Year)
	require.Len(t, daily.Bookings, 2)
	require.Equal(t, 2, daily.Bookings["2024-03-05"].Count)
	require.Len(t, daily.Bookings["2024-03-05"].Details, 2)
	require.Equal(t, 1, daily.Bookings["2024-04-01"].Count)
}

func TestDashboardMonthlyView(t *testing.T) {
	svc := NewService(seededStore())

	view, err := svc.Dashboard(context.Background(), 7, PeriodMonth, 2024)
	require.NoError(t, err)

	monthly, ok := view.(MonthlyView)
	require.True(t, ok, "period month must yield a MonthlyView, got %T", view)
	require.Len(t, monthly.Bookings, 2)
	require.Equal(t, 2, monthly.Bookings["2024-03"].Count)
	require.Empty(t, monthly.Bookings["2024-03"].Details, "monthly buckets carry no details")
}

func TestDashboardCombinedView(t *testing.T) {
	svc := NewService(seededStore())

	view, err := svc.Dashboard(context.Background(), 7, PeriodDayMonth, 2024)
	require.NoError(t, err)

	combined, ok := view.(CombinedView)
	require.True(t, ok, "period day+month must yield a CombinedView, got %T", view)
	require.Len(t, combined.Daily, 2)
	require.Len(t, combined.Monthly, 2)
}

// Each supported period token yields its matching variant; this is the
// round-trip the endpoint promises.
func TestDashboardPeriodRoundTrip(t *testing.T) {
	svc := NewService(seededStore())

	tests := []struct {
		period string
		want   string
	}{
		{period: "day", want: "DailyView"},
		{period: "month", want: "MonthlyView"},
		{period: "day+month", want: "CombinedView"},
		{period: "day month", want: "CombinedView"}, // "+" decoded as space
	}
	for _, tc := range tests {
		t.Run(tc.period, func(t *testing.T) {
			view, err := svc.Dashboard(context.Background(), 7, tc.period, 2024)
			require.NoError(t, err)

			switch tc.want {
			case "DailyView":
				require.IsType(t, DailyView{}, view)
			case "MonthlyView":
				require.IsType(t, MonthlyView{}, view)
			case "CombinedView":
				require.IsType(t, CombinedView{}, view)
			}
		})
	}
}

func TestDashboardRejectsUnsupportedPeriods(t *testing.T) {
	svc := NewService(seededStore())

	for _, period := range []string{"", "week", "year", "daily", "day+week"} {
		_, err := svc.Dashboard(context.Background(), 7, period, 2024)
		require.ErrorIs(t, err, ErrUnsupportedPeriod, "period %q", period)
	}
}

func TestDashboardEmptyResultIsEmptyMapping(t *testing.T) {
	svc := NewService(seededStore())

	view, err := svc.Dashboard(context.Background(), 404, PeriodDay, 2024)
	require.NoError(t, err)

	daily := view.(DailyView)
	require.NotNil(t, daily.Bookings)
	require.Empty(t, daily.Bookings)
}

func TestDashboardPropagatesStoreFailure(t *testing.T) {
	svc := NewService(&stubRollupStore{err: errors.New("connection reset")})

	_, err := svc.Dashboard(context.Background(), 7, PeriodDay, 2024)
	require.Error(t, err)
}
