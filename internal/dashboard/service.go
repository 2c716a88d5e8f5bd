package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bookrelay-lab/bookrelay/internal/storage"
)

// ErrUnsupportedPeriod marks a period token outside day/month/day+month.
// Handlers map it to HTTP 400.
var ErrUnsupportedPeriod = errors.New("unsupported period")

// Service is the read-only aggregate query path over the rollup store.
type Service struct {
	rollups storage.RollupStore
}

// NewService creates the dashboard query service.
func NewService(rollups storage.RollupStore) *Service {
	if rollups == nil {
		panic("dashboard: rollup store must not be nil")
	}
	return &Service{rollups: rollups}
}

// NormalizePeriod undoes the URL-decoding artifact where the "+" in
// "day+month" arrives as a space.
func NormalizePeriod(period string) string {
	return strings.ReplaceAll(period, " ", "+")
}

// Dashboard reshapes one hotel's stored rollups for a year into the view
// the requested period asks for. An empty result set for a valid request is
// a legitimate empty mapping, not an error.
func (s *Service) Dashboard(ctx context.Context, hotelID int64, period string, year int) (View, error) {
	switch NormalizePeriod(period) {
	case PeriodDay:
		daily, err := s.buckets(ctx, hotelID, year, storage.GranularityDaily)
		if err != nil {
			return nil, err
		}
		return DailyView{HotelID: hotelID, Period: "daily", Year: year, Bookings: daily}, nil

	case PeriodMonth:
		monthly, err := s.buckets(ctx, hotelID, year, storage.GranularityMonthly)
		if err != nil {
			return nil, err
		}
		return MonthlyView{HotelID: hotelID, Period: "monthly", Year: year, Bookings: monthly}, nil

	case PeriodDayMonth:
		daily, err := s.buckets(ctx, hotelID, year, storage.GranularityDaily)
		if err != nil {
			return nil, err
		}
		monthly, err := s.buckets(ctx, hotelID, year, storage.GranularityMonthly)
		if err != nil {
			return nil, err
		}
		return CombinedView{HotelID: hotelID, Period: "daily+monthly", Year: year, Daily: daily, Monthly: monthly}, nil

	default:
		return nil, fmt.Errorf("%w: %q (must be %s, %s or %s)",
			ErrUnsupportedPeriod, period, PeriodDay, PeriodMonth, PeriodDayMonth)
	}
}

// buckets loads one granularity and keys it by bucket. JSON object keys
// render sorted, and for YYYY-MM-DD / YYYY-MM keys lexicographic order is
// chronological order, so the mapping serializes ascending.
func (s *Service) buckets(ctx context.Context, hotelID int64, year int, g storage.Granularity) (map[string]Bucket, error) {
	rollups, err := s.rollups.QueryYear(ctx, hotelID, year, g)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rollups: %w", g, err)
	}

	buckets := make(map[string]Bucket, len(rollups))
	for _, r := range rollups {
		buckets[r.Bucket] = Bucket{Count: r.Count, Details: r.Details}
	}
	return buckets, nil
}
