package dashboard

import "github.com/bookrelay-lab/bookrelay/internal/storage"

// Supported period tokens for the dashboard endpoint.
const (
	PeriodDay      = "day"
	PeriodMonth    = "month"
	PeriodDayMonth = "day+month"
)

// Bucket is one rollup bucket as served to the dashboard. Details is only
// present on daily buckets.
type Bucket struct {
	Count   int              `json:"count"`
	Details []storage.Detail `json:"details,omitempty"`
}

// View is the tagged response variant for a dashboard query. Exactly one of
// the three concrete shapes is returned per request, each with its own fixed
// serialization. Fields for an absent period do not exist on the variant, so
// nothing ever serializes as null.
type View interface {
	dashboardView()
}

// DailyView maps "YYYY-MM-DD" keys to daily buckets.
type DailyView struct {
	HotelID  int64             `json:"hotel_id"`
	Period   string            `json:"period"`
	Year     int               `json:"year"`
	Bookings map[string]Bucket `json:"bookings"`
}

// MonthlyView maps "YYYY-MM" keys to monthly buckets.
type MonthlyView struct {
	HotelID  int64             `json:"hotel_id"`
	Period   string            `json:"period"`
	Year     int               `json:"year"`
	Bookings map[string]Bucket `json:"bookings"`
}

// CombinedView carries both mappings under distinct fields.
type CombinedView struct {
	HotelID int64             `json:"hotel_id"`
	Period  string            `json:"period"`
	Year    int               `json:"year"`
	Daily   map[string]Bucket `json:"daily"`
	Monthly map[string]Bucket `json:"monthly"`
}

func (DailyView) dashboardView()    {}
func (MonthlyView) dashboardView()  {}
func (CombinedView) dashboardView() {}
