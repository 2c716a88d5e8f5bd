package v1

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time component. It serializes as
// "YYYY-MM-DD" in both JSON and BSON. The string encoding is deliberate:
// lexicographic order matches chronological order, so the store can run
// range filters on it without a codec.
type Date struct {
	t time.Time
}

// NewDate builds a Date from year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

func (d Date) String() string {
	return d.t.Format(dateLayout)
}

// MonthKey returns the "YYYY-MM" bucket key the date falls in.
func (d Date) MonthKey() string {
	return d.t.Format("2006-01")
}

func (d Date) Year() int {
	return d.t.Year()
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// Time returns the date as a UTC midnight instant.
func (d Date) Time() time.Time {
	return d.t
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(d.String())
}

func (d *Date) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var s string
	if err := bson.UnmarshalValue(t, data, &s); err != nil {
		return fmt.Errorf("invalid date value: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
