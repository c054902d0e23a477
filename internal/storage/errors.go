package storage

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Error marks a failure of the backing store. Harvest runs abort on it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

const timestampLayout = "2006-01-02 15:04:05"

// nullDate stores a calendar date as YYYY-MM-DD text. Postgres DATE columns
// come back as time.Time, sqlite TEXT columns as strings.
type nullDate struct {
	Time *time.Time
}

func (d nullDate) Value() (driver.Value, error) {
	if d.Time == nil {
		return nil, nil
	}
	return d.Time.Format(time.DateOnly), nil
}

func (d *nullDate) Scan(src any) error {
	t, err := scanTime(src)
	if err != nil {
		return err
	}
	if t == nil {
		d.Time = nil
		return nil
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	d.Time = &day
	return nil
}

// dbTime scans timestamps written by either driver
type dbTime struct {
	Time time.Time
}

func (d *dbTime) Scan(src any) error {
	t, err := scanTime(src)
	if err != nil {
		return err
	}
	if t != nil {
		d.Time = *t
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	timestampLayout,
	time.DateOnly,
}

func scanTime(src any) (*time.Time, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case []byte:
		return parseTime(string(v))
	case string:
		return parseTime(v)
	}
	return nil, fmt.Errorf("cannot scan %T into time", src)
}

func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", s)
}
