// Package clock produces the timestamps stored on vending records.
package clock

import "time"

// LocalOffset is the fixed shift applied to UTC for stored timestamps. It is a
// static offset, not a timezone conversion.
const LocalOffset = 4 * time.Hour

// ReportLayout is the layout used when timestamps are rendered in reports.
const ReportLayout = "2006-01-02 15:04:05"

var nowFunc = time.Now

// Now returns the current UTC time shifted by LocalOffset.
func Now() time.Time {
	return nowFunc().UTC().Add(LocalOffset)
}

// Freeze pins Now to t until the returned func is called.
func Freeze(t time.Time) (restore func()) {
	prev := nowFunc
	nowFunc = func() time.Time { return t }
	return func() { nowFunc = prev }
}
