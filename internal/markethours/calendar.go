// Package markethours provides exchange trading calendars used to stamp
// daily bars with session-close timestamps.
package markethours

import (
	"fmt"
	"strings"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Calendar describes which days an exchange trades and when the session
// closes.
type Calendar struct {
	Name        string
	Loc         *time.Location
	CloseHour   int
	CloseMinute int
	Weekends    bool // true for venues that trade seven days a week

	holidays map[string]bool // "2006-01-02" in Loc
}

// NSE is the National Stock Exchange of India cash market: Mon–Fri,
// closing 15:30 IST, with the published 2026 holiday list.
var NSE = Calendar{
	Name:        "nse",
	Loc:         IST,
	CloseHour:   15,
	CloseMinute: 30,
	holidays:    nseHolidays(),
}

// Weekdays trades Monday to Friday, closing at midnight UTC, with no holidays.
var Weekdays = Calendar{Name: "weekdays", Loc: time.UTC}

// Daily trades every day, closing at midnight UTC.
var Daily = Calendar{Name: "daily", Loc: time.UTC, Weekends: true}

// Lookup returns a calendar by name.
func Lookup(name string) (Calendar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nse":
		return NSE, nil
	case "weekdays":
		return Weekdays, nil
	case "daily", "":
		return Daily, nil
	default:
		return Calendar{}, fmt.Errorf("unknown calendar %q", name)
	}
}

func (c Calendar) loc() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

// IsHoliday reports whether t's local date is an exchange holiday.
func (c Calendar) IsHoliday(t time.Time) bool {
	if len(c.holidays) == 0 {
		return false
	}
	return c.holidays[t.In(c.loc()).Format("2006-01-02")]
}

// IsTradingDay reports whether the exchange trades on t's local date.
func (c Calendar) IsTradingDay(t time.Time) bool {
	lt := t.In(c.loc())
	if !c.Weekends {
		if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	return !c.IsHoliday(lt)
}

// SessionClose returns the close time of t's local date.
func (c Calendar) SessionClose(t time.Time) time.Time {
	lt := t.In(c.loc())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), c.CloseHour, c.CloseMinute, 0, 0, c.loc())
}

// NextTradingDay returns the first trading day strictly after t's date,
// at session close.
func (c Calendar) NextTradingDay(t time.Time) time.Time {
	d := c.SessionClose(t)
	for {
		d = d.AddDate(0, 0, 1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}

// Sessions returns the session closes of the first n trading days on or
// after start's date.
func (c Calendar) Sessions(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := c.SessionClose(start)
	if !c.IsTradingDay(d) {
		d = c.NextTradingDay(d)
	}
	for len(out) < n {
		out = append(out, d)
		d = c.NextTradingDay(d)
	}
	return out
}
