package util

import (
	"time"
)

// TradingCalendar provides market-hours awareness for the US equity
// session: 9:30 to 16:00 America/New_York, Monday through Friday. Exchange
// holidays are not modelled.
type TradingCalendar struct {
	loc   *time.Location
	open  time.Duration
	close time.Duration
}

// NewTradingCalendar creates a TradingCalendar for the NYSE regular session.
// If the New York zone cannot be loaded a fixed UTC-5 offset is used.
func NewTradingCalendar() *TradingCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &TradingCalendar{
		loc:   loc,
		open:  9*time.Hour + 30*time.Minute,
		close: 16 * time.Hour,
	}
}

// IsMarketOpen returns whether the market is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	local := t.In(tc.loc)
	if !isWeekday(local) {
		return false
	}
	return !local.Before(at(local, tc.open)) && local.Before(at(local, tc.close))
}

// NextOpen returns the next market open time at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	local := t.In(tc.loc)
	for day := midnight(local); ; day = day.AddDate(0, 0, 1) {
		open := at(day, tc.open)
		if isWeekday(day) && !open.Before(local) {
			return open
		}
	}
}

// NextClose returns the next market close time at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	local := t.In(tc.loc)
	for day := midnight(local); ; day = day.AddDate(0, 0, 1) {
		cl := at(day, tc.close)
		if isWeekday(day) && !cl.Before(local) {
			return cl
		}
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// at returns the wall-clock offset off on day's date. It avoids adding a
// duration to midnight so DST transition days stay correct.
func at(day time.Time, off time.Duration) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(off/time.Hour), int(off%time.Hour/time.Minute), 0, 0, day.Location())
}
