package maxpain

import (
	"sync"
	"time"

	"github.com/scmhub/calendar"
)

var (
	nyLoc = loadNewYork()

	calendarsMu sync.Mutex
	calendars   = make(map[int]*calendar.Calendar)
)

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return calendar.NewYork
	}
	return loc
}

// nyseFor returns an NYSE calendar covering year. XNYS panics outside its
// range, so each calendar spans the year either side.
func nyseFor(year int) *calendar.Calendar {
	calendarsMu.Lock()
	defer calendarsMu.Unlock()

	if c, ok := calendars[year]; ok {
		return c
	}
	c := calendar.XNYS(year-1, year+1)
	calendars[year] = c
	return c
}

// isBusinessDay reports whether the calendar date d is an NYSE session.
// Holidays are keyed by New York midnight, so the lookup is made at noon
// in that zone.
func isBusinessDay(d time.Time) bool {
	y, m, day := d.Date()
	return nyseFor(y).IsBusinessDay(time.Date(y, m, day, 12, 0, 0, 0, nyLoc))
}

// NearestExpiration returns the next weekly expiration strictly after today.
// When that Friday is a market holiday the contracts expire on the prior
// business day, so that day is returned instead.
func NearestExpiration(today time.Time) time.Time {
	days := (int(time.Friday) - int(today.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}

	friday := time.Date(today.Year(), today.Month(), today.Day()+days, 0, 0, 0, 0, time.UTC)
	exp := friday
	for i := 0; i < 5 && !isBusinessDay(exp); i++ {
		exp = exp.AddDate(0, 0, -1)
	}
	if !isBusinessDay(exp) {
		return friday
	}
	return exp
}
