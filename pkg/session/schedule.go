package session

import (
	"fmt"
	"time"

	"github.com/backkem/fix/pkg/config"
)

const timeOfDayLayout = "15:04:05"

// Schedule is the daily trading-session window of a session.
// A window whose end precedes its start spans midnight. A window whose
// start equals its end covers the whole day and restarts at that time.
type Schedule struct {
	NonStop bool

	start time.Duration
	end   time.Duration
	loc   *time.Location
}

// NonStopSchedule returns a schedule that is always in session.
func NonStopSchedule() *Schedule {
	return &Schedule{NonStop: true, loc: time.UTC}
}

// NewDailySchedule returns a schedule active from start to end, both given
// as offsets from midnight in loc. A nil loc means UTC.
func NewDailySchedule(start, end time.Duration, loc *time.Location) *Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return &Schedule{start: start, end: end, loc: loc}
}

// NewSchedule reads NonStopSession, StartTime, EndTime and TimeZone.
// Without NonStopSession=Y, StartTime and EndTime go together; a session
// with neither is non-stop.
func NewSchedule(d *config.Dictionary) (*Schedule, error) {
	nonStop, err := d.BoolDefault(config.NonStopSession, false)
	if err != nil {
		return nil, err
	}
	if nonStop || (!d.Has(config.StartTime) && !d.Has(config.EndTime)) {
		return NonStopSchedule(), nil
	}

	loc := time.UTC
	if tz := d.StringDefault(config.TimeZone, ""); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("%w: %w: TimeZone %q: %w", config.ErrInvalidSetting, ErrInvalidSchedule, tz, err)
		}
	}
	start, err := timeOfDay(d, config.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := timeOfDay(d, config.EndTime)
	if err != nil {
		return nil, err
	}
	return NewDailySchedule(start, end, loc), nil
}

func timeOfDay(d *config.Dictionary, key string) (time.Duration, error) {
	v, err := d.String(key)
	if err != nil {
		return 0, err
	}
	t, err := time.Parse(timeOfDayLayout, v)
	if err != nil {
		return 0, fmt.Errorf("%w: %w: %s=%q", config.ErrInvalidSetting, ErrInvalidSchedule, key, v)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// IsSessionTime reports whether t falls inside the window.
func (s *Schedule) IsSessionTime(t time.Time) bool {
	if s.NonStop || s.start == s.end {
		return true
	}
	tod := s.sinceMidnight(t)
	if s.start < s.end {
		return tod >= s.start && tod <= s.end
	}
	return tod >= s.start || tod <= s.end
}

// IsInSameRange reports whether a and b fall inside the same occurrence of
// the window.
func (s *Schedule) IsInSameRange(a, b time.Time) bool {
	if s.NonStop {
		return true
	}
	if !s.IsSessionTime(a) || !s.IsSessionTime(b) {
		return false
	}
	return s.sessionStart(a).Equal(s.sessionStart(b))
}

// IsNewSession reports whether now lies at or past the end of the first
// window ending after old, i.e. whether state created at old is stale.
func (s *Schedule) IsNewSession(old, now time.Time) bool {
	if s.NonStop {
		return false
	}
	return !now.Before(s.nextEnd(old))
}

func (s *Schedule) nextEnd(t time.Time) time.Time {
	t = t.In(s.loc)
	y, m, d := t.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, s.loc).Add(s.end)
	if end.Before(t) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func (s *Schedule) sinceMidnight(t time.Time) time.Duration {
	t = t.In(s.loc)
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// sessionStart returns the most recent window start at or before t.
func (s *Schedule) sessionStart(t time.Time) time.Time {
	t = t.In(s.loc)
	y, m, d := t.Date()
	st := time.Date(y, m, d, 0, 0, 0, 0, s.loc).Add(s.start)
	if st.After(t) {
		st = st.AddDate(0, 0, -1)
	}
	return st
}
