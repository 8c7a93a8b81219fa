package tariff

import (
	"log/slog"
	"sync"
	"time"
)

// Period is a 2.0TD billing-rate band.
type Period string

const (
	P1 Period = "P1" // peak
	P2 Period = "P2" // shoulder
	P3 Period = "P3" // valley
)

// Shoulder hours per zone. Every weekday therefore contains at least one
// period change, which bounds the next-period walk below.
var (
	hoursP2          = map[int]bool{8: true, 9: true, 14: true, 15: true, 16: true, 17: true, 22: true, 23: true}
	hoursP2CeutaMeli = map[int]bool{8: true, 9: true, 10: true, 15: true, 16: true, 17: true, 18: true, 23: true}
)

// Engine resolves billing periods from local wall-clock time. It holds
// no mutable period state, every query is computed fresh.
type Engine struct {
	logger       *slog.Logger
	calendar     HolidayCalendar
	warnedYears  map[int]bool
	warnedYearMu sync.Mutex
}

func NewEngine(logger *slog.Logger, calendar HolidayCalendar) *Engine {
	if calendar == nil {
		calendar = NationalCalendar()
	}
	return &Engine{
		logger:      logger,
		calendar:    calendar,
		warnedYears: make(map[int]bool),
	}
}

// PeriodFor returns the billing period active at localTs. Weekends,
// national holidays and hours before 08:00 are valley.
func (e *Engine) PeriodFor(localTs time.Time, ceutaMelilla bool) Period {
	wd := localTs.Weekday()
	if e.isHoliday(localTs) || wd == time.Saturday || wd == time.Sunday || localTs.Hour() < 8 {
		return P3
	}
	if ceutaMelilla && hoursP2CeutaMeli[localTs.Hour()] {
		return P2
	}
	if !ceutaMelilla && hoursP2[localTs.Hour()] {
		return P2
	}
	return P1
}

// CurrentAndNext returns the active period, the next different one and
// the time until the change. The walk always terminates within 24 hours.
func (e *Engine) CurrentAndNext(localTs time.Time, ceutaMelilla bool) (current, next Period, toNext time.Duration) {
	current = e.PeriodFor(localTs, ceutaMelilla)
	toNext = time.Hour
	for {
		next = e.PeriodFor(localTs.Add(toNext), ceutaMelilla)
		if next != current {
			return current, next, toNext
		}
		toNext += time.Hour
	}
}

func (e *Engine) isHoliday(localTs time.Time) bool {
	days, ok := e.calendar.HolidaysFor(localTs.Year())
	if !ok {
		// Unknown years count as holiday-free rather than failing the
		// whole period lookup.
		e.warnedYearMu.Lock()
		if !e.warnedYears[localTs.Year()] {
			e.warnedYears[localTs.Year()] = true
			e.logger.Warn("no holiday data for year, assuming none",
				slog.Int("year", localTs.Year()))
		}
		e.warnedYearMu.Unlock()
		return false
	}
	return days[dayOf(localTs)]
}
