package tariff

import "time"

// Day is a calendar date in the local zone.
type Day struct {
	Year  int
	Month time.Month
	Date  int
}

func dayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Date: d}
}

// HolidayCalendar is the injected lookup for national holidays that turn
// a whole weekday into valley period. The second return value is false
// when the year is not covered by the calendar.
type HolidayCalendar interface {
	HolidaysFor(year int) (map[Day]bool, bool)
}

type staticCalendar map[int]map[Day]bool

func (c staticCalendar) HolidaysFor(year int) (map[Day]bool, bool) {
	days, ok := c[year]
	return days, ok
}

// NationalCalendar returns the fixed-date national holidays relevant for
// the 2.0TD valley period. Weekend holidays are omitted (already full
// valley), as are regionally translated dates.
func NationalCalendar() HolidayCalendar {
	years := map[int][]Day{
		2021: {
			{2021, time.January, 1},
			{2021, time.January, 6},
			{2021, time.April, 2},
			{2021, time.October, 12},
			{2021, time.November, 1},
			{2021, time.December, 6},
			{2021, time.December, 8},
		},
		2022: {
			{2022, time.January, 6},
			{2022, time.April, 15},
			{2022, time.August, 15},
			{2022, time.October, 12},
			{2022, time.November, 1},
			{2022, time.December, 6},
			{2022, time.December, 8},
		},
		2023: {
			{2023, time.January, 6},
			{2023, time.April, 7},
			{2023, time.May, 1},
			{2023, time.August, 15},
			{2023, time.October, 12},
			{2023, time.November, 1},
			{2023, time.December, 6},
			{2023, time.December, 8},
			{2023, time.December, 25},
		},
		2024: {
			{2024, time.January, 1},
			{2024, time.March, 29},
			{2024, time.May, 1},
			{2024, time.August, 15},
			{2024, time.November, 1},
			{2024, time.December, 6},
			{2024, time.December, 25},
		},
		2025: {
			{2025, time.January, 1},
			{2025, time.January, 6},
			{2025, time.April, 18},
			{2025, time.May, 1},
			{2025, time.August, 15},
			{2025, time.December, 8},
			{2025, time.December, 25},
		},
	}

	cal := make(staticCalendar, len(years))
	for year, days := range years {
		set := make(map[Day]bool, len(days))
		for _, d := range days {
			set[d] = true
		}
		cal[year] = set
	}
	return cal
}
