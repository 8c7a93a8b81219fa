// Package prices derives the per-hour descriptive attributes (ranking,
// best-price-ahead, min/max positions, hourly tags) that the monitoring
// host consumes for each indicator.
package prices

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/angas/pvpc-go/hours"
	"github.com/angas/pvpc-go/types"
)

// MakeSensorAttributes generates the attribute map for one indicator.
// The reference hour must be present in the series; callers gate on
// availability before calling.
func MakeSensorAttributes(key types.SensorKey, series types.Series, utcTime time.Time, loc *time.Location) map[string]any {
	currentPrice := series[utcTime]
	today, tomorrow := splitTodayTomorrow(series, utcTime, loc)

	attrs := makeStatsAttributes(key, currentPrice, today, utcTime, loc)
	for k, v := range makeTagAttributes(today, loc, false) {
		attrs[k] = v
	}
	if len(tomorrow) > 0 {
		for k, v := range makeStatsAttributes(key, currentPrice, tomorrow, utcTime, loc) {
			attrs[k+" (next day)"] = v
		}
		for k, v := range makeTagAttributes(tomorrow, loc, true) {
			attrs[k] = v
		}
	}
	return attrs
}

// splitTodayTomorrow partitions a series by the local-zone calendar
// position of each entry relative to the reference hour.
func splitTodayTomorrow(series types.Series, utcTime time.Time, loc *time.Location) (today, tomorrow types.Series) {
	today, tomorrow = make(types.Series), make(types.Series)
	for ts, price := range series {
		if hours.IsTomorrow(ts, utcTime, loc) {
			tomorrow[ts] = price
		} else {
			today[ts] = price
		}
	}
	return today, tomorrow
}

// makeTagAttributes emits one price_{HH}h (or price_next_day_{HH}h) tag
// per hour slot. A DST fall-back duplicates a local wall-clock hour; the
// second occurrence gets a "_d" suffix so both prices survive.
func makeTagAttributes(window types.Series, loc *time.Location, tomorrow bool) map[string]any {
	prefix := "price_"
	if tomorrow {
		prefix = "price_next_day_"
	}
	attrs := make(map[string]any, len(window))
	for _, ts := range window.SortedKeys() {
		key := fmt.Sprintf("%s%02dh", prefix, ts.In(loc).Hour())
		if _, dup := attrs[key]; dup {
			key += "_d"
		}
		attrs[key] = window[ts]
	}
	return attrs
}

func makeStatsAttributes(key types.SensorKey, currentPrice float64, window types.Series, utcTime time.Time, loc *time.Location) map[string]any {
	attrs := make(map[string]any)
	if len(window) == 0 {
		return attrs
	}
	sign := key.BetterSign()

	chrono := window.SortedKeys()
	// Rank best-first; ties keep chronological order so "first at" is
	// the earliest occurrence of an extreme.
	ranked := make([]time.Time, len(chrono))
	copy(ranked, chrono)
	sort.SliceStable(ranked, func(i, j int) bool {
		return sign*window[ranked[i]] < sign*window[ranked[j]]
	})

	var betterAhead []time.Time
	for _, ts := range chrono {
		if ts.After(utcTime) && sign*window[ts] < sign*currentPrice {
			betterAhead = append(betterAhead, ts)
		}
	}
	if len(betterAhead) > 0 {
		next := betterAhead[0]
		attrs["next_better_price"] = window[next]
		attrs["hours_to_better_price"] = int(next.Sub(utcTime).Hours())
		attrs["num_better_prices_ahead"] = len(betterAhead)
	}

	for i, ts := range ranked {
		if window[ts] == currentPrice {
			attrs["price_position"] = i + 1
			break
		}
	}

	minPrice, maxPrice := window[ranked[0]], window[ranked[0]]
	for _, price := range window {
		minPrice = math.Min(minPrice, price)
		maxPrice = math.Max(maxPrice, price)
	}
	if maxPrice != minPrice {
		ratio := (currentPrice - minPrice) / (maxPrice - minPrice)
		attrs["price_ratio"] = math.Round(ratio*100) / 100
	}

	bestAt := ranked[0].In(loc).Hour()
	worstAt := ranked[len(ranked)-1].In(loc).Hour()
	attrs["max_price"] = maxPrice
	attrs["min_price"] = minPrice
	if sign == 1 {
		attrs["min_price_at"] = bestAt
		attrs["max_price_at"] = worstAt
	} else {
		attrs["min_price_at"] = worstAt
		attrs["max_price_at"] = bestAt
	}

	nextBestAt := make([]int, 0, len(ranked))
	for _, ts := range ranked {
		if !ts.Before(utcTime) {
			nextBestAt = append(nextBestAt, ts.In(loc).Hour())
		}
	}
	attrs["next_best_at"] = nextBestAt

	return attrs
}
