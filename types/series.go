package types

import (
	"context"
	"sort"
	"time"
)

// Series maps UTC hour slots to prices in €/kWh. At most one price per
// indicator per hour slot; insertion order is irrelevant, consumers
// iterate through SortedKeys when first/last semantics matter.
type Series map[time.Time]float64

// SortedKeys returns the hour slots in chronological order.
func (s Series) SortedKeys() []time.Time {
	keys := make([]time.Time, 0, len(s))
	for ts := range s {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// Merge overwrites s with the entries of other, last writer wins per
// hour slot. Merging the same entries twice is a no-op.
func (s Series) Merge(other Series) {
	for ts, price := range other {
		s[ts] = price
	}
}

// Prune drops every hour slot strictly before cutoff.
func (s Series) Prune(cutoff time.Time) {
	for ts := range s {
		if ts.Before(cutoff) {
			delete(s, ts)
		}
	}
}

// Clone returns an independent copy of the series.
func (s Series) Clone() Series {
	c := make(Series, len(s))
	for ts, price := range s {
		c[ts] = price
	}
	return c
}

// Response is a normalized fetch result: one or more series plus the
// metadata the provider attaches to them.
type Response struct {
	Name       string
	DataID     string
	LastUpdate time.Time
	Unit       string
	Series     map[SensorKey]Series
}

// PriceFetcher downloads the normalized price series of one indicator
// for one calendar day (in the provider reference zone).
type PriceFetcher interface {
	DownloadDay(ctx context.Context, key SensorKey, day time.Time) (*Response, error)
}

// ApiData aggregates everything cached between polling cycles. It is
// owned by the caller: UpdateAll takes it, mutates it and hands it back,
// nothing is retained across calls.
type ApiData struct {
	Sensors      map[SensorKey]Series
	Availability map[SensorKey]bool
	DataSource   DataSource
	LastUpdate   time.Time
}

// NewApiData returns an empty aggregate for the first polling cycle.
func NewApiData(source DataSource, now time.Time) *ApiData {
	return &ApiData{
		Sensors:      make(map[SensorKey]Series),
		Availability: make(map[SensorKey]bool),
		DataSource:   source,
		LastUpdate:   now,
	}
}
