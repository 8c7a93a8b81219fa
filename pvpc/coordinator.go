package pvpc

import (
	"context"
	"sync"
	"time"

	"github.com/angas/pvpc-go/hours"
	"github.com/angas/pvpc-go/prices"
	"github.com/angas/pvpc-go/slice"
	"github.com/angas/pvpc-go/types"
)

type updateResult struct {
	key     types.SensorKey
	updated bool
	err     error
}

// UpdateAll runs one polling cycle: it fans the per-indicator scheduler
// out concurrently, joins, merges, recomputes availability and derives
// states and attributes for every cached indicator.
//
// The ApiData value is owned by the caller between calls; pass nil on
// the first cycle. One indicator failing does not block its siblings,
// partial success is the normal case. The only error returned is a
// rejected API token, and even then the siblings' results are kept.
func (h *Handler) UpdateAll(ctx context.Context, current *types.ApiData, now time.Time) (*types.ApiData, error) {
	utcNow := hours.Utc(now)
	localRefNow := utcNow.In(hours.Reference())

	if current == nil {
		current = types.NewApiData(h.source, utcNow)
	}

	keys := h.ActiveSensorKeys()
	for _, key := range keys {
		if current.Sensors[key] == nil {
			current.Sensors[key] = make(types.Series)
		}
	}

	// Each goroutine touches only its own indicator's series, so the
	// fan-out needs no locking; everything after the join is
	// single-threaded.
	results := make([]updateResult, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key types.SensorKey) {
			defer wg.Done()
			updated, err := h.updateSeries(ctx, key, current.Sensors[key], utcNow, localRefNow)
			results[i] = updateResult{key: key, updated: updated, err: err}
		}(i, key)
	}
	wg.Wait()

	anyUpdated := false
	var firstErr error
	for _, res := range results {
		if res.updated {
			anyUpdated = true
			current.Availability[res.key] = true
		}
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
	}
	if anyUpdated {
		current.DataSource = h.source
		current.LastUpdate = utcNow
	}

	prices.AddComposedSensors(current)
	for key := range current.Sensors {
		h.ProcessStateAndAttributes(current, key, now)
	}
	return current, firstErr
}

// NeedImmediateUpdate reports whether the cache misses the price for the
// next hour, in which case the caller should run a cycle right away
// instead of waiting for the schedule.
func (h *Handler) NeedImmediateUpdate(data *types.ApiData, now time.Time) bool {
	if data == nil {
		return true
	}
	nextHour := hours.UtcHour(now).Add(time.Hour)
	return !slice.All(h.activeKeys(), func(key types.SensorKey) bool {
		_, ok := data.Sensors[key][nextHour]
		return ok
	})
}
