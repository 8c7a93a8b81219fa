package pvpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/angas/pvpc-go/esios"
	"github.com/angas/pvpc-go/hours"
	"github.com/angas/pvpc-go/types"
)

// updateSeries runs the update-avoidance logic for one indicator and
// merges whatever it fetches into the indicator's series. The provider
// refreshes at most twice daily, so under normal operation this caps at
// two calls per indicator per day: today's window once the cached one
// expires and tomorrow's window from 20:00 local on. A missed fetch is
// retried on the next cycle.
func (h *Handler) updateSeries(ctx context.Context, key types.SensorKey, current types.Series, utcNow, localRefNow time.Time) (bool, error) {
	numPrices := len(current)
	keys := current.SortedKeys()

	if localRefNow.Hour() >= 20 && numPrices > 30 {
		// Today and tomorrow already cached.
		h.logger.Debug("evening download avoided",
			slog.String("sensor", string(key)), slog.Int("numPrices", numPrices))
		return false, nil
	}
	if localRefNow.Hour() < 20 && numPrices > 20 &&
		hours.SameLocalDate(keys[numPrices-12], localRefNow, hours.Reference()) {
		// Today's window confirmed present without the tomorrow slots.
		h.logger.Debug("download avoided",
			slog.String("sensor", string(key)), slog.Int("numPrices", numPrices))
		return false, nil
	}
	if spec, ok := types.SensorSpecFor(key); ok {
		h.mu.Lock()
		last := h.lastFetch[key]
		h.mu.Unlock()
		if !last.IsZero() && utcNow.Sub(last) < spec.MinRefresh {
			h.logger.Debug("download avoided, within refresh interval",
				slog.String("sensor", string(key)), slog.Time("lastFetch", last))
			return false, nil
		}
	}

	updated := false
	todayCached := numPrices > 0 && hours.SameLocalDate(keys[0], localRefNow, hours.Reference())
	if !todayCached {
		resp, err := h.download(ctx, key, localRefNow)
		if err != nil {
			return false, err
		}
		if resp == nil || len(resp.Series[key]) == 0 {
			return false, nil
		}
		current.Merge(resp.Series[key])
		updated = true
	}

	// In the evening the provider has usually published next-day prices.
	if localRefNow.Hour() >= 20 {
		resp, err := h.download(ctx, key, localRefNow.AddDate(0, 0, 1))
		if err != nil {
			return updated, err
		}
		if resp != nil && len(resp.Series[key]) > 0 {
			current.Merge(resp.Series[key])
			updated = true
		}
	}

	if updated {
		h.mu.Lock()
		h.lastFetch[key] = utcNow
		h.mu.Unlock()
		h.logger.Debug("download done",
			slog.String("sensor", string(key)), slog.Int("numPrices", len(current)))
	}
	return updated, nil
}

// download wraps one fetch with the per-fetch timeout and absorbs every
// transient failure (timeout, transport, malformed payload) into a
// "no data this call" result. Only a rejected API token propagates.
func (h *Handler) download(ctx context.Context, key types.SensorKey, day time.Time) (*types.Response, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp, err := h.fetcher.DownloadDay(fetchCtx, key, day)
	if err != nil {
		if errors.Is(err, esios.ErrBadAPIToken) {
			return nil, err
		}
		h.logger.Warn("fetch failed, keeping cached series",
			slog.String("sensor", string(key)),
			slog.Time("day", day),
			slog.Any("error", err))
		return nil, nil
	}
	return resp, nil
}
