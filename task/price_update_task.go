package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/angas/pvpc-go/esios"
	"github.com/angas/pvpc-go/pvpc"
)

// NewPriceUpdateTask wires one polling cycle: take the aggregate from
// the holder, run UpdateAll, hand it back and notify listeners. When the
// next hour is not cached yet (cold start, missed cycles) it runs once
// immediately instead of waiting for the schedule.
func NewPriceUpdateTask(logger *slog.Logger, handler *pvpc.Handler, holder *pvpc.DataHolder, onUpdated func()) func() {
	run := func() { runPriceUpdateTask(logger, handler, holder, onUpdated) }

	if handler.NeedImmediateUpdate(holder.Get(), time.Now()) {
		logger.Info("need an immediate update of electricity prices")
		run()
	} else {
		logger.Debug("no need for immediate update of electricity prices")
	}

	return run
}

func runPriceUpdateTask(logger *slog.Logger, handler *pvpc.Handler, holder *pvpc.DataHolder, onUpdated func()) {
	logger.Debug("running price update task...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	before := time.Time{}
	if data := holder.Get(); data != nil {
		before = data.LastUpdate
	}

	data, err := handler.UpdateAll(ctx, holder.Get(), time.Now())
	if err != nil {
		if errors.Is(err, esios.ErrBadAPIToken) {
			logger.Error("esios API token rejected, check the configuration", slog.Any("error", err))
		} else {
			logger.Error("price update task error", slog.Any("error", err))
		}
	}
	holder.Set(data)

	if data.LastUpdate.After(before) {
		logger.Info("price update task done",
			slog.Int("noOfSensors", len(data.Sensors)),
			slog.String("dataSource", string(data.DataSource)))
		if onUpdated != nil {
			onUpdated()
		}
	} else {
		logger.Debug("price update task done, no new data")
	}
}
