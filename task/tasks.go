package task

import (
	"context"
	"log/slog"

	"github.com/angas/pvpc-go/config"
	"github.com/angas/pvpc-go/pvpc"
	"github.com/robfig/cron/v3"
)

type Tasks struct {
	cron            *cron.Cron
	cnfg            *config.AppConfig
	PriceUpdateTask func()
}

func NewTasks(handler *pvpc.Handler, holder *pvpc.DataHolder, cnfg *config.AppConfig, onUpdated func()) *Tasks {
	logger := slog.Default().With("module", "tasks")
	return &Tasks{
		cron:            cron.New(),
		cnfg:            cnfg,
		PriceUpdateTask: NewPriceUpdateTask(logger.With(slog.String("task", "price_update")), handler, holder, onUpdated),
	}
}

func (t *Tasks) Run() {
	_, err := t.cron.AddFunc(t.cnfg.Pricing.GetRunAt(), t.PriceUpdateTask)
	if err != nil {
		panic(err)
	}
	t.cron.Start()
}

func (t *Tasks) Stop() context.Context {
	return t.cron.Stop()
}
