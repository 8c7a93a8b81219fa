package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angas/pvpc-go/config"
	"github.com/angas/pvpc-go/logging"
	"github.com/angas/pvpc-go/mqtt"
	"github.com/angas/pvpc-go/pvpc"
	"github.com/angas/pvpc-go/task"
	"github.com/angas/pvpc-go/www"
	"github.com/lmittmann/tint"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cnfg.Logging.GetConsoleLevel(),
		TimeFormat: time.RFC3339,
	})
	memLog := logging.NewMemoryHandler(cnfg.Logging.GetConsoleLevel(), 500)
	logger := slog.New(logging.NewMultiHandler(consoleHandler, memLog))
	slog.SetDefault(logger)
	logger.Debug("pvpc is starting...", slog.String("version", Version))

	handler, err := pvpc.New(pvpc.Options{
		Tariff:        cnfg.Pricing.GetTariff(),
		LocalTimezone: cnfg.Pricing.GetTimezone(),
		Power:         cnfg.Pricing.GetPower(),
		PowerValley:   cnfg.Pricing.GetPowerValley(),
		Timeout:       cnfg.Pricing.GetTimeout(),
		APIToken:      cnfg.Pricing.APIToken,
		SensorKeys:    cnfg.Pricing.GetSensorKeys(),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to set up price handler: %v", err))
	}

	if handler.UsingPrivateAPI() {
		if !handler.CheckAPIToken(ctx, time.Now(), "") {
			logger.Warn("esios API token check failed, token indicators may stay unavailable")
		}
	}

	holder := pvpc.NewDataHolder()
	server := www.NewServer(handler, holder, memLog, cnfg.Api)

	var publisher *mqtt.Publisher
	if cnfg.Mqtt.Enabled() {
		publisher = mqtt.New(
			cnfg.Mqtt.Host,
			cnfg.Mqtt.Port,
			cnfg.Mqtt.Username,
			cnfg.Mqtt.Password,
			cnfg.Mqtt.GetTopicPrefix())
		if err := publisher.Connect(); err != nil {
			panic(fmt.Sprintf("mqtt connection error: %v", err))
		}
		defer publisher.Disconnect()
	}

	onUpdated := func() {
		server.BroadcastStates()
		if publisher != nil {
			publisher.PublishSensors(handler, handler.ActiveSensorKeys())
		}
	}

	tasks := task.NewTasks(handler, holder, cnfg, onUpdated)
	tasks.Run()
	defer tasks.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("main context done")
		case sig := <-sigCh:
			logger.Info("received signal", slog.Any("signal", sig))
			cancel()
		}
	}()

	server.Run(ctx)
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	time.Sleep(2 * time.Second)
	os.Exit(1)
}
