package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"rideway/internal/driver"
	"rideway/internal/ops"
	"rideway/pkg/realtime"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("driver: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	userID := flag.String("user", "", "Driver user id")
	token := flag.String("token", os.Getenv("RIDEWAY_TOKEN"), "Session token (default: $RIDEWAY_TOKEN)")
	lat := flag.Float64("lat", 25.0330, "Starting latitude")
	lng := flag.Float64("lng", 121.5654, "Starting longitude")
	speed := flag.Float64("speed", 8, "Simulated speed in m/s")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	if *userID == "" {
		return errors.New("missing user; use -user")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	stopProfiler, err := ops.StartProfiler("rideway.driver", *pyroscopeAddr, map[string]string{"role": "driver"})
	if err != nil {
		return err
	}
	defer stopProfiler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := realtime.NewClient(loaded.Realtime)
	if err != nil {
		return err
	}
	defer client.Close()

	adapter, err := driver.New(client, driver.Config{
		Source:        simulatedRoute(*lat, *lng, *speed, time.Now()),
		SampleTimeout: loaded.Driver.SampleTimeout,
	})
	if err != nil {
		return err
	}
	defer adapter.Close()
	adapter.On(realtime.EventDriverUpdate, func(ev realtime.Event) {
		logs.Infof("driver update %s: %s", ev.Type, ev.Data)
	})

	if err := client.Connect(ctx, *userID, *token); err != nil {
		return err
	}
	if err := adapter.UpdateDriverStatus(driver.StatusAvailable); err != nil {
		return err
	}
	if err := adapter.StartLocationTracking(loaded.Driver.LocationInterval); err != nil {
		return err
	}

	var reporter ops.StatsReporter
	go reporter.RunReportSchedule(ctx, client, loaded.Report)

	select {
	case <-ctx.Done():
	case <-sys.Shutdown():
	}
	logs.Info("driver going offline")
	adapter.StopLocationTracking()
	if err := adapter.UpdateDriverStatus(driver.StatusOffline); err != nil {
		logs.Warnf("send offline status, err: %+v", err)
	}
	return nil
}

// simulatedRoute moves north-east from the start point at a constant speed.
func simulatedRoute(lat, lng, speed float64, start time.Time) driver.LocationSource {
	const metersPerDegree = 111_320.0
	heading := 45.0
	return driver.LocationSourceFunc(func(context.Context) (driver.Location, error) {
		meters := speed * time.Since(start).Seconds()
		step := meters / math.Sqrt2 / metersPerDegree
		return driver.Location{
			Latitude:  lat + step,
			Longitude: lng + step/math.Cos(lat*math.Pi/180),
			Heading:   &heading,
			Speed:     &speed,
		}, nil
	})
}
