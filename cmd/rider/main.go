package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"rideway/internal/booking"
	"rideway/internal/journal"
	"rideway/internal/ops"
	"rideway/pkg/realtime"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("rider: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	userID := flag.String("user", "", "User id")
	token := flag.String("token", os.Getenv("RIDEWAY_TOKEN"), "Session token (default: $RIDEWAY_TOKEN)")
	bookings := flag.String("bookings", "", "Comma separated booking ids to follow")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	if *userID == "" {
		return errors.New("missing user; use -user")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	stopProfiler, err := ops.StartProfiler("rideway.rider", *pyroscopeAddr, map[string]string{"role": "rider"})
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
	logEvents(client)

	adapter, err := booking.New(client)
	if err != nil {
		return err
	}
	defer adapter.Close()
	adapter.OnUpdate(func(u booking.Update) {
		logs.Infof("booking %s: %s", u.BookingID(), u.Type)
	})

	if loaded.Journal.Enabled() {
		closeJournal, err := startJournal(ctx, loaded.Journal, adapter)
		if err != nil {
			return err
		}
		defer closeJournal()
	}

	if err := client.Connect(ctx, *userID, *token); err != nil {
		return err
	}
	for _, id := range strings.Split(*bookings, ",") {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if err := adapter.SubscribeToBooking(id); err != nil {
			logs.Warnf("follow booking %s, err: %+v", id, err)
		}
	}

	var reporter ops.StatsReporter
	go reporter.RunReportSchedule(ctx, client, loaded.Report)

	select {
	case <-ctx.Done():
	case <-sys.Shutdown():
	}
	logs.Info("rider shutting down")
	return nil
}

func startJournal(ctx context.Context, cfg ops.JournalConfig, src journal.UpdateSource) (func(), error) {
	db, err := journal.Open(ctx, cfg.Option)
	if err != nil {
		return nil, err
	}
	recorder, err := journal.NewRecorder(db, cfg.QueueSize)
	if err != nil {
		return nil, err
	}
	if err := recorder.Migrate(ctx); err != nil {
		return nil, err
	}
	detach := recorder.Attach(src)

	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Run(context.WithoutCancel(ctx))
	}()

	return func() {
		detach()
		recorder.Close()
		<-done
		logs.Infof("journal written: %d, dropped: %d", recorder.Written(), recorder.Dropped())
		if err := journal.Close(db); err != nil {
			logs.Warnf("close journal db, err: %+v", err)
		}
	}, nil
}

func logEvents(client *realtime.Client) {
	client.On(realtime.EventConnected, func(realtime.Event) {
		logs.Info("connected")
	})
	client.On(realtime.EventDisconnected, func(ev realtime.Event) {
		logs.Warnf("disconnected, code: %d, reason: %s", ev.Code, ev.Reason)
	})
	client.On(realtime.EventReconnecting, func(ev realtime.Event) {
		logs.Infof("reconnecting, attempt: %d, delay: %s", ev.Attempt, ev.Delay)
	})
	client.On(realtime.EventReconnectFailed, func(ev realtime.Event) {
		logs.Errorf("reconnect failed, err: %+v", ev.Err)
	})
	client.On(realtime.EventMessageTimeout, func(ev realtime.Event) {
		logs.Warnf("message %s timed out", ev.Message.ID)
	})
}
