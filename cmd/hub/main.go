package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"rideway/internal/hub"
	"rideway/internal/ops"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("hub: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config (optional)")
	listen := flag.String("listen", ops.DefaultListen, "HTTP listen address")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	addr := *listen
	if *configPath != "" {
		loaded, err := ops.Load(*configPath)
		if err != nil {
			return err
		}
		addr = loaded.Listen
	}

	stopProfiler, err := ops.StartProfiler("rideway.hub", *pyroscopeAddr, map[string]string{"role": "hub"})
	if err != nil {
		return err
	}
	defer stopProfiler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New()
	server := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logs.Infof("hub listening at %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "listen and serve")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case <-sys.Shutdown():
	}

	logs.Info("hub shutting down")
	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
