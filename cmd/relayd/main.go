// Command relayd runs the document relay server: the websocket fan-out
// hub plus the document and version HTTP endpoints, backed by SQLite.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hsinyu-ko/coedit/internal/config"
	"github.com/hsinyu-ko/coedit/internal/logging"
	"github.com/hsinyu-ko/coedit/internal/relay"
)

func main() {
	cfg := config.Load()
	logging.Init(os.Stdout, cfg.LogLevel)

	store, err := relay.OpenStore(cfg.DataDir)
	if err != nil {
		logging.Error("open store", err, map[string]interface{}{"data_dir": cfg.DataDir})
		os.Exit(1)
	}
	defer store.Close()

	hub := relay.NewHub(store, cfg.WriteTimeout, cfg.ClientBuffer)
	server := relay.NewServer(store, hub)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("relay listening", map[string]interface{}{"addr": cfg.Addr})
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logging.Info("shutting down", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		logging.Error("server stopped", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logging.Error("shutdown", err)
	}
}
