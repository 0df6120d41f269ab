package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"creditline/config"
	"creditline/native/credit"
	"creditline/observability/logging"
	"creditline/storage"
	"creditline/storage/creditstore"
)

func main() {
	configPath := flag.String("config", "./creditd.toml", "path to the creditd configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load configuration", err)
	}
	logger := logging.Setup("creditd", cfg.Env)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "credits"))
	if err != nil {
		fatal("failed to open database", err)
	}
	defer db.Close()

	engine := credit.NewEngine()
	engine.SetState(creditstore.New(db))
	engine.SetSettings(cfg)
	engine.SetEmitter(newLogEmitter(logger))

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newRouter(engine, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("creditd listening", "addr", cfg.ListenAddress)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func fatal(msg string, err error) {
	os.Stderr.WriteString(msg + ": " + err.Error() + "\n")
	os.Exit(1)
}
