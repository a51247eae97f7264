// Command posefeed-server runs the HTTP gateway for the pose feedback
// pipeline.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/observability/telemetry"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/engine"
	httptransport "github.com/tiger/pose-feedback-pipeline/internal/transport/http"
	"github.com/tiger/pose-feedback-pipeline/providers/storage/s3store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("posefeed-server: %v", err)
	}
}

func run() error {
	cfg := config.Load()
	log.Printf("config: %s", cfg.Summary())

	telemetry.SetDefaultEmitter(telemetry.NewSinkEmitter(telemetry.NewWriterSink(os.Stderr)))

	eng, err := engine.New(cfg, s3store.New(cfg.Bucket))
	if err != nil {
		return err
	}

	handler := httptransport.New(eng)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httptransport.Logging(httptransport.NewMux(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
