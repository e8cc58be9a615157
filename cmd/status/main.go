// Command status reports the progress of transcription jobs from their
// checkpoints without loading any recognition engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	grpcapi "speech-checkpoint-service/internal/api/grpc"
	"speech-checkpoint-service/internal/app"
	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/config"
	httpapi "speech-checkpoint-service/internal/http"
	"speech-checkpoint-service/internal/service/status"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	checkpointDir := flag.String("checkpoint-dir", cfg.Checkpoint.Dir, "Checkpoint directory")
	asJSON := flag.Bool("json", false, "Output in JSON format")
	watch := flag.Bool("watch", false, "Refresh until interrupted")
	interval := flag.Duration("interval", cfg.Status.PollInterval, "Refresh interval for -watch")
	serve := flag.Bool("serve", false, "Serve the HTTP status API and gRPC health instead of printing")
	flag.Parse()

	application := app.New("status", cfg)
	if err := application.Start(); err != nil {
		return 1
	}
	defer application.Shutdown()

	store := application.Store(*checkpointDir)
	reporter := status.NewReporter(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := application.OnSignal(func(os.Signal) { cancel() })
	defer stop()

	switch {
	case *serve:
		return serveAPI(ctx, application, store, reporter, *interval)
	case *watch:
		err := reporter.Watch(ctx, *interval, func(snap []status.Progress) {
			if *asJSON {
				status.RenderJSON(os.Stdout, snap, reporter.Now())
				return
			}
			fmt.Print("\033[2J\033[H")
			status.RenderText(os.Stdout, snap)
			fmt.Printf("\nRefreshing every %s... (Ctrl+C to exit)\n", *interval)
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	default:
		snap, err := reporter.Snapshot(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if *asJSON {
			err = status.RenderJSON(os.Stdout, snap, reporter.Now())
		} else {
			err = status.RenderText(os.Stdout, snap)
		}
		if err != nil {
			return 1
		}
		return 0
	}
}

func serveAPI(ctx context.Context, application *app.Application, store checkpoint.Store, reporter *status.Reporter, interval time.Duration) int {
	log := application.Logger
	cfg := application.Cfg

	lis, err := net.Listen("tcp", ":"+cfg.Status.GRPCPort)
	if err != nil {
		log.Error().Err(err).Msg("Failed to listen")
		return 1
	}
	grpcServer := grpcapi.New(store)
	go grpcServer.Monitor(ctx, interval)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Status.HTTPAddr,
		Handler:           httpapi.NewRouter(application, reporter),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Status.HTTPAddr).Msg("HTTP status API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP serve failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down status servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.Stop()
	return 0
}
