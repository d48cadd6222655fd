package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"signalplan/internal/app"
	"signalplan/internal/config"
	"signalplan/internal/logger"
	"signalplan/internal/service"
	"signalplan/internal/service/ai"
	"signalplan/internal/service/density"
	"signalplan/internal/service/video"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var missing *service.MissingFileError
		if errors.As(err, &missing) {
			fmt.Fprintf(os.Stderr, "Video file not found: %s\n", missing.Path)
		}
		log.Printf("signalplan: %v", err)
		os.Exit(1)
	}
}

// run wires the gocv backend into the app and plans one intersection.
func run(args []string) error {
	cfg := config.Load()
	if err := parseFlags(cfg, args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	lg, err := logger.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer lg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := app.Backend{
		NewDetector: func() (app.Detector, error) {
			d, err := ai.NewDetectorService(cfg, lg)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		NewSource: func() density.Source { return video.NewSource() },
	}

	application := app.NewApp(cfg, lg, backend)
	if err := application.Run(ctx, os.Stdout); err != nil {
		lg.Error("Run %s failed: %v", application.RunID(), err)
		return err
	}
	return nil
}

// parseFlags applies command line overrides on top of the environment.
func parseFlags(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("signalplan", flag.ContinueOnError)
	lanes := fs.String("lanes", "", "Comma separated lane videos, in lane order")
	cycle := fs.Int("cycle", cfg.CycleLength, "Total signal cycle in seconds")
	yellow := fs.Int("yellow", cfg.YellowSeconds, "Yellow time per lane in seconds")
	workers := fs.Int("workers", cfg.LaneWorkers, "Lanes estimated in parallel")
	listen := fs.String("listen", cfg.ProgressAddr, "Address for the websocket progress feed (empty disables it)")
	modelPath := fs.String("model", cfg.ModelPath, "Detection model weights")
	configPath := fs.String("model-config", cfg.ConfigPath, "Detection model graph config (ssd only)")
	format := fs.String("format", cfg.ModelFormat, "Detection model output format: ssd or yolo")
	snapshots := fs.String("snapshots", cfg.SnapshotDirectory, "Directory for annotated first frames (empty disables it)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *lanes != "" {
		cfg.LaneVideos = config.SplitList(*lanes)
	}
	cfg.CycleLength = *cycle
	cfg.YellowSeconds = *yellow
	cfg.LaneWorkers = *workers
	cfg.ProgressAddr = *listen
	cfg.ModelPath = *modelPath
	cfg.ConfigPath = *configPath
	cfg.ModelFormat = *format
	cfg.SnapshotDirectory = *snapshots
	return nil
}
