package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"signalplan/internal/config"
	"signalplan/internal/logger"
	"signalplan/internal/model"
	"signalplan/internal/route"
	"signalplan/internal/service"
	"signalplan/internal/service/density"
	"signalplan/internal/service/storage"
	"signalplan/internal/service/timing"
	"signalplan/internal/service/websocket"
)

// shutdownTimeout bounds how long the progress server may take to stop.
const shutdownTimeout = 5 * time.Second

// Detector is what a lane worker needs from its detection backend.
type Detector interface {
	density.Detector
	service.Annotator
	Close() error
}

// Backend builds the video and detection components of a run. NewDetector
// is called once per lane worker.
type Backend struct {
	NewDetector func() (Detector, error)
	NewSource   func() density.Source
}

type App struct {
	config  *config.Config
	logger  *logger.Logger
	backend Backend
	runID   string
}

// NewApp creates an App for one planning run.
func NewApp(cfg *config.Config, logger *logger.Logger, backend Backend) *App {
	return &App{
		config:  cfg,
		logger:  logger,
		backend: backend,
		runID:   uuid.NewString(),
	}
}

// RunID identifies this run in logs and progress messages.
func (a *App) RunID() string { return a.runID }

// Run checks the lane videos, estimates every lane, and writes the plan to
// out. A missing video aborts before any model or video is loaded.
func (a *App) Run(ctx context.Context, out io.Writer) (err error) {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lanes, err := service.CheckLanePaths(a.config.LaneVideos)
	if err != nil {
		return err
	}

	allocator, err := timing.NewAllocator(a.config.CycleLength, a.config.YellowSeconds)
	if err != nil {
		return err
	}

	classes := model.NewClassSet(a.config.VehicleClasses...)
	a.logger.Info("Run %s: %d lanes, %ds cycle, %ds yellow, counting %v", a.runID, len(lanes), a.config.CycleLength, a.config.YellowSeconds, classes.Labels())

	workers := a.config.LaneWorkers
	if workers > len(lanes) {
		workers = len(lanes)
	}

	// Detectors are not safe for concurrent use, so every worker gets its own.
	detectors := make([]Detector, 0, workers)
	defer func() {
		for _, d := range detectors {
			if cerr := d.Close(); cerr != nil {
				a.logger.Warning("Failed to release detector: %v", cerr)
			}
		}
	}()
	for i := 0; i < workers; i++ {
		d, err := a.backend.NewDetector()
		if err != nil {
			return err
		}
		detectors = append(detectors, d)
	}

	var feed service.Broadcaster
	if a.config.ProgressAddr != "" {
		progress := websocket.NewHubService(a.logger)
		stop := a.serveProgress(progress)
		defer stop()
		feed = progress
	}

	var snapshots *storage.SnapshotService
	if a.config.SnapshotDirectory != "" {
		snapshots = storage.NewSnapshotService(a.config.SnapshotDirectory, a.runID, a.logger)
		defer func() {
			if _, ferr := snapshots.Flush(); ferr != nil {
				a.logger.Error("Failed to save snapshots: %v", ferr)
				if err == nil {
					err = fmt.Errorf("failed to save snapshots: %w", ferr)
				}
			}
		}()
	}

	// Annotation only draws on a frame copy, so the first worker's detector
	// can be shared for it.
	var reporter *service.ProgressReporter
	if feed != nil || snapshots != nil {
		reporter = service.NewProgressReporter(a.runID, feed, detectors[0], a.logger)
		if snapshots != nil {
			reporter.WithSnapshots(snapshots)
		}
	}

	opts := []density.Option{density.WithProgressInterval(a.config.ProgressInterval)}
	if reporter != nil {
		opts = append(opts, density.WithObserver(reporter))
	}

	estimators := make([]service.LaneEstimator, len(detectors))
	for i, d := range detectors {
		estimators[i] = density.NewEstimator(a.backend.NewSource(), d, classes, a.logger, opts...)
	}

	manager, err := service.NewManager(estimators, allocator, a.logger)
	if err != nil {
		return err
	}

	report, err := manager.Plan(ctx, lanes)
	if err != nil {
		return err
	}

	if err := report.Print(out); err != nil {
		return fmt.Errorf("failed to print plan: %w", err)
	}
	if reporter != nil {
		reporter.PlanReady(report)
	}
	return nil
}

// serveProgress starts the hub and its HTTP server. The returned function
// flushes pending messages, disconnects viewers and stops the server.
func (a *App) serveProgress(progress *websocket.HubService) func() {
	hubDone := make(chan struct{})
	go func() {
		progress.Run()
		close(hubDone)
	}()

	server := &http.Server{
		Addr:    a.config.ProgressAddr,
		Handler: route.SetupRoutes(progress, a.config, a.logger),
	}
	go func() {
		a.logger.Info("Progress feed on ws://%s/api/progress", a.config.ProgressAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Progress server failed: %v", err)
		}
	}()

	return func() {
		progress.Stop()
		<-hubDone

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Warning("Progress server shutdown: %v", err)
		}
	}
}
