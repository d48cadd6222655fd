// Package density computes the mean number of vehicles per frame for a
// lane's video.
package density

import (
	"context"
	"errors"
	"fmt"
	"io"

	"signalplan/internal/logger"
	"signalplan/internal/model"
)

// DefaultProgressInterval is how many frames pass between progress reports.
const DefaultProgressInterval = 30

// ErrVideoOpen is returned by a Source when a video cannot be decoded.
// The Estimator treats it as a zero-density lane.
var ErrVideoOpen = errors.New("could not open video")

// Frame is a single decoded picture. It is only valid until the Stream
// that produced it is advanced.
type Frame interface {
	// Seq is the 1-based position of the frame in its video.
	Seq() int
}

// Stream yields the frames of one video in order. Next returns io.EOF
// after the last frame.
type Stream interface {
	Next() (Frame, error)
	Close() error
}

// Source opens video files as frame streams.
type Source interface {
	Open(path string) (Stream, error)
}

// Detector finds labeled objects in a frame.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]model.Detection, error)
}

// Observer receives diagnostics while a lane is being estimated. Calls
// happen on the estimating goroutine and must not retain frame.
type Observer interface {
	FirstFrame(lane model.Lane, frame Frame, detections []model.Detection)
	Progress(lane model.Lane, frames, vehicles int)
	LaneDone(density model.LaneDensity)
}

// Estimator turns one lane video into a LaneDensity.
type Estimator struct {
	source           Source
	detector         Detector
	classes          model.ClassSet
	logger           *logger.Logger
	observer         Observer
	progressInterval int
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithObserver attaches an Observer for first-frame and progress events.
func WithObserver(o Observer) Option {
	return func(e *Estimator) { e.observer = o }
}

// WithProgressInterval sets how many frames pass between progress reports.
// Non-positive values keep the default.
func WithProgressInterval(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.progressInterval = n
		}
	}
}

// NewEstimator creates an Estimator counting detections in classes.
func NewEstimator(source Source, detector Detector, classes model.ClassSet, logger *logger.Logger, opts ...Option) *Estimator {
	e := &Estimator{
		source:           source,
		detector:         detector,
		classes:          classes,
		logger:           logger,
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate decodes the lane video and returns vehicles per frame. A video
// that cannot be opened, or has no frames, yields a zero density and no
// error. Decode and detector failures are returned.
func (e *Estimator) Estimate(ctx context.Context, lane model.Lane) (model.LaneDensity, error) {
	result := model.LaneDensity{Lane: lane.Index, Path: lane.Path}

	stream, err := e.source.Open(lane.Path)
	if err != nil {
		if errors.Is(err, ErrVideoOpen) {
			e.logger.Warning("Could not open video %s: %v", lane.Path, err)
			result.OpenFailed = true
			e.done(result)
			return result, nil
		}
		return result, fmt.Errorf("lane %d: %w", lane.Index, err)
	}
	defer stream.Close()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		frame, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("lane %d: failed to read frame %d: %w", lane.Index, result.Frames+1, err)
		}
		result.Frames++

		if result.Frames%e.progressInterval == 0 {
			e.logger.Info("Processing frame %d of video %s", result.Frames, lane.Path)
		}

		detections, err := e.detector.Detect(ctx, frame)
		if err != nil {
			return result, fmt.Errorf("lane %d: detection failed on frame %d: %w", lane.Index, result.Frames, err)
		}

		if result.Frames == 1 {
			e.logFirstFrame(lane, detections)
			if e.observer != nil {
				e.observer.FirstFrame(lane, frame, detections)
			}
		}

		result.Vehicles += e.classes.Count(detections)

		if result.Frames%e.progressInterval == 0 && e.observer != nil {
			e.observer.Progress(lane, result.Frames, result.Vehicles)
		}
	}

	if result.Frames == 0 {
		e.logger.Warning("No frames processed for video %s", lane.Path)
		e.done(result)
		return result, nil
	}

	result.Value = float64(result.Vehicles) / float64(result.Frames)
	e.logger.Info("Density for %s: %g (%d vehicles in %d frames)", lane.Path, result.Value, result.Vehicles, result.Frames)
	e.done(result)
	return result, nil
}

func (e *Estimator) logFirstFrame(lane model.Lane, detections []model.Detection) {
	e.logger.Info("First frame of %s: %d detections", lane.Path, len(detections))
	for i, d := range detections {
		e.logger.Info("  %d: %s", i, d)
	}
}

func (e *Estimator) done(result model.LaneDensity) {
	if e.observer != nil {
		e.observer.LaneDone(result)
	}
}
