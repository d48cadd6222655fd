package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"signalplan/internal/logger"
	"signalplan/internal/model"
	"signalplan/internal/service/timing"
)

// LaneEstimator computes the density of one lane.
type LaneEstimator interface {
	Estimate(ctx context.Context, lane model.Lane) (model.LaneDensity, error)
}

// Report is the outcome of one planning run.
type Report struct {
	Densities  []model.LaneDensity
	Allocation timing.Allocation
}

// Print writes one line per lane in lane order.
func (r *Report) Print(w io.Writer) error {
	for _, plan := range r.Allocation.Plans {
		if _, err := fmt.Fprintln(w, plan.String()); err != nil {
			return err
		}
	}
	return nil
}

// Manager estimates every lane and turns the densities into a plan. Each
// estimator is used by exactly one worker, so lanes run in parallel when
// more than one estimator is given.
type Manager struct {
	estimators []LaneEstimator
	allocator  *timing.Allocator
	logger     *logger.Logger
}

type laneTask struct {
	index int
	lane  model.Lane
}

// NewManager creates a Manager with one worker per estimator.
func NewManager(estimators []LaneEstimator, allocator *timing.Allocator, logger *logger.Logger) (*Manager, error) {
	if len(estimators) == 0 {
		return nil, errors.New("at least one lane estimator is required")
	}
	return &Manager{
		estimators: estimators,
		allocator:  allocator,
		logger:     logger,
	}, nil
}

// Plan estimates every lane, waits for all of them and allocates the cycle.
func (m *Manager) Plan(ctx context.Context, lanes []model.Lane) (*Report, error) {
	densities, err := m.EstimateAll(ctx, lanes)
	if err != nil {
		return nil, err
	}

	alloc, err := m.allocator.Plan(model.Values(densities))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate signal times: %w", err)
	}
	if alloc.EqualSplit {
		m.logger.Warning("All lane densities are zero - splitting green time equally")
	}
	if alloc.Capped > 0 {
		m.logger.Warning("Green time capped for %d lane(s) to keep red time non-negative", alloc.Capped)
	}

	return &Report{Densities: densities, Allocation: alloc}, nil
}

// EstimateAll returns one density per lane, index-aligned with lanes. The
// first failure cancels the remaining work and is returned.
func (m *Manager) EstimateAll(ctx context.Context, lanes []model.Lane) ([]model.LaneDensity, error) {
	results := make([]model.LaneDensity, len(lanes))

	numWorkers := len(m.estimators)
	if numWorkers > len(lanes) {
		numWorkers = len(lanes)
	}
	if numWorkers <= 1 {
		for i, lane := range lanes {
			d, err := m.estimators[0].Estimate(ctx, lane)
			if err != nil {
				return nil, err
			}
			results[i] = d
		}
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan laneTask)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			m.logger.Info("Lane worker %d started", workerID)

			for task := range tasks {
				d, err := m.estimators[workerID].Estimate(ctx, task.lane)
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					continue
				}
				results[task.index] = d
			}
		}(i)
	}

dispatch:
	for i, lane := range lanes {
		select {
		case tasks <- laneTask{index: i, lane: lane}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
