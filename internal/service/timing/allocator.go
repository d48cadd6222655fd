// Package timing splits a fixed signal cycle between lanes in proportion
// to their vehicle density.
package timing

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"signalplan/internal/model"
)

const (
	// DefaultCycleLength is the total cycle in seconds.
	DefaultCycleLength = 60
	// DefaultYellowSeconds is the fixed yellow phase for every lane.
	DefaultYellowSeconds = 5
)

var (
	// ErrInvalidCycle is returned for cycles that cannot hold the yellow phase.
	ErrInvalidCycle = errors.New("invalid cycle configuration")
	// ErrNoLanes is returned when no densities are given.
	ErrNoLanes = errors.New("no lane densities")
	// ErrInvalidDensity is returned for negative or non-finite densities.
	ErrInvalidDensity = errors.New("invalid lane density")
)

// Allocation is the result of one planning pass.
type Allocation struct {
	Plans []model.SignalPlan
	// Total is the sum of all lane densities.
	Total float64
	// EqualSplit is set when every density was zero and green time was
	// shared equally.
	EqualSplit bool
	// Capped counts lanes whose proportional green left no room for yellow
	// and was reduced so that red stays at zero.
	Capped int
}

// Allocator derives green/yellow/red durations for a fixed cycle.
type Allocator struct {
	cycleLength   int
	yellowSeconds int
}

// NewAllocator validates the cycle and returns an Allocator for it.
func NewAllocator(cycleLength, yellowSeconds int) (*Allocator, error) {
	if cycleLength <= 0 {
		return nil, fmt.Errorf("%w: cycle length %d", ErrInvalidCycle, cycleLength)
	}
	if yellowSeconds < 0 || yellowSeconds >= cycleLength {
		return nil, fmt.Errorf("%w: yellow %ds in a %ds cycle", ErrInvalidCycle, yellowSeconds, cycleLength)
	}
	return &Allocator{cycleLength: cycleLength, yellowSeconds: yellowSeconds}, nil
}

// CycleLength returns the configured cycle in seconds.
func (a *Allocator) CycleLength() int { return a.cycleLength }

// YellowSeconds returns the configured yellow phase in seconds.
func (a *Allocator) YellowSeconds() int { return a.yellowSeconds }

// Allocate returns one plan per density, index-aligned with the input.
func (a *Allocator) Allocate(densities []float64) ([]model.SignalPlan, error) {
	alloc, err := a.Plan(densities)
	if err != nil {
		return nil, err
	}
	return alloc.Plans, nil
}

// Plan computes green time as each lane's floored share of the cycle.
// When all densities are zero the cycle is split equally. Seconds lost to
// flooring stay in each lane's own red time. Green never exceeds
// cycle minus yellow, so red is never negative.
func (a *Allocator) Plan(densities []float64) (Allocation, error) {
	if len(densities) == 0 {
		return Allocation{}, ErrNoLanes
	}
	for i, d := range densities {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return Allocation{}, fmt.Errorf("%w: lane %d has density %v", ErrInvalidDensity, i+1, d)
		}
	}

	alloc := Allocation{
		Plans: make([]model.SignalPlan, len(densities)),
		Total: floats.Sum(densities),
	}
	alloc.EqualSplit = alloc.Total == 0

	maxGreen := a.cycleLength - a.yellowSeconds
	for i, d := range densities {
		var green int
		if alloc.EqualSplit {
			green = a.cycleLength / len(densities)
		} else {
			green = int(math.Floor(d / alloc.Total * float64(a.cycleLength)))
		}
		if green > maxGreen {
			green = maxGreen
			alloc.Capped++
		}

		alloc.Plans[i] = model.SignalPlan{
			Lane:   i + 1,
			Green:  green,
			Yellow: a.yellowSeconds,
			Red:    a.cycleLength - (green + a.yellowSeconds),
		}
	}

	return alloc, nil
}
