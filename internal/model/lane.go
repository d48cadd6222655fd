package model

import "fmt"

// Lane is one traffic approach observed by a single video. Index is 1-based
// and defines lane identity in the output plan.
type Lane struct {
	Index int
	Path  string
}

// LaneDensity is the mean number of vehicle detections per decoded frame
// for one lane's video.
type LaneDensity struct {
	Lane       int     `json:"lane"`
	Path       string  `json:"path"`
	Frames     int     `json:"frames"`
	Vehicles   int     `json:"vehicles"`
	Value      float64 `json:"density"`
	OpenFailed bool    `json:"open_failed,omitempty"`
}

// SignalPlan holds one lane's durations in seconds for a single cycle.
// Green + Yellow + Red always equals the cycle length.
type SignalPlan struct {
	Lane   int `json:"lane"`
	Green  int `json:"green"`
	Yellow int `json:"yellow"`
	Red    int `json:"red"`
}

// Cycle returns the total duration covered by the plan.
func (p SignalPlan) Cycle() int {
	return p.Green + p.Yellow + p.Red
}

func (p SignalPlan) String() string {
	return fmt.Sprintf("Lane %d: Green time: %ds, Yellow time: %ds, Red time: %ds", p.Lane, p.Green, p.Yellow, p.Red)
}

// Values extracts the density values in lane order.
func Values(densities []LaneDensity) []float64 {
	values := make([]float64, len(densities))
	for i, d := range densities {
		values[i] = d.Value
	}
	return values
}
