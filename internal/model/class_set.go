package model

import (
	"sort"
	"strings"
)

// DefaultVehicleClasses are the detector labels counted as vehicles.
var DefaultVehicleClasses = []string{"car", "truck", "bus", "motorcycle"}

// ClassSet is a fixed set of labels used to filter detections.
type ClassSet map[string]struct{}

// NewClassSet builds a ClassSet from labels. Labels are trimmed and lowercased;
// empty entries are ignored.
func NewClassSet(labels ...string) ClassSet {
	set := make(ClassSet, len(labels))
	for _, label := range labels {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		set[label] = struct{}{}
	}
	return set
}

// Contains reports whether label belongs to the set.
func (s ClassSet) Contains(label string) bool {
	_, ok := s[strings.ToLower(label)]
	return ok
}

// Count returns how many detections belong to the set.
func (s ClassSet) Count(detections []Detection) int {
	n := 0
	for _, d := range detections {
		if s.Contains(d.Label) {
			n++
		}
	}
	return n
}

// Labels returns the set members in sorted order.
func (s ClassSet) Labels() []string {
	labels := make([]string, 0, len(s))
	for label := range s {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
