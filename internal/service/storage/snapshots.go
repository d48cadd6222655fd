package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"signalplan/internal/logger"
	"signalplan/internal/model"
)

const (
	// SnapshotLimit caps how many snapshots are buffered per lane before flushing.
	SnapshotLimit = 1
	// maxNameLength keeps file names well under the usual 255 byte limit.
	maxNameLength = 200
)

// Snapshot is an annotated frame waiting to be written to disk.
type Snapshot struct {
	Lane       int
	Frame      int
	Detections []model.Detection
	Data       []byte
}

// SnapshotService buffers annotated frames in memory and writes them to disk
// when the run finishes.
type SnapshotService struct {
	dir       string
	prefix    string
	snapshots []Snapshot
	laneCount map[int]int
	mu        sync.Mutex
	logger    *logger.Logger
}

// NewSnapshotService creates a SnapshotService writing into dir. File names
// start with prefix, usually the run ID.
func NewSnapshotService(dir, prefix string, logger *logger.Logger) *SnapshotService {
	return &SnapshotService{
		dir:       dir,
		prefix:    prefix,
		laneCount: make(map[int]int),
		logger:    logger,
	}
}

// AddSnapshot buffers an encoded image for a lane. Images past the per-lane
// limit are dropped.
func (s *SnapshotService) AddSnapshot(lane, frame int, detections []model.Detection, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.laneCount[lane] >= SnapshotLimit {
		return
	}
	s.snapshots = append(s.snapshots, Snapshot{
		Lane:       lane,
		Frame:      frame,
		Detections: detections,
		Data:       data,
	})
	s.laneCount[lane]++
}

// Pending returns the number of buffered snapshots.
func (s *SnapshotService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// Flush writes buffered snapshots to disk and resets the buffer. It returns
// the paths written, in lane order, and every write failure joined.
func (s *SnapshotService) Flush() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	sort.SliceStable(s.snapshots, func(i, j int) bool {
		return s.snapshots[i].Lane < s.snapshots[j].Lane
	})

	var (
		written []string
		errs    []error
	)
	for _, snap := range s.snapshots {
		fullpath := filepath.Join(s.dir, s.filename(snap))
		if err := os.WriteFile(fullpath, snap.Data, 0644); err != nil {
			s.logger.Error("Error saving snapshot %s: %v", fullpath, err)
			errs = append(errs, fmt.Errorf("lane %d: %w", snap.Lane, err))
			continue
		}
		written = append(written, fullpath)
	}

	s.logger.Info("Flushed %d snapshots to %s", len(written), s.dir)
	s.snapshots = s.snapshots[:0]
	s.laneCount = make(map[int]int)
	return written, errors.Join(errs...)
}

// filename joins the prefix, lane, frame and a count per detected label,
// for example run_lane1_frame1_bus1_car3.jpg. Long names are cut short.
func (s *SnapshotService) filename(snap Snapshot) string {
	var b strings.Builder
	if s.prefix != "" {
		b.WriteString(s.prefix)
		b.WriteByte('_')
	}
	fmt.Fprintf(&b, "lane%d_frame%d", snap.Lane, snap.Frame)

	counts := make(map[string]int)
	for _, det := range snap.Detections {
		counts[strings.ReplaceAll(det.Label, " ", "-")]++
	}
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		part := fmt.Sprintf("_%s%d", label, counts[label])
		if b.Len()+len(part) > maxNameLength {
			break
		}
		b.WriteString(part)
	}
	b.WriteString(".jpg")
	return b.String()
}
