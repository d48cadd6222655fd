package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalplan/internal/logger"
	"signalplan/internal/model"
)

func TestSnapshotService_FlushWritesInLaneOrder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	s := NewSnapshotService(dir, "run", logger.NewNop())

	s.AddSnapshot(3, 1, []model.Detection{{Label: "car"}, {Label: "stop sign"}}, []byte("three"))
	s.AddSnapshot(1, 1, nil, []byte("one"))
	require.Equal(t, 2, s.Pending())

	written, err := s.Flush()
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "run_lane1_frame1.jpg"),
		filepath.Join(dir, "run_lane3_frame1_car1_stop-sign1.jpg"),
	}, written)

	data, err := os.ReadFile(written[1])
	require.NoError(t, err)
	assert.Equal(t, "three", string(data))
	assert.Zero(t, s.Pending())
}

func TestSnapshotService_LimitPerLane(t *testing.T) {
	s := NewSnapshotService(t.TempDir(), "", logger.NewNop())

	s.AddSnapshot(1, 1, nil, []byte("a"))
	s.AddSnapshot(1, 2, nil, []byte("b"))
	s.AddSnapshot(2, 1, nil, []byte("c"))

	assert.Equal(t, 2, s.Pending())
}

func TestSnapshotService_FlushEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never")
	s := NewSnapshotService(dir, "run", logger.NewNop())

	written, err := s.Flush()
	require.NoError(t, err)
	assert.Empty(t, written)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotService_BusyFrameName(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotService(dir, "0f8c2a4e-6b1d-4c7e-9a53-2d8e1f6b7c90", logger.NewNop())

	var detections []model.Detection
	for i := 0; i < 25; i++ {
		detections = append(detections, model.Detection{Label: "motorcycle"})
	}
	detections = append(detections, model.Detection{Label: "car"}, model.Detection{Label: "car"})
	s.AddSnapshot(1, 1, detections, []byte("busy"))

	written, err := s.Flush()
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, filepath.Join(dir, "0f8c2a4e-6b1d-4c7e-9a53-2d8e1f6b7c90_lane1_frame1_car2_motorcycle25.jpg"), written[0])
}

func TestSnapshotService_NameIsBounded(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotService(dir, "run", logger.NewNop())

	var detections []model.Detection
	for i := 0; i < 60; i++ {
		detections = append(detections, model.Detection{Label: fmt.Sprintf("class-with-a-long-name-%02d", i)})
	}
	s.AddSnapshot(2, 1, detections, []byte("wide"))

	written, err := s.Flush()
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.LessOrEqual(t, len(filepath.Base(written[0])), maxNameLength+len(".jpg"))
}

func TestSnapshotService_FlushReportsWriteFailures(t *testing.T) {
	dir := t.TempDir()
	// A directory squatting on the target name makes the write fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "run_lane1_frame1.jpg"), 0755))

	s := NewSnapshotService(dir, "run", logger.NewNop())
	s.AddSnapshot(1, 1, nil, []byte("one"))
	s.AddSnapshot(2, 1, nil, []byte("two"))

	written, err := s.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lane 1")
	assert.Equal(t, []string{filepath.Join(dir, "run_lane2_frame1.jpg")}, written)
	assert.Zero(t, s.Pending())
}
