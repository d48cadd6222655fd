package density

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalplan/internal/logger"
	"signalplan/internal/model"
)

type fakeFrame struct {
	seq int
}

func (f fakeFrame) Seq() int { return f.seq }

// fakeStream yields frames numbered 1..frames, failing with readErr at failAt.
type fakeStream struct {
	frames  int
	next    int
	failAt  int
	closed  bool
	readErr error
}

func (s *fakeStream) Next() (Frame, error) {
	if s.failAt > 0 && s.next+1 == s.failAt {
		return nil, s.readErr
	}
	if s.next >= s.frames {
		return nil, io.EOF
	}
	s.next++
	return fakeFrame{seq: s.next}, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeSource struct {
	stream  *fakeStream
	openErr error
	opened  []string
}

func (s *fakeSource) Open(path string) (Stream, error) {
	s.opened = append(s.opened, path)
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.stream, nil
}

type fakeDetector struct {
	perFrame [][]model.Detection
	failOn   int
	calls    []int
}

func (d *fakeDetector) Detect(_ context.Context, frame Frame) ([]model.Detection, error) {
	d.calls = append(d.calls, frame.Seq())
	if d.failOn == frame.Seq() {
		return nil, errors.New("inference backend crashed")
	}
	if frame.Seq() > len(d.perFrame) {
		return nil, nil
	}
	return d.perFrame[frame.Seq()-1], nil
}

type recordingObserver struct {
	firstFrames []int
	firstDets   []model.Detection
	progress    []int
	done        []model.LaneDensity
}

func (o *recordingObserver) FirstFrame(_ model.Lane, frame Frame, detections []model.Detection) {
	o.firstFrames = append(o.firstFrames, frame.Seq())
	o.firstDets = detections
}

func (o *recordingObserver) Progress(_ model.Lane, frames, _ int) {
	o.progress = append(o.progress, frames)
}

func (o *recordingObserver) LaneDone(d model.LaneDensity) {
	o.done = append(o.done, d)
}

func det(label string) model.Detection {
	return model.Detection{Label: label, Confidence: 0.9, Box: model.Box{X1: 1, Y1: 1, X2: 10, Y2: 10}}
}

func vehicles() model.ClassSet {
	return model.NewClassSet(model.DefaultVehicleClasses...)
}

var lane1 = model.Lane{Index: 1, Path: "data/lane1.mp4"}

func TestEstimate_MeanOfVehicleCounts(t *testing.T) {
	source := &fakeSource{stream: &fakeStream{frames: 4}}
	detector := &fakeDetector{perFrame: [][]model.Detection{
		{det("car"), det("person"), det("truck")},
		{det("bus")},
		{},
		{det("motorcycle"), det("bicycle"), det("car"), det("dog")},
	}}

	e := NewEstimator(source, detector, vehicles(), logger.NewNop())
	got, err := e.Estimate(context.Background(), lane1)

	require.NoError(t, err)
	assert.Equal(t, 4, got.Frames)
	assert.Equal(t, 5, got.Vehicles)
	assert.InDelta(t, 1.25, got.Value, 1e-12)
	assert.Equal(t, 1, got.Lane)
	assert.False(t, got.OpenFailed)
	assert.True(t, source.stream.closed, "stream should be closed")
}

func TestEstimate_DetectorCalledOncePerFrameInOrder(t *testing.T) {
	source := &fakeSource{stream: &fakeStream{frames: 5}}
	detector := &fakeDetector{}

	e := NewEstimator(source, detector, vehicles(), logger.NewNop())
	_, err := e.Estimate(context.Background(), lane1)

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, detector.calls)
}

func TestEstimate_OpenFailureIsZeroDensity(t *testing.T) {
	var buf bytes.Buffer
	source := &fakeSource{openErr: fmt.Errorf("%w: codec missing", ErrVideoOpen)}
	detector := &fakeDetector{}
	observer := &recordingObserver{}

	e := NewEstimator(source, detector, vehicles(), logger.New(&buf), WithObserver(observer))
	got, err := e.Estimate(context.Background(), lane1)

	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Value)
	assert.True(t, got.OpenFailed)
	assert.Empty(t, detector.calls)
	assert.Contains(t, buf.String(), "Could not open video data/lane1.mp4")
	require.Len(t, observer.done, 1)
	assert.True(t, observer.done[0].OpenFailed)
}

func TestEstimate_OtherOpenErrorsPropagate(t *testing.T) {
	source := &fakeSource{openErr: errors.New("permission denied")}

	e := NewEstimator(source, &fakeDetector{}, vehicles(), logger.NewNop())
	_, err := e.Estimate(context.Background(), lane1)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVideoOpen)
}

func TestEstimate_ZeroFramesIsZeroDensity(t *testing.T) {
	var buf bytes.Buffer
	source := &fakeSource{stream: &fakeStream{frames: 0}}

	e := NewEstimator(source, &fakeDetector{}, vehicles(), logger.New(&buf))
	got, err := e.Estimate(context.Background(), lane1)

	require.NoError(t, err)
	assert.Equal(t, 0, got.Frames)
	assert.Equal(t, 0.0, got.Value)
	assert.False(t, got.OpenFailed)
	assert.Contains(t, buf.String(), "No frames processed")
}

func TestEstimate_DetectorErrorIsFatal(t *testing.T) {
	source := &fakeSource{stream: &fakeStream{frames: 3}}
	detector := &fakeDetector{failOn: 2}

	e := NewEstimator(source, detector, vehicles(), logger.NewNop())
	_, err := e.Estimate(context.Background(), lane1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 2")
	assert.Equal(t, []int{1, 2}, detector.calls)
	assert.True(t, source.stream.closed)
}

func TestEstimate_ReadErrorIsFatal(t *testing.T) {
	readErr := errors.New("corrupt packet")
	source := &fakeSource{stream: &fakeStream{frames: 3, failAt: 2, readErr: readErr}}

	e := NewEstimator(source, &fakeDetector{}, vehicles(), logger.NewNop())
	_, err := e.Estimate(context.Background(), lane1)

	assert.ErrorIs(t, err, readErr)
}

func TestEstimate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &fakeSource{stream: &fakeStream{frames: 3}}
	detector := &fakeDetector{}

	e := NewEstimator(source, detector, vehicles(), logger.NewNop())
	_, err := e.Estimate(ctx, lane1)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, detector.calls)
}

func TestEstimate_ObserverSeesFirstFrameAndProgress(t *testing.T) {
	source := &fakeSource{stream: &fakeStream{frames: 7}}
	detector := &fakeDetector{perFrame: [][]model.Detection{{det("car"), det("person")}}}
	observer := &recordingObserver{}

	e := NewEstimator(source, detector, vehicles(), logger.NewNop(),
		WithObserver(observer), WithProgressInterval(3))
	got, err := e.Estimate(context.Background(), lane1)

	require.NoError(t, err)
	assert.Equal(t, []int{1}, observer.firstFrames)
	assert.Len(t, observer.firstDets, 2, "first frame should expose the raw, unfiltered detections")
	assert.Equal(t, []int{3, 6}, observer.progress)
	require.Len(t, observer.done, 1)
	assert.Equal(t, got, observer.done[0])
}

func TestEstimate_DensityIsBoundedByDetectionsPerFrame(t *testing.T) {
	perFrame := [][]model.Detection{
		{det("car"), det("car"), det("car")},
		{det("car")},
		{det("truck"), det("bus")},
	}
	source := &fakeSource{stream: &fakeStream{frames: len(perFrame)}}

	e := NewEstimator(source, &fakeDetector{perFrame: perFrame}, vehicles(), logger.NewNop())
	got, err := e.Estimate(context.Background(), lane1)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.Value, 0.0)
	assert.LessOrEqual(t, got.Value, 3.0)
	assert.InDelta(t, 2.0, got.Value, 1e-12)
}
