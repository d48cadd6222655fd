package service

import (
	"encoding/base64"
	"encoding/json"

	"signalplan/internal/logger"
	"signalplan/internal/model"
	"signalplan/internal/service/density"
)

// Progress message types sent to viewers.
const (
	MessageFirstFrame = "first_frame"
	MessageProgress   = "progress"
	MessageLaneDone   = "lane_done"
	MessagePlan       = "plan"
)

// Broadcaster delivers an encoded message to every viewer.
type Broadcaster interface {
	Broadcast(message []byte)
}

// SnapshotSink keeps annotated frames for later inspection.
type SnapshotSink interface {
	AddSnapshot(lane, frame int, detections []model.Detection, data []byte)
}

// Annotator renders detections onto a frame as an encoded image.
type Annotator interface {
	DrawRectangle(detections []model.Detection, frame density.Frame) ([]byte, error)
}

// Message is one progress event of a run.
type Message struct {
	RunID      string              `json:"run_id"`
	Type       string              `json:"type"`
	Lane       int                 `json:"lane,omitempty"`
	Path       string              `json:"path,omitempty"`
	Frame      int                 `json:"frame,omitempty"`
	Vehicles   int                 `json:"vehicles,omitempty"`
	Density    *model.LaneDensity  `json:"density,omitempty"`
	Detections []model.Detection   `json:"detections,omitempty"`
	Image      string              `json:"image,omitempty"`
	Plan       []model.SignalPlan  `json:"plan,omitempty"`
	EqualSplit bool                `json:"equal_split,omitempty"`
	Densities  []model.LaneDensity `json:"densities,omitempty"`
}

// ProgressReporter forwards estimator events to viewers. It implements
// density.Observer and is safe for use by several lane workers.
type ProgressReporter struct {
	runID     string
	out       Broadcaster
	annotator Annotator
	snapshots SnapshotSink
	logger    *logger.Logger
}

// NewProgressReporter creates a reporter tagging messages with runID.
// out may be nil when no viewer feed runs. annotator may be nil, in which
// case first frames are sent without an image.
func NewProgressReporter(runID string, out Broadcaster, annotator Annotator, logger *logger.Logger) *ProgressReporter {
	return &ProgressReporter{
		runID:     runID,
		out:       out,
		annotator: annotator,
		logger:    logger,
	}
}

// WithSnapshots also hands every annotated first frame to sink.
func (p *ProgressReporter) WithSnapshots(sink SnapshotSink) *ProgressReporter {
	p.snapshots = sink
	return p
}

// FirstFrame sends the raw detections of a lane's first frame, with the
// annotated frame as a base64 JPEG when an annotator is available.
func (p *ProgressReporter) FirstFrame(lane model.Lane, frame density.Frame, detections []model.Detection) {
	msg := Message{
		Type:       MessageFirstFrame,
		Lane:       lane.Index,
		Path:       lane.Path,
		Frame:      frame.Seq(),
		Detections: detections,
	}

	if p.annotator != nil {
		img, err := p.annotator.DrawRectangle(detections, frame)
		if err != nil {
			p.logger.Warning("Failed to annotate first frame of lane %d: %v", lane.Index, err)
		} else {
			msg.Image = base64.StdEncoding.EncodeToString(img)
			if p.snapshots != nil {
				p.snapshots.AddSnapshot(lane.Index, frame.Seq(), detections, img)
			}
		}
	}

	p.send(msg)
}

// Progress sends the running frame and vehicle counts of a lane.
func (p *ProgressReporter) Progress(lane model.Lane, frames, vehicles int) {
	p.send(Message{
		Type:     MessageProgress,
		Lane:     lane.Index,
		Path:     lane.Path,
		Frame:    frames,
		Vehicles: vehicles,
	})
}

// LaneDone sends the final density of a lane.
func (p *ProgressReporter) LaneDone(d model.LaneDensity) {
	p.send(Message{
		Type:    MessageLaneDone,
		Lane:    d.Lane,
		Path:    d.Path,
		Density: &d,
	})
}

// PlanReady sends the complete plan of the run.
func (p *ProgressReporter) PlanReady(report *Report) {
	p.send(Message{
		Type:       MessagePlan,
		Plan:       report.Allocation.Plans,
		EqualSplit: report.Allocation.EqualSplit,
		Densities:  report.Densities,
	})
}

func (p *ProgressReporter) send(msg Message) {
	if p.out == nil {
		return
	}
	msg.RunID = p.runID
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Failed to encode %s message: %v", msg.Type, err)
		return
	}
	p.out.Broadcast(data)
}
