package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"gocv.io/x/gocv"

	"signalplan/internal/config"
	"signalplan/internal/logger"
	"signalplan/internal/model"
	"signalplan/internal/service/ai/coco"
	"signalplan/internal/service/density"
)

const (
	// SSDInputSize is the square input of the SSD MobileNet COCO graph.
	SSDInputSize = 300
	// YOLOInputSize is the square input of the YOLOv5 ONNX export.
	YOLOInputSize = 640
)

var (
	// ErrNetNotLoaded is returned when detection runs without a network.
	ErrNetNotLoaded = errors.New("detection network not initialized")
	// ErrUnsupportedFrame is returned for frames that do not carry a gocv.Mat.
	ErrUnsupportedFrame = errors.New("frame is not backed by a gocv.Mat")
)

// matFrame is implemented by frames decoded with gocv.
type matFrame interface {
	Mat() gocv.Mat
}

// DetectorService runs an OpenCV DNN object detector. It is not safe for
// concurrent use; create one per worker.
type DetectorService struct {
	net          gocv.Net
	modelPath    string
	configPath   string
	format       string
	threshold    float64
	nmsThreshold float64
	logger       *logger.Logger
}

// NewDetectorService creates a detector from the model settings in config
// and loads the network.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		modelPath:    config.ModelPath,
		configPath:   config.ConfigPath,
		format:       config.ModelFormat,
		threshold:    config.DetectionThreshold,
		nmsThreshold: config.NMSThreshold,
		logger:       logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, fmt.Errorf("could not initialize detection network: %w", err)
	}

	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	configPath := ""
	if s.format == config.ModelFormatSSD {
		if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.configPath)
		}
		configPath = s.configPath
	}

	net := gocv.ReadNet(s.modelPath, configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized (%s, %s)", s.format, s.modelPath)
	return nil
}

// Detect implements density.Detector for frames decoded by the video package.
func (s *DetectorService) Detect(ctx context.Context, frame density.Frame) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mf, ok := frame.(matFrame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedFrame, frame)
	}
	return s.DetectObjects(mf.Mat())
}

// DetectObjects runs the DNN on mat and returns the detections above the
// confidence threshold.
func (s *DetectorService) DetectObjects(mat gocv.Mat) ([]model.Detection, error) {
	if s.net.Empty() {
		return nil, ErrNetNotLoaded
	}
	if mat.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	if s.format == config.ModelFormatYOLO {
		return s.detectYOLO(mat)
	}
	return s.detectSSD(mat)
}

// detectSSD feeds the SSD COCO graph, whose rows are
// [batch_id, class_id, confidence, x1, y1, x2, y2].
func (s *DetectorService) detectSSD(mat gocv.Mat) ([]model.Detection, error) {
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(SSDInputSize, SSDInputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	output, err := s.forward(blob)
	if err != nil {
		return nil, err
	}
	defer output.Close()

	values, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}
	return coco.DecodeSSD(values, mat.Cols(), mat.Rows(), s.threshold)
}

// detectYOLO feeds a YOLOv5 ONNX export and suppresses overlapping boxes
// across classes so one vehicle is counted once.
func (s *DetectorService) detectYOLO(mat gocv.Mat) ([]model.Detection, error) {
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(YOLOInputSize, YOLOInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	output, err := s.forward(blob)
	if err != nil {
		return nil, err
	}
	defer output.Close()

	values, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}

	candidates, err := coco.DecodeYOLO(values, mat.Cols(), mat.Rows(), YOLOInputSize, s.threshold)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = image.Rect(c.Box.X1, c.Box.Y1, c.Box.X2, c.Box.Y2)
		scores[i] = float32(c.Confidence)
	}

	indices := gocv.NMSBoxes(boxes, scores, float32(s.threshold), float32(s.nmsThreshold))
	results := make([]model.Detection, 0, len(indices))
	for _, idx := range indices {
		results = append(results, candidates[idx])
	}
	return results, nil
}

func (s *DetectorService) forward(blob gocv.Mat) (gocv.Mat, error) {
	if blob.Empty() {
		return gocv.Mat{}, fmt.Errorf("failed to build input blob")
	}
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	if output.Empty() {
		output.Close()
		return gocv.Mat{}, fmt.Errorf("network produced no output")
	}
	return output, nil
}

// DrawRectangle draws detections on a copy of the frame and returns it as a
// JPEG buffer.
func (s *DetectorService) DrawRectangle(detections []model.Detection, frame density.Frame) ([]byte, error) {
	mf, ok := frame.(matFrame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedFrame, frame)
	}

	mat := mf.Mat().Clone()
	defer mat.Close()

	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}
	for _, detection := range detections {
		rect := image.Rect(detection.Box.X1, detection.Box.Y1, detection.Box.X2, detection.Box.Y2)
		if err := gocv.Rectangle(&mat, rect, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s (%.2f)", detection.Label, detection.Confidence)
		pt := image.Pt(detection.Box.X1, detection.Box.Y1-5)
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		s.logger.Error("Failed to encode image: %v", err)
		return nil, err
	}
	defer buf.Close()

	finalImage := make([]byte, len(buf.GetBytes()))
	copy(finalImage, buf.GetBytes())
	return finalImage, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	if s.net.Empty() {
		return nil
	}
	return s.net.Close()
}
