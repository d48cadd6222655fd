package coco

import (
	"fmt"

	"signalplan/internal/model"
)

const (
	// SSDRowSize is the width of one SSD output row:
	// [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalized.
	SSDRowSize = 7
	// YOLORowSize is the width of one YOLOv5 output row:
	// [cx, cy, w, h, objectness, 80 class scores], coordinates in input pixels.
	YOLORowSize = 5 + 80
)

// DecodeSSD converts SSD output into detections above threshold, with boxes
// scaled to a width x height frame.
func DecodeSSD(values []float32, width, height int, threshold float64) ([]model.Detection, error) {
	if len(values)%SSDRowSize != 0 {
		return nil, fmt.Errorf("ssd output length %d is not a multiple of %d", len(values), SSDRowSize)
	}

	var results []model.Detection
	for i := 0; i+SSDRowSize <= len(values); i += SSDRowSize {
		row := values[i : i+SSDRowSize]
		confidence := float64(row[2])
		if confidence <= threshold {
			continue
		}

		results = append(results, model.Detection{
			Label:      SSDLabel(int(row[1])),
			Confidence: confidence,
			Box: clampBox(model.Box{
				X1: int(row[3] * float32(width)),
				Y1: int(row[4] * float32(height)),
				X2: int(row[5] * float32(width)),
				Y2: int(row[6] * float32(height)),
			}, width, height),
		})
	}
	return results, nil
}

// DecodeYOLO converts YOLOv5 output into candidate detections above
// threshold. inputSize is the square network input the frame was resized
// to; boxes are scaled back to a width x height frame. Candidates still
// need non-maximum suppression.
func DecodeYOLO(values []float32, width, height, inputSize int, threshold float64) ([]model.Detection, error) {
	if len(values)%YOLORowSize != 0 {
		return nil, fmt.Errorf("yolo output length %d is not a multiple of %d", len(values), YOLORowSize)
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("invalid yolo input size %d", inputSize)
	}

	scaleX := float32(width) / float32(inputSize)
	scaleY := float32(height) / float32(inputSize)

	var results []model.Detection
	for i := 0; i+YOLORowSize <= len(values); i += YOLORowSize {
		row := values[i : i+YOLORowSize]
		objectness := row[4]
		if float64(objectness) <= threshold {
			continue
		}

		best, bestScore := 0, row[5]
		for c, score := range row[5:] {
			if score > bestScore {
				best, bestScore = c, score
			}
		}
		confidence := float64(objectness * bestScore)
		if confidence <= threshold {
			continue
		}

		cx, cy, w, h := row[0]*scaleX, row[1]*scaleY, row[2]*scaleX, row[3]*scaleY
		results = append(results, model.Detection{
			Label:      YOLOLabel(best),
			Confidence: confidence,
			Box: clampBox(model.Box{
				X1: int(cx - w/2),
				Y1: int(cy - h/2),
				X2: int(cx + w/2),
				Y2: int(cy + h/2),
			}, width, height),
		})
	}
	return results, nil
}

func clampBox(b model.Box, width, height int) model.Box {
	b.X1 = clamp(b.X1, 0, width)
	b.X2 = clamp(b.X2, 0, width)
	b.Y1 = clamp(b.Y1, 0, height)
	b.Y2 = clamp(b.Y2, 0, height)
	return b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
