// Package coco decodes raw object-detection network output into labeled
// detections using the COCO class tables.
package coco

import "fmt"

// Names lists the 80 COCO classes in the order YOLO models emit them.
var Names = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant", "bed",
	"dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// missingIDs are the original COCO category ids that have no annotations.
// TensorFlow SSD graphs keep these gaps in their class ids.
var missingIDs = map[int]bool{12: true, 26: true, 29: true, 30: true, 45: true, 66: true, 68: true, 69: true, 71: true, 83: true}

// ssdLabels maps SSD class ids (1..90) to names.
var ssdLabels = buildSSDLabels()

func buildSSDLabels() map[int]string {
	labels := make(map[int]string, len(Names))
	id := 1
	for _, name := range Names {
		for missingIDs[id] {
			id++
		}
		labels[id] = name
		id++
	}
	return labels
}

// SSDLabel returns the class name for an SSD MobileNet COCO class id.
func SSDLabel(classID int) string {
	if label, ok := ssdLabels[classID]; ok {
		return label
	}
	return fmt.Sprintf("unknown%d", classID)
}

// YOLOLabel returns the class name for a zero-based YOLO class index.
func YOLOLabel(index int) string {
	if index >= 0 && index < len(Names) {
		return Names[index]
	}
	return fmt.Sprintf("unknown%d", index)
}
