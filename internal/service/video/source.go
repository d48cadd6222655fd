// Package video decodes lane video files frame by frame with OpenCV.
package video

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"signalplan/internal/service/density"
)

// MatFrame is a decoded frame backed by an OpenCV matrix. The matrix is
// owned by the stream and overwritten by the next read.
type MatFrame struct {
	seq int
	mat *gocv.Mat
}

// Seq returns the 1-based frame index.
func (f *MatFrame) Seq() int { return f.seq }

// Mat returns the frame pixels in BGR order.
func (f *MatFrame) Mat() gocv.Mat { return *f.mat }

// Source opens video files through gocv.VideoCapture.
type Source struct{}

// NewSource creates a video Source.
func NewSource() *Source {
	return &Source{}
}

// Open starts decoding path. A file OpenCV cannot open is reported as
// density.ErrVideoOpen.
func (s *Source) Open(path string) (density.Stream, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", density.ErrVideoOpen, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w %s", density.ErrVideoOpen, path)
	}

	mat := gocv.NewMat()
	return &Stream{
		capture: capture,
		mat:     &mat,
	}, nil
}

// Stream reads one video sequentially into a single reused matrix.
type Stream struct {
	capture *gocv.VideoCapture
	mat     *gocv.Mat
	seq     int
	done    bool
}

// Next decodes the following frame. It returns io.EOF once the video is
// exhausted; the stream cannot be rewound.
func (s *Stream) Next() (density.Frame, error) {
	if s.done || s.capture == nil {
		return nil, io.EOF
	}

	if ok := s.capture.Read(s.mat); !ok || s.mat.Empty() {
		s.done = true
		return nil, io.EOF
	}

	s.seq++
	return &MatFrame{seq: s.seq, mat: s.mat}, nil
}

// Close releases the decoder and the frame buffer. It is safe to call twice.
func (s *Stream) Close() error {
	if s.capture == nil {
		return nil
	}

	matErr := s.mat.Close()
	captureErr := s.capture.Close()
	s.capture = nil
	s.done = true

	if captureErr != nil {
		return fmt.Errorf("failed to release video capture: %w", captureErr)
	}
	if matErr != nil {
		return fmt.Errorf("failed to release frame buffer: %w", matErr)
	}
	return nil
}
