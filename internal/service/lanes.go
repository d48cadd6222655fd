package service

import (
	"errors"
	"fmt"
	"os"

	"signalplan/internal/model"
)

// ErrMissingFile is matched by errors.Is for every MissingFileError.
var ErrMissingFile = errors.New("video file not found")

// MissingFileError reports a configured lane video that does not exist.
type MissingFileError struct {
	Lane int
	Path string
	Err  error
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("lane %d: video file not found: %s", e.Lane, e.Path)
}

func (e *MissingFileError) Unwrap() []error {
	return []error{ErrMissingFile, e.Err}
}

// CheckLanePaths verifies that every path exists and returns the lanes in
// order. It stops at the first missing file.
func CheckLanePaths(paths []string) ([]model.Lane, error) {
	lanes := make([]model.Lane, 0, len(paths))
	for i, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &MissingFileError{Lane: i + 1, Path: path, Err: err}
			}
			return nil, fmt.Errorf("lane %d: failed to stat %s: %w", i+1, path, err)
		}
		lanes = append(lanes, model.Lane{Index: i + 1, Path: path})
	}
	return lanes, nil
}
