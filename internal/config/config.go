package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"signalplan/internal/model"
)

const (
	// ModelFormatSSD selects the SSD MobileNet COCO graph output layout.
	ModelFormatSSD = "ssd"
	// ModelFormatYOLO selects the YOLOv5 ONNX output layout.
	ModelFormatYOLO = "yolo"
)

type Config struct {
	LaneVideos         []string
	CycleLength        int
	YellowSeconds      int
	VehicleClasses     []string
	ModelPath          string
	ConfigPath         string
	ModelFormat        string
	DetectionThreshold float64
	NMSThreshold       float64
	ProgressInterval   int    // Log progress every N frames
	LaneWorkers        int    // Lanes estimated in parallel
	ProgressAddr       string // Listen address of the progress feed; empty disables it
	LogDirectory       string
	SnapshotDirectory  string // Annotated first frames are saved here; empty disables it
}

// Load reads the configuration from the environment, after merging in a
// .env file from the working directory when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Could not load .env file: %v", err)
	}

	dataDir := filepath.Join(".", "data")
	return &Config{
		LaneVideos: getEnvAsList("LANE_VIDEOS", []string{
			filepath.Join(dataDir, "lane1.mp4"),
			filepath.Join(dataDir, "lane2.mp4"),
			filepath.Join(dataDir, "lane3.mp4"),
			filepath.Join(dataDir, "lane4.mp4"),
		}),
		CycleLength:        getEnvAsInt("CYCLE_LENGTH", 60),
		YellowSeconds:      getEnvAsInt("YELLOW_SECONDS", 5),
		VehicleClasses:     getEnvAsList("VEHICLE_CLASSES", append([]string(nil), model.DefaultVehicleClasses...)),
		ModelPath:          getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ConfigPath:         getEnv("CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		ModelFormat:        strings.ToLower(getEnv("MODEL_FORMAT", ModelFormatSSD)),
		DetectionThreshold: getEnvAsFloat("DETECTION_THRESHOLD", 0.5),
		NMSThreshold:       getEnvAsFloat("NMS_THRESHOLD", 0.45),
		ProgressInterval:   getEnvAsInt("PROGRESS_INTERVAL", 30),
		LaneWorkers:        getEnvAsInt("LANE_WORKERS", 1),
		ProgressAddr:       getEnv("PROGRESS_ADDR", ""),
		LogDirectory:       getEnv("LOG_DIR", filepath.Join(".", "logs")),
		SnapshotDirectory:  getEnv("SNAPSHOT_DIR", ""),
	}
}

// Validate reports the first setting that cannot produce a valid run.
func (c *Config) Validate() error {
	switch {
	case len(c.LaneVideos) == 0:
		return fmt.Errorf("no lane videos configured")
	case c.CycleLength <= 0:
		return fmt.Errorf("cycle length must be positive, got %d", c.CycleLength)
	case c.YellowSeconds < 0:
		return fmt.Errorf("yellow time must not be negative, got %d", c.YellowSeconds)
	case c.YellowSeconds >= c.CycleLength:
		return fmt.Errorf("yellow time %ds must be shorter than the %ds cycle", c.YellowSeconds, c.CycleLength)
	case len(c.VehicleClasses) == 0:
		return fmt.Errorf("no vehicle classes configured")
	case c.ModelFormat != ModelFormatSSD && c.ModelFormat != ModelFormatYOLO:
		return fmt.Errorf("unknown model format %q", c.ModelFormat)
	case c.DetectionThreshold < 0 || c.DetectionThreshold > 1:
		return fmt.Errorf("detection threshold must be within [0,1], got %v", c.DetectionThreshold)
	case c.NMSThreshold < 0 || c.NMSThreshold > 1:
		return fmt.Errorf("nms threshold must be within [0,1], got %v", c.NMSThreshold)
	case c.ProgressInterval <= 0:
		return fmt.Errorf("progress interval must be positive, got %d", c.ProgressInterval)
	case c.LaneWorkers <= 0:
		return fmt.Errorf("lane workers must be positive, got %d", c.LaneWorkers)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return SplitList(value)
}

// SplitList splits a comma separated list, trimming blanks and dropping empty entries.
func SplitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
