// Package main - train.go
//
// Training/Testing mode for offline detection debugging.
// Loads train.png, runs the ore detector and dedup, previews the recorded
// movement the bot would play towards each ore, and saves result.png.
//
// Usage:
//   1. Place a screenshot as train.png in the current directory
//   2. Run: go run . --train
//   3. Check result.png for visualization
//   4. Check Debug.log for detailed detection info
package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"orebot/internal/mousedb"
	"orebot/internal/task"
	"orebot/internal/tracking"
	"orebot/internal/vision"
)

// TrainingMode runs offline detection on train.png
func TrainingMode(configPath string) error {
	LogInfo("=== Training Mode Started ===")

	trainPath := "train.png"
	if _, err := os.Stat(trainPath); os.IsNotExist(err) {
		LogError("train.png not found in current directory")
		LogInfo("Please place a screenshot as train.png and run again")
		return err
	}

	LogInfo("Loading %s...", trainPath)
	img, err := loadPNG(trainPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", trainPath, err)
	}
	LogInfo("Image loaded: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())

	cfg, err := LoadConfig(configPath)
	if err != nil {
		LogError("Failed to load config: %v, using defaults", err)
	}
	SetLogLevel(cfg.Log.Level)

	visionCfg, err := cfg.VisionConfig()
	if err != nil {
		return err
	}
	detector := vision.NewColorDetector(visionCfg, Logger())

	LogInfo("=== Running Detection ===")
	raw, err := detector.Infer(img)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	boxes := tracking.Dedup(raw, cfg.Tracking.DedupThreshold)
	LogInfo("Detections: %d raw, %d after dedup", len(raw), len(boxes))

	counts := make(map[task.Ore]int)
	for i, box := range boxes {
		ore := task.Ore(box.ClassID)
		counts[ore]++
		LogInfo("  %d: %s %s", i+1, ore, box)
	}
	for ore, n := range counts {
		LogInfo("  %s: %d", ore, n)
	}

	db := mousedb.NewDatabase(cfg.Movements.File, rand.New(rand.NewSource(cfg.Movements.Seed)), Logger())
	if err := db.Load(); err != nil {
		LogWarn("Movements unavailable, skipping path preview: %v", err)
	}

	result := drawDetectionResults(img, boxes, db, cfg)

	outputPath := "result.png"
	if err := savePNG(outputPath, result); err != nil {
		return fmt.Errorf("save %s: %w", outputPath, err)
	}

	abs, _ := filepath.Abs(outputPath)
	LogInfo("=== Training Mode Complete ===")
	LogInfo("Result saved to: %s", abs)
	return nil
}

// loadPNG loads a PNG image from file
func loadPNG(filename string) (*image.RGBA, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

// savePNG saves an image to PNG file
func savePNG(filename string, img image.Image) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// drawDetectionResults draws each ore box with its name, and the movement
// the mining task would query from the frame centre to the ore.
func drawDetectionResults(img *image.RGBA, boxes []tracking.DetectionBox, db *mousedb.Database, cfg *Config) *image.RGBA {
	result := image.NewRGBA(img.Bounds())
	draw.Draw(result, result.Bounds(), img, img.Bounds().Min, draw.Src)

	miningCfg, err := cfg.MiningTaskConfig()
	if err != nil {
		LogWarn("Mining config invalid, skipping path preview: %v", err)
	}
	center := image.Pt(result.Bounds().Dx()/2, result.Bounds().Dy()/2)

	for _, box := range boxes {
		ore := task.Ore(box.ClassID)
		col := ore.Color()
		vision.DrawRect(result, box.Rect(), col, 2)
		vision.DrawLabel(result, box.Rect().Min.Sub(image.Pt(0, 14)), ore.String(), col)

		if err != nil || db.Len() == 0 || ore != miningCfg.Ore {
			continue
		}
		radius := float64(min(box.W, box.H)) / 2 * miningCfg.RadiusFactor
		path := db.Query(center, box.Center(), radius, miningCfg.ApproachWindow)
		if !path.IsValid() {
			LogDebug("No recorded movement towards %s", box)
			continue
		}
		points := make([]image.Point, len(path.Points))
		for i, p := range path.Points {
			points[i] = p.Pos
		}
		vision.DrawPath(result, points, path.Color)
	}

	drawStatusLine(result, fmt.Sprintf("%d detections", len(boxes)))
	return result
}

// drawStatusLine writes text in the top-left corner.
func drawStatusLine(img draw.Image, text string) {
	if text == "" {
		return
	}
	vision.DrawLabel(img, image.Pt(4, 4), text, color.RGBA{R: 255, G: 255, B: 255, A: 255})
}
