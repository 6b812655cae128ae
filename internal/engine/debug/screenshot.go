// Package debug provides frame capture utilities.
package debug

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

// Screenshots writes rendered images as PNG files.
type Screenshots struct {
	outputDir string
	prefix    string
	now       func() time.Time
}

// NewScreenshots creates a capture handler writing into outputDir.
func NewScreenshots(outputDir, prefix string) *Screenshots {
	return &Screenshots{
		outputDir: outputDir,
		prefix:    prefix,
		now:       time.Now,
	}
}

// SetOutputDir sets the output directory for screenshots.
func (sc *Screenshots) SetOutputDir(dir string) {
	sc.outputDir = dir
}

// Capture reads img back from dev and saves it with a timestamped name.
func (sc *Screenshots) Capture(dev gpu.Device, img *gpu.Image) (string, error) {
	return sc.capture(dev, img, sc.TimestampName())
}

// CaptureFrame reads img back from dev and saves it as frame n.
func (sc *Screenshots) CaptureFrame(dev gpu.Device, img *gpu.Image, n uint64) (string, error) {
	return sc.capture(dev, img, sc.FrameName(n))
}

func (sc *Screenshots) capture(dev gpu.Device, img *gpu.Image, filename string) (string, error) {
	pixels, err := dev.ReadPixels(img)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", img.Label, err)
	}
	if err := sc.Save(pixels, filename); err != nil {
		return "", err
	}
	return filename, nil
}

// Save encodes img as PNG at filename, creating the output directory.
func (sc *Screenshots) Save(img image.Image, filename string) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return file.Close()
}

// TimestampName returns a screenshot path named after the current time.
func (sc *Screenshots) TimestampName() string {
	return sc.path(fmt.Sprintf("%s_%s.png", sc.prefix, sc.now().Format("2006-01-02_15-04-05")))
}

// FrameName returns a screenshot path named after a frame number.
func (sc *Screenshots) FrameName(n uint64) string {
	return sc.path(fmt.Sprintf("%s_%04d.png", sc.prefix, n))
}

func (sc *Screenshots) path(name string) string {
	if sc.outputDir == "" {
		return name
	}
	return filepath.Join(sc.outputDir, name)
}
