package headless

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/midgard-render/internal/config"
)

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Display.Width = 32
	cfg.Display.Height = 24
	cfg.Shadows.Size = 64
	cfg.Output.Frames = 2
	cfg.Output.ScreenshotDir = filepath.Join(t.TempDir(), "frames")
	return cfg
}

func TestRunWritesFrames(t *testing.T) {
	cfg := smallConfig(t)

	paths, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("wrote %d frames, want 2", len(paths))
	}
	if want := filepath.Join(cfg.Output.ScreenshotDir, "frame_0001.png"); paths[1] != want {
		t.Errorf("second frame = %q, want %q", paths[1], want)
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("frame is %dx%d, want 32x24", b.Dx(), b.Dy())
	}

	// Sky at the top, ground at the bottom.
	top := img.At(16, 0)
	bottom := img.At(16, 23)
	if top == bottom {
		t.Errorf("expected different sky and ground colours, both %v", top)
	}
}

func TestRunWithFilters(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Output.Frames = 1
	cfg.Post.Filters = []string{"blur_h", "blur_v", "vignette"}

	paths, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("wrote %d frames, want 1", len(paths))
	}
}

func TestRunRejectsEmptyDisplay(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Display.Width = 0
	if _, err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for a display without area")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	paths, err := Run(ctx, smallConfig(t))
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(paths) != 0 {
		t.Errorf("wrote %d frames after cancel", len(paths))
	}
}
