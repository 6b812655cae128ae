package assets

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/gpu/soft"
	"github.com/Faultbox/midgard-render/internal/engine/shader"
)

func noopKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestShaderBuiltin(t *testing.T) {
	m := NewManager("", "")
	src, override, err := m.Shader(shader.Darken)
	if err != nil {
		t.Fatalf("Shader: %v", err)
	}
	if override {
		t.Error("expected the built-in source")
	}
	if !strings.Contains(src, "factor") {
		t.Error("unexpected darken source")
	}
}

func TestShaderOverride(t *testing.T) {
	dir := t.TempDir()
	custom := "#version 410 core\n// custom\nvoid main() {}\n"
	writeFile(t, dir, shader.Grey, custom)

	m := NewManager(dir, "")
	src, override, err := m.Shader(shader.Grey)
	if err != nil {
		t.Fatalf("Shader: %v", err)
	}
	if !override || src != custom {
		t.Errorf("expected override source, got override=%v", override)
	}
}

func TestShaderMalformedOverrideFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, shader.Negative, "not a shader")

	m := NewManager(dir, "")
	src, override, err := m.Shader(shader.Negative)
	if err != nil {
		t.Fatalf("Shader: %v", err)
	}
	builtin, _ := shader.Source(shader.Negative)
	if override || src != builtin {
		t.Error("expected built-in source for a malformed override")
	}
}

func TestShaderUnknown(t *testing.T) {
	m := NewManager(t.TempDir(), "")
	if _, _, err := m.Shader("missing.frag"); err == nil {
		t.Error("expected an error for a shader with no built-in")
	}
}

// rejecting fails to build any program whose fragment source contains "BROKEN".
type rejecting struct {
	*soft.Device
}

func (r rejecting) CreateProgram(src gpu.ProgramSource) (*gpu.Program, error) {
	if strings.Contains(src.Fragment, "BROKEN") {
		return nil, errors.New("compile error")
	}
	return r.Device.CreateProgram(src)
}

func TestProgramOverrideFailsBackToBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, shader.Darken, "#version 410 core\nvoid main() { BROKEN }\n")

	m := NewManager(dir, "")
	prog, err := m.Program(rejecting{soft.New()}, ProgramSpec{
		Name:     "darken",
		Vertex:   shader.Fullscreen,
		Fragment: shader.Darken,
		Kernel:   noopKernel,
	})
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	if prog.Name != "darken" {
		t.Errorf("unexpected program %q", prog.Name)
	}
}

func TestProgramBuiltinFailureIsAnError(t *testing.T) {
	m := NewManager("", "")
	// The soft device cannot build a program without a kernel.
	_, err := m.Program(soft.New(), ProgramSpec{Name: "grey", Vertex: shader.Fullscreen, Fragment: shader.Grey})
	if !errors.Is(err, gpu.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestImageDecodesPNGAndBMP(t *testing.T) {
	dir := t.TempDir()
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	for name, encode := range map[string]func(*os.File) error{
		"tex.png": func(f *os.File) error { return png.Encode(f, src) },
		"tex.bmp": func(f *os.File) error { return bmp.Encode(f, src) },
	} {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := encode(f); err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
		f.Close()
	}

	m := NewManager("", dir)
	for _, name := range []string{"tex.png", "tex.bmp"} {
		img := m.Image(name)
		if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
			t.Errorf("%s: expected 3x2, got %v", name, img.Bounds())
			continue
		}
		r, g, b, _ := img.At(1, 1).RGBA()
		if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
			t.Errorf("%s: unexpected pixel %d %d %d", name, r>>8, g>>8, b>>8)
		}
	}
}

func TestImageFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.png", "definitely not a png")

	m := NewManager("", dir)
	for _, name := range []string{"missing.png", "broken.png"} {
		img := m.Image(name)
		if img.Bounds().Dx() != FallbackTextureSize {
			t.Errorf("%s: expected fallback texture, got %v", name, img.Bounds())
		}
	}
}

func TestTextureUpload(t *testing.T) {
	dev := soft.New()
	m := NewManager("", "")
	tex, err := m.Texture(dev, "missing.png")
	if err != nil {
		t.Fatalf("Texture: %v", err)
	}
	if tex.Width != FallbackTextureSize || tex.Format != gpu.FormatRGBA8 {
		t.Errorf("unexpected texture %+v", tex)
	}
}

func TestCacheStats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.frag", "#version 410 core\nvoid main() {}\n")

	m := NewManager(dir, "")
	for i := 0; i < 3; i++ {
		if _, err := m.Load(dir, "a.frag"); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	hits, misses := m.cache.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("expected 2 hits 1 miss, got %d hits %d misses", hits, misses)
	}

	m.Close()
	if hits, misses := m.cache.Stats(); hits != 0 || misses != 0 {
		t.Error("expected stats reset after Close")
	}
}
