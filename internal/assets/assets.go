// Package assets loads shaders and textures from disk with built-in fallbacks.
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/shader"
	"github.com/Faultbox/midgard-render/internal/logger"
)

// FallbackTextureSize is the edge length of the checkerboard substituted for
// missing textures.
const FallbackTextureSize = 8

// Manager resolves shader and texture names. Files in the configured
// directories override the built-ins; anything missing or malformed falls
// back to a built-in with a warning.
type Manager struct {
	shaderDir  string
	textureDir string
	cache      *Cache
	mu         sync.RWMutex
	warned     map[string]bool
}

// NewManager creates a new asset manager. Empty directories disable overrides.
func NewManager(shaderDir, textureDir string) *Manager {
	return &Manager{
		shaderDir:  shaderDir,
		textureDir: textureDir,
		cache:      NewCache(),
		warned:     make(map[string]bool),
	}
}

// Load reads a file below dir, caching the bytes.
func (m *Manager) Load(dir, name string) ([]byte, error) {
	if dir == "" {
		return nil, fs.ErrNotExist
	}
	path := filepath.Join(dir, name)
	if data, ok := m.cache.Get(path); ok {
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m.cache.Set(path, data)
	return data, nil
}

// Shader returns the source for name. The boolean is true when the source
// is an override from the shader directory.
func (m *Manager) Shader(name string) (string, bool, error) {
	data, err := m.Load(m.shaderDir, name)
	switch {
	case err == nil:
		src := string(data)
		verr := shader.Validate(src)
		if verr == nil {
			return src, true, nil
		}
		m.warn(name, "shader override is malformed, using built-in", verr)
	case !errors.Is(err, fs.ErrNotExist):
		m.warn(name, "shader override unreadable, using built-in", err)
	}

	src, err := shader.Source(name)
	if err != nil {
		return "", false, err
	}
	return src, false, nil
}

// ProgramSpec names the sources of a program.
type ProgramSpec struct {
	Name     string
	Vertex   string
	Fragment string
	Kernel   gpu.Kernel
}

// Program builds a program on dev. If an override fails to compile the
// built-in sources are used instead.
func (m *Manager) Program(dev gpu.Device, spec ProgramSpec) (*gpu.Program, error) {
	vert, vertOverride, err := m.Shader(spec.Vertex)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", spec.Name, err)
	}
	frag, fragOverride, err := m.Shader(spec.Fragment)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", spec.Name, err)
	}

	src := gpu.ProgramSource{Name: spec.Name, Vertex: vert, Fragment: frag, Kernel: spec.Kernel}
	prog, err := dev.CreateProgram(src)
	if err == nil {
		return prog, nil
	}
	if !vertOverride && !fragOverride {
		return nil, fmt.Errorf("program %s: %w", spec.Name, err)
	}

	m.warn(spec.Name, "shader override failed to build, using built-in", err)
	if src.Vertex, err = shader.Source(spec.Vertex); err != nil {
		return nil, fmt.Errorf("program %s: %w", spec.Name, err)
	}
	if src.Fragment, err = shader.Source(spec.Fragment); err != nil {
		return nil, fmt.Errorf("program %s: %w", spec.Name, err)
	}
	prog, err = dev.CreateProgram(src)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", spec.Name, err)
	}
	return prog, nil
}

// Image decodes a texture from the texture directory. Missing or
// undecodable files yield the fallback checkerboard.
func (m *Manager) Image(name string) image.Image {
	data, err := m.Load(m.textureDir, name)
	if err != nil {
		m.warn(name, "texture unavailable, using fallback", err)
		return Fallback()
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		m.warn(name, "texture could not be decoded, using fallback", err)
		return Fallback()
	}
	logger.Debug("texture decoded",
		zap.String("name", name),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return img
}

// Texture decodes and uploads a texture to dev.
func (m *Manager) Texture(dev gpu.Device, name string) (*gpu.Image, error) {
	img, err := dev.UploadImage(name, m.Image(name))
	if err != nil {
		return nil, fmt.Errorf("uploading texture %s: %w", name, err)
	}
	return img, nil
}

// warn logs once per asset name.
func (m *Manager) warn(name, msg string, err error) {
	m.mu.Lock()
	seen := m.warned[name]
	m.warned[name] = true
	m.mu.Unlock()
	if !seen {
		logger.Warn(msg, zap.String("asset", name), zap.Error(err))
	}
}

// Close drops the cache.
func (m *Manager) Close() {
	m.cache.Clear()
}

// Fallback returns the magenta and black checkerboard used for missing textures.
func Fallback() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, FallbackTextureSize, FallbackTextureSize))
	magenta := color.NRGBA{R: 255, B: 255, A: 255}
	black := color.NRGBA{A: 255}
	for y := 0; y < FallbackTextureSize; y++ {
		for x := 0; x < FallbackTextureSize; x++ {
			if (x/2+y/2)%2 == 0 {
				img.SetNRGBA(x, y, magenta)
			} else {
				img.SetNRGBA(x, y, black)
			}
		}
	}
	return img
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
