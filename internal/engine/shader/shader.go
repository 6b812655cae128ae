// Package shader holds the built-in GLSL sources of the renderer.
package shader

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed glsl
var files embed.FS

// Built-in source names.
const (
	Fullscreen = "fullscreen.vert"
	Deferred   = "deferred.frag"
	Blur       = "blur.frag"
	FXAA       = "fxaa.frag"
	Darken     = "darken.frag"
	Grey       = "grey.frag"
	Negative   = "negative.frag"
	Vignette   = "vignette.frag"
	Pixelate   = "pixelate.frag"

	GeometryVertex   = "geometry.vert"
	GeometryFragment = "geometry.frag"
	ShadowVertex     = "shadow.vert"
	ShadowFragment   = "shadow.frag"
)

// ErrMalformed is returned by Validate for sources that cannot be a shader.
var ErrMalformed = errors.New("malformed shader source")

// Source returns a built-in source by name.
func Source(name string) (string, error) {
	data, err := files.ReadFile("glsl/" + name)
	if err != nil {
		return "", fmt.Errorf("built-in shader %q: %w", name, err)
	}
	return string(data), nil
}

// MustSource returns a built-in source and panics when it does not exist.
// Only for the constants above, which are embedded at build time.
func MustSource(name string) string {
	src, err := Source(name)
	if err != nil {
		panic(err)
	}
	return src
}

// Names lists the built-in sources.
func Names() []string {
	entries, err := fs.ReadDir(files, "glsl")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Validate does the cheap checks that can run without a GL context: a
// version directive first and a main function.
func Validate(src string) error {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	if !strings.HasPrefix(trimmed, "#version") {
		return fmt.Errorf("%w: missing #version directive", ErrMalformed)
	}
	if !strings.Contains(trimmed, "void main") {
		return fmt.Errorf("%w: no main function", ErrMalformed)
	}
	if strings.Count(trimmed, "{") != strings.Count(trimmed, "}") {
		return fmt.Errorf("%w: unbalanced braces", ErrMalformed)
	}
	return nil
}
