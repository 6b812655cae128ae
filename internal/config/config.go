// Package config handles renderer configuration loading and management.
package config

// Config holds all renderer settings.
type Config struct {
	Display  DisplayConfig  `yaml:"display"`
	Shadows  ShadowConfig   `yaml:"shadows"`
	Post     PostConfig     `yaml:"post"`
	Lighting LightingConfig `yaml:"lighting"`
	Assets   AssetsConfig   `yaml:"assets"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DisplayConfig holds window and swapchain settings.
type DisplayConfig struct {
	Title      string `yaml:"title"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Fullscreen bool   `yaml:"fullscreen"`
	VSync      bool   `yaml:"vsync"`
}

// ShadowConfig holds the directional shadow volume settings.
type ShadowConfig struct {
	Size            int     `yaml:"size"`      // Shadow map resolution (square)
	PCF             int     `yaml:"pcf"`       // PCF kernel radius in texels
	Bias            float32 `yaml:"bias"`      // Depth comparison bias
	Darkness        float32 `yaml:"darkness"`  // 0 = no shadow, 1 = black
	Distance        float32 `yaml:"distance"`  // Shadow render distance from the camera
	Transition      float32 `yaml:"transition"`
	BoxOffset       float32 `yaml:"box_offset"`
	BoxDistance     float32 `yaml:"box_distance"`
	Margin          float32 `yaml:"margin"` // Extra pull-back of the light eye
	BrightnessBoost float32 `yaml:"brightness_boost"`
}

// PostConfig holds the post-processing chain settings.
type PostConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Filters          []string `yaml:"filters"` // Ordered filter names
	BlurScale        float32  `yaml:"blur_scale"`
	BlurSize         float32  `yaml:"blur_size"` // Target size as a fraction of the display
	FXAASpan         float32  `yaml:"fxaa_span"`
	DarkenFactor     float32  `yaml:"darken_factor"`
	VignetteStrength float32  `yaml:"vignette_strength"`
	PixelSize        float32  `yaml:"pixel_size"`
}

// LightingConfig holds sun and ambient settings.
type LightingConfig struct {
	SunLongitude float32    `yaml:"sun_longitude"` // Degrees around Y
	SunLatitude  float32    `yaml:"sun_latitude"`  // Degrees above the horizon
	SunColour    [3]float32 `yaml:"sun_colour"`
	Ambient      float32    `yaml:"ambient"`
}

// AssetsConfig holds override directories for shaders and textures.
type AssetsConfig struct {
	ShaderDir     string `yaml:"shader_dir"`
	TextureDir    string `yaml:"texture_dir"`
	GroundTexture string `yaml:"ground_texture"` // Empty uses a generated checkerboard

}

// OutputConfig holds headless rendering settings.
type OutputConfig struct {
	ScreenshotDir string `yaml:"screenshot_dir"`
	Frames        int    `yaml:"frames"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			Title:  "Midgard Render",
			Width:  1280,
			Height: 720,
			VSync:  true,
		},
		Shadows: ShadowConfig{
			Size:            2048,
			PCF:             1,
			Bias:            0.001,
			Darkness:        0.6,
			Distance:        150,
			Transition:      10,
			BoxOffset:       15,
			BoxDistance:     100,
			Margin:          0,
			BrightnessBoost: 0.1,
		},
		Post: PostConfig{
			Enabled:          true,
			Filters:          []string{"fxaa"},
			BlurScale:        2.0,
			BlurSize:         0.5,
			FXAASpan:         8.0,
			DarkenFactor:     0.0,
			VignetteStrength: 0.4,
			PixelSize:        4,
		},
		Lighting: LightingConfig{
			SunLongitude: 45,
			SunLatitude:  50,
			SunColour:    [3]float32{1.0, 0.95, 0.85},
			Ambient:      0.25,
		},
		Output: OutputConfig{
			ScreenshotDir: "screenshots",
			Frames:        1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
