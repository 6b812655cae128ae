package config

import "flag"

var (
	flagConfig         = flag.String("config", "", "Path to config file")
	flagDebug          = flag.Bool("debug", false, "Enable debug logging")
	flagWindowed       = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen     = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth          = flag.Int("width", 0, "Display width")
	flagHeight         = flag.Int("height", 0, "Display height")
	flagShadowDistance = flag.Float64("shadow-distance", 0, "Shadow render distance")
	flagNoPost         = flag.Bool("no-post", false, "Disable the post-processing chain")
	flagFrames         = flag.Int("frames", 0, "Frames to render in headless mode")
	flagScreenshotDir  = flag.String("screenshot-dir", "", "Directory for headless screenshots")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWindowed {
		cfg.Display.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Display.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Display.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Display.Height = *flagHeight
	}
	if *flagShadowDistance > 0 {
		cfg.Shadows.Distance = float32(*flagShadowDistance)
	}
	if *flagNoPost {
		cfg.Post.Enabled = false
	}
	if *flagFrames > 0 {
		cfg.Output.Frames = *flagFrames
	}
	if *flagScreenshotDir != "" {
		cfg.Output.ScreenshotDir = *flagScreenshotDir
	}
}
