// Package camera captures frames from a local video device with OpenCV.
package camera

import "fmt"

// Config holds capture settings.
type Config struct {
	Device    int `json:"device" mapstructure:"device"`       // Capture device index (0 = first camera)
	Width     int `json:"width" mapstructure:"width"`         // Requested frame width, 0 = driver default
	Height    int `json:"height" mapstructure:"height"`       // Requested frame height, 0 = driver default
	Framerate int `json:"framerate" mapstructure:"framerate"` // Requested FPS, 0 = driver default
}

// Capture limits accepted by Validate.
const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig opens the first camera at whatever mode the driver picks.
func DefaultConfig() Config {
	return Config{}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must be a non-negative index")
	}
	if c.Width != 0 && (c.Width < 160 || c.Width > MaxWidth) {
		errors = append(errors, fmt.Sprintf("width must be 0 (driver default) or between 160 and %d", MaxWidth))
	}
	if c.Height != 0 && (c.Height < 120 || c.Height > MaxHeight) {
		errors = append(errors, fmt.Sprintf("height must be 0 (driver default) or between 120 and %d", MaxHeight))
	}
	if (c.Width == 0) != (c.Height == 0) {
		errors = append(errors, "width and height must be set together")
	}
	if c.Framerate < 0 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 0 and %d", MaxFramerate))
	}

	return errors
}
