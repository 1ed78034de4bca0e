package camera

// Preset names for common capture modes
const (
	PresetNative = "native"
	PresetVGA    = "vga"
	Preset720p   = "720p"
	Preset1080p  = "1080p"
)

// Presets returns all available preset configurations.
// Presets only set the mode; the device index is kept by ApplyPreset.
func Presets() map[string]Config {
	return map[string]Config{
		PresetNative: {},
		PresetVGA:    {Width: 640, Height: 480, Framerate: 30},
		Preset720p:   {Width: 1280, Height: 720, Framerate: 30},
		Preset1080p:  {Width: 1920, Height: 1080, Framerate: 30},
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetNative, PresetVGA, Preset720p, Preset1080p}
}

// ApplyPreset returns cfg with the named preset's mode, or false if the
// preset does not exist.
func ApplyPreset(cfg Config, name string) (Config, bool) {
	p, ok := Presets()[name]
	if !ok {
		return cfg, false
	}
	p.Device = cfg.Device
	return p, true
}
