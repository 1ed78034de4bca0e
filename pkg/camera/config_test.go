package camera

import "testing"

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("DefaultConfig should be valid, got %v", errs)
	}
	if cfg.Device != 0 {
		t.Errorf("Device: got %d, want 0", cfg.Device)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr int
	}{
		{name: "vga", cfg: Config{Width: 640, Height: 480, Framerate: 30}},
		{name: "negative device", cfg: Config{Device: -1}, wantErr: 1},
		{name: "width without height", cfg: Config{Width: 640}, wantErr: 1},
		{name: "tiny frame", cfg: Config{Width: 10, Height: 10}, wantErr: 2},
		{name: "framerate too high", cfg: Config{Framerate: 500}, wantErr: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := tc.cfg.Validate()
			if len(errs) != tc.wantErr {
				t.Errorf("got %d errors (%v), want %d", len(errs), errs, tc.wantErr)
			}
		})
	}
}

func TestPresets_AllValid(t *testing.T) {
	for _, name := range PresetNames() {
		cfg, ok := ApplyPreset(Config{Device: 2}, name)
		if !ok {
			t.Errorf("preset %q missing", name)
			continue
		}
		if cfg.Device != 2 {
			t.Errorf("preset %q: device not preserved, got %d", name, cfg.Device)
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
}

func TestApplyPreset_Unknown(t *testing.T) {
	in := Config{Device: 1, Width: 640, Height: 480}
	out, ok := ApplyPreset(in, "8k")
	if ok {
		t.Error("expected unknown preset to fail")
	}
	if out != in {
		t.Errorf("config should be unchanged, got %+v", out)
	}
}
