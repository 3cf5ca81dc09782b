// Package config loads and saves the compositor's configuration snapshot,
// following the teacher's config.go pattern: defaults written on first
// run, then read back with github.com/BurntSushi/toml.
package config

import (
	"bytes"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the process-wide configuration snapshot referenced by spec
// section 3's Session ("configuration snapshot").
type Config struct {
	// Fade behavior, spec section 4.3.
	FadeInStep  float64
	FadeOutStep float64
	FadeDeltaMs int64

	// Opacity defaults, spec section 4.3's priority chain.
	ActiveOpacity           float64
	InactiveOpacity         float64
	InactiveOpacityOverride bool
	FrameOpacity            float64
	WintypeOpacity          map[string]float64

	// Shadows, spec section 4.5/4.7/L.
	ShadowEnabled bool
	ShadowOpacity float64
	ShadowRadius  int
	ShadowRed     float64
	ShadowGreen   float64
	ShadowBlue    float64
	ShadowExclude []string

	// Blur, spec section 4.5.
	BlurBackground      bool
	BlurBackgroundFrame bool
	BlurBackgroundFixed bool
	BlurKernelPasses    int

	// Dim, spec section 4.5.
	InactiveDim  float64
	DimFixed     bool

	// Redirect controller, spec section 4.7.
	UnredirIfPossible      bool
	UnredirIfPossibleDelayMs int64

	// Backend selection, spec section 4.6.
	Backend string

	// Scheduler, spec section 4.9.
	RefreshRateHz   float64
	SWOpacityFading bool
	Benchmark       bool
	BenchmarkPaints int

	// Misc/ambient.
	PidFilePath   string
	EnableDbus    bool
	TrackFocus    bool
	FadeOpenClose bool
}

const fileName = "vellum.toml"

// Default returns the built-in defaults, mirroring the teacher's
// initializeConfigIfNot default literal.
func Default() Config {
	return Config{
		FadeInStep:               0.028,
		FadeOutStep:              0.03,
		FadeDeltaMs:              10,
		ActiveOpacity:            1.0,
		InactiveOpacity:          1.0,
		InactiveOpacityOverride:  false,
		FrameOpacity:             1.0,
		WintypeOpacity:           map[string]float64{},
		ShadowEnabled:            true,
		ShadowOpacity:            0.75,
		ShadowRadius:             12,
		ShadowRed:                0,
		ShadowGreen:              0,
		ShadowBlue:               0,
		BlurBackground:           false,
		BlurBackgroundFrame:      false,
		BlurBackgroundFixed:      false,
		BlurKernelPasses:         1,
		InactiveDim:              0,
		DimFixed:                 false,
		UnredirIfPossible:        false,
		UnredirIfPossibleDelayMs: 0,
		Backend:                  "xrender",
		RefreshRateHz:            60,
		EnableDbus:               false,
		TrackFocus:               true,
		FadeOpenClose:            true,
	}
}

func dir() string {
	home := os.Getenv("HOME")
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "vellum")
}

// InitializeIfNot writes the default config file if none exists yet,
// following the teacher's initializeConfigIfNot.
func InitializeIfNot() error {
	d := dir()
	if _, err := os.Stat(d); os.IsNotExist(err) {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	f := filepath.Join(d, fileName)
	if _, err := os.Stat(f); os.IsNotExist(err) {
		log.Println("config: initializing default vellum.toml")
		return Write(Default())
	}
	return nil
}

// Read loads the configuration file, following the teacher's readConfig.
func Read() (Config, error) {
	f := filepath.Join(dir(), fileName)
	var c Config
	if _, err := toml.DecodeFile(f, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Write saves c to the configuration file, following the teacher's
// writeConfig.
func Write(c Config) error {
	f := filepath.Join(dir(), fileName)
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(&c); err != nil {
		return err
	}
	return os.WriteFile(f, buf.Bytes(), 0644)
}
