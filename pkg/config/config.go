// Package config provides configuration loading and management.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/user/watermark/pkg/pipeline"
)

// Config is the file and environment representation of a run. Flags on
// the command line are applied on top of it.
type Config struct {
	// Watermark
	Text       string  `yaml:"text" env:"WATERMARK_TEXT"`
	Pattern    string  `yaml:"pattern" env:"WATERMARK_PATTERN" validate:"required"`
	TextScale  float64 `yaml:"text_scale" env:"WATERMARK_TEXT_SCALE" validate:"gt=0,lte=1"`
	SpaceScale float64 `yaml:"space_scale" env:"WATERMARK_SPACE_SCALE" validate:"gt=0"`
	Color      string  `yaml:"color" env:"WATERMARK_COLOR" validate:"hexcolor"`
	Opacity    int     `yaml:"opacity" env:"WATERMARK_OPACITY" validate:"gte=0,lte=255"`
	Seed       uint64  `yaml:"seed" env:"WATERMARK_SEED"`
	Font       string  `yaml:"font" env:"WATERMARK_FONT" validate:"omitempty,file"`

	// Output
	Quality int  `yaml:"quality" env:"WATERMARK_QUALITY" validate:"gte=1,lte=100"`
	PDF     bool `yaml:"pdf" env:"WATERMARK_PDF"`

	// Execution
	GPU         string `yaml:"gpu" env:"WATERMARK_GPU" validate:"oneof=auto on off"`
	GPUFallback bool   `yaml:"gpu_fallback" env:"WATERMARK_GPU_FALLBACK"`
	Threads     int    `yaml:"threads" env:"WATERMARK_THREADS" validate:"gte=0"`
	Concurrency int    `yaml:"concurrency" env:"WATERMARK_CONCURRENCY" validate:"gte=0"`
	Recursive   bool   `yaml:"recursive" env:"WATERMARK_RECURSIVE"`

	// Logging and debug
	LogLevel string `yaml:"log_level" env:"WATERMARK_LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	Debug    bool   `yaml:"debug" env:"WATERMARK_DEBUG"`
	DebugDir string `yaml:"debug_dir" env:"WATERMARK_DEBUG_DIR" validate:"required_if=Debug true"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Pattern:    string(pipeline.PatternDiagonal),
		TextScale:  pipeline.DefaultTextScale,
		SpaceScale: pipeline.DefaultSpaceScale,
		Color:      FormatColor(pipeline.DefaultColor),
		Opacity:    pipeline.DefaultOpacity,
		Seed:       pipeline.DefaultSeed,

		Quality: 90,

		GPU: "auto",

		LogLevel: "info",
		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file on top of the
// defaults. Unknown keys are rejected.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Load returns the defaults, overlaid by the YAML file at path when path
// is not empty, overlaid by WATERMARK_* environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field ranges and enums.
func (c Config) Validate() error {
	if _, err := pipeline.ParsePattern(c.Pattern); err != nil {
		return err
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", pipeline.ErrInvalidSpec, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed %q (%s)", fe.Field(), fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", pipeline.ErrInvalidSpec, strings.Join(msgs, "; "))
}

// Spec converts the watermark fields into a spec.
func (c Config) Spec() (pipeline.WatermarkSpec, error) {
	pattern, err := pipeline.ParsePattern(c.Pattern)
	if err != nil {
		return pipeline.WatermarkSpec{}, err
	}
	color, err := ParseColor(c.Color)
	if err != nil {
		return pipeline.WatermarkSpec{}, err
	}
	if c.Opacity < 0 || c.Opacity > 255 {
		return pipeline.WatermarkSpec{}, fmt.Errorf("%w: opacity %d out of range 0-255", pipeline.ErrInvalidSpec, c.Opacity)
	}
	spec := pipeline.WatermarkSpec{
		Text:       c.Text,
		Pattern:    pattern,
		TextScale:  c.TextScale,
		SpaceScale: c.SpaceScale,
		Color:      color,
		Opacity:    uint8(c.Opacity),
		Seed:       c.Seed,
		FontPath:   c.Font,
	}
	spec = spec.Normalized()
	return spec, spec.Validate()
}

// ParseColor parses "#rrggbb" or "#rgb". The leading '#' is optional.
func ParseColor(hex string) (pipeline.RGB, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return pipeline.RGB{}, fmt.Errorf("%w: color %q is not #rrggbb", pipeline.ErrInvalidSpec, hex)
	}

	var out [3]uint8
	for i := range out {
		hi, ok1 := hexValue(s[i*2])
		lo, ok2 := hexValue(s[i*2+1])
		if !ok1 || !ok2 {
			return pipeline.RGB{}, fmt.Errorf("%w: color %q is not #rrggbb", pipeline.ErrInvalidSpec, hex)
		}
		out[i] = hi<<4 | lo
	}
	return pipeline.RGB{R: out[0], G: out[1], B: out[2]}, nil
}

// FormatColor renders c as "#rrggbb".
func FormatColor(c pipeline.RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func hexValue(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
