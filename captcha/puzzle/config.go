package puzzle

import (
	"image/color"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const (
	defaultChars     = 6
	defaultWidth     = 320
	defaultHeight    = 120
	defaultAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultTextColor = "#171717"
)

// Config describes the appearance of generated puzzles.
type Config struct {
	// The number of characters in each answer.
	Chars int `yaml:"chars"`

	// Image dimensions in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// The characters answers are drawn from. Each character must be a
	// single byte.
	Alphabet string `yaml:"alphabet"`

	// Text colour as #rgb or #rrggbb.
	TextColor string `yaml:"text_color"`

	// The number of random blots drawn over the text.
	Dots int `yaml:"dots"`

	// A sine displacement applied to every column. The frequency is the
	// number of periods across the image width; the amplitude is in pixels.
	WaveFrequency float64 `yaml:"wave_frequency"`
	WaveAmplitude float64 `yaml:"wave_amplitude"`

	// The probability that any given pixel is replaced by noise.
	Noise float64 `yaml:"noise"`

	// The spacing in pixels between vertical (GridX) and horizontal (GridY)
	// grid lines.
	GridX int `yaml:"grid_x"`
	GridY int `yaml:"grid_y"`
}

// DefaultConfig returns the stock puzzle appearance: six characters on a
// 320x120 canvas with every filter enabled.
func DefaultConfig() Config {
	return Config{
		Chars:         defaultChars,
		Width:         defaultWidth,
		Height:        defaultHeight,
		Alphabet:      defaultAlphabet,
		TextColor:     defaultTextColor,
		Dots:          10,
		WaveFrequency: 1.5,
		WaveAmplitude: 4,
		Noise:         0.1,
		GridX:         20,
		GridY:         10,
	}
}

// LoadConfig reads a YAML puzzle configuration from path. Fields missing
// from the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, xerrors.Errorf("read puzzle config: %w", err)
	}

	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, xerrors.Errorf("parse puzzle config %q: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Chars == 0 {
		cfg.Chars = defaultChars
	}
	if cfg.Width == 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height == 0 {
		cfg.Height = defaultHeight
	}
	if cfg.Alphabet == "" {
		cfg.Alphabet = defaultAlphabet
	}
	if cfg.TextColor == "" {
		cfg.TextColor = defaultTextColor
	}

	if cfg.Chars < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid answer length %d", cfg.Chars))
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid image size %dx%d", cfg.Width, cfg.Height))
	}
	for i := 0; i < len(cfg.Alphabet); i++ {
		if cfg.Alphabet[i] <= ' ' || cfg.Alphabet[i] > '~' {
			err = multierror.Append(err, xerrors.Errorf("alphabet must only contain printable ASCII characters"))
			break
		}
	}
	if _, cErr := parseHexColor(cfg.TextColor); cErr != nil {
		err = multierror.Append(err, cErr)
	}
	if cfg.Dots < 0 {
		err = multierror.Append(err, xerrors.Errorf("dot count must not be negative"))
	}
	if cfg.WaveFrequency < 0 || cfg.WaveAmplitude < 0 {
		err = multierror.Append(err, xerrors.Errorf("wave parameters must not be negative"))
	}
	if cfg.Noise < 0 || cfg.Noise > 1 {
		err = multierror.Append(err, xerrors.Errorf("noise probability must be in [0, 1]"))
	}
	if cfg.GridX < 0 || cfg.GridY < 0 {
		err = multierror.Append(err, xerrors.Errorf("grid spacing must not be negative"))
	}
	return err
}

func parseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 || !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, xerrors.Errorf("invalid text colour %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, xerrors.Errorf("invalid text colour %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
