package hal

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RigConfig maps actuator and sensor roles to physical GPIO pins and
// carries rig-wide tuning knobs. It is decoded once at session start
// and threaded through as a value - never process-wide mutable state.
//
// Pin numbers use the board numbering scheme. A zero pin means the role
// is not wired on this rig; the sim backends ignore pins entirely.
type RigConfig struct {
	Pins RigPins `yaml:"pins" validate:"required"`

	// Camera settings for the optional recorder.
	Camera CameraConfig `yaml:"camera"`

	// UniversalWaterVolumeS, when > 0, clamps every Water action to this
	// many seconds of valve-open time so reward volume stays constant
	// regardless of what the task document says.
	UniversalWaterVolumeS float64 `yaml:"universal_water_volume_s" validate:"gte=0"`

	// HighLevelTrigger selects relay boards that switch on logic high.
	HighLevelTrigger bool `yaml:"high_level_trigger"`

	// BuzzerHz is the pure tone frequency for PWM buzzers.
	BuzzerHz int `yaml:"buzzer_hz" validate:"gte=0"`
}

// RigPins assigns GPIO pins to rig roles.
type RigPins struct {
	Water         int `yaml:"water" validate:"gte=0"`
	AirPuff       int `yaml:"air_puff" validate:"gte=0"`
	FakePuff      int `yaml:"fake_puff" validate:"gte=0"`
	FakeWater     int `yaml:"fake_water" validate:"gte=0"`
	Buzzer        int `yaml:"buzzer" validate:"gte=0"`
	Lickport      int `yaml:"lickport" validate:"gte=0"`
	EncoderA      int `yaml:"encoder_a" validate:"gte=0"`
	EncoderB      int `yaml:"encoder_b" validate:"gte=0"`
	VideoTTL      int `yaml:"video_ttl" validate:"gte=0"`
	MicroscopeTTL int `yaml:"microscope_ttl" validate:"gte=0"`
}

// CameraConfig holds recorder parameters.
type CameraConfig struct {
	Width     int `yaml:"width" validate:"gte=0"`
	Height    int `yaml:"height" validate:"gte=0"`
	FrameRate int `yaml:"frame_rate" validate:"gte=0"`
}

// DefaultRigConfig returns the standard bench rig wiring.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		Pins: RigPins{
			Water:         38,
			AirPuff:       32,
			FakePuff:      36,
			FakeWater:     40,
			Buzzer:        33,
			Lickport:      29,
			EncoderA:      16,
			EncoderB:      18,
			VideoTTL:      12,
			MicroscopeTTL: 11,
		},
		Camera:                CameraConfig{Width: 1080, Height: 768, FrameRate: 30},
		UniversalWaterVolumeS: 0.04,
		BuzzerHz:              6000,
	}
}

// LoadRigConfig reads and validates a YAML rig file.
func LoadRigConfig(path string) (RigConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RigConfig{}, fmt.Errorf("read rig config: %w", err)
	}
	return ParseRigConfig(data)
}

// ParseRigConfig decodes and validates rig YAML.
func ParseRigConfig(data []byte) (RigConfig, error) {
	var cfg RigConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return RigConfig{}, fmt.Errorf("decode rig config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return RigConfig{}, fmt.Errorf("validate rig config: %w", err)
	}
	return cfg, nil
}
