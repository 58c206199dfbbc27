// Package config loads the motion core's axis, motor and global
// parameters: viper, YAML file plus environment override, typed defaults.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AxisMode is the operating mode of a logical axis.
type AxisMode int

const (
	AxisDisabled AxisMode = iota
	AxisStandard
	AxisInhibited
	AxisRadiusRotary
	AxisSlavedToPlane
)

func (m AxisMode) String() string {
	switch m {
	case AxisDisabled:
		return "disabled"
	case AxisStandard:
		return "standard"
	case AxisInhibited:
		return "inhibited"
	case AxisRadiusRotary:
		return "radius_rotary"
	case AxisSlavedToPlane:
		return "slaved_to_plane"
	default:
		return "unknown"
	}
}

// SwitchMode describes how a travel-limit endpoint switch is wired.
type SwitchMode int

const (
	SwitchDisabled SwitchMode = iota
	SwitchHomingOnly
	SwitchLimitOnly
	SwitchHomingAndLimit
)

// AxisConfig holds the per-axis planner parameters. Up to 6 logical
// axes: X, Y, Z, A, B, C.
type AxisConfig struct {
	Name              string     `mapstructure:"name"`
	Mode              AxisMode   `mapstructure:"mode"`
	MaxVelocity       float64    `mapstructure:"max_velocity"`       // mm/min or deg/min
	MaxFeedRate       float64    `mapstructure:"max_feed_rate"`      // mm/min or deg/min
	MaxJerk           float64    `mapstructure:"max_jerk"`           // units/min^3
	HomingJerk        float64    `mapstructure:"homing_jerk"`        // units/min^3
	JunctionDeviation float64    `mapstructure:"junction_deviation"` // mm, the per-axis cornering delta
	TravelMin         float64    `mapstructure:"travel_min"`
	TravelMax         float64    `mapstructure:"travel_max"`
	SwitchModeMin     SwitchMode `mapstructure:"switch_mode_min"`
	SwitchModeMax     SwitchMode `mapstructure:"switch_mode_max"`
}

// PowerMode describes a motor's idle/energized policy.
type PowerMode int

const (
	PowerAlwaysOn PowerMode = iota
	PowerInCycleOnly
	PowerWhenMoving
	PowerAlwaysOff
)

// MotorConfig holds the per-motor drive parameters. Up to 6 physical
// motors.
type MotorConfig struct {
	AxisMap      int       `mapstructure:"axis_map"` // index into AxisConfig, which logical axis this motor drives
	StepAngle    float64   `mapstructure:"step_angle"` // degrees per full step
	TravelPerRev float64   `mapstructure:"travel_per_rev"`
	Microsteps   int       `mapstructure:"microsteps"`
	Polarity     bool      `mapstructure:"polarity"` // true inverts direction output
	PowerMode    PowerMode `mapstructure:"power_mode"`
}

// StepsPerUnit derives (360 * microsteps) / (step_angle * travel_per_rev).
func (m MotorConfig) StepsPerUnit() float64 {
	if m.StepAngle == 0 || m.TravelPerRev == 0 {
		return 0
	}
	return (360.0 * float64(m.Microsteps)) / (m.StepAngle * m.TravelPerRev)
}

// SystemConfig holds the global motion knobs.
type SystemConfig struct {
	CornerAcceleration         float64 `mapstructure:"corner_acceleration"`
	NominalSegmentMicroseconds float64 `mapstructure:"nominal_segment_microseconds"`
	DDARate                    float64 `mapstructure:"dda_rate"`
	DDASubsteps                float64 `mapstructure:"dda_substeps"`
	IdleTimeoutSeconds         float64 `mapstructure:"idle_timeout_seconds"`
	MinSegmentLength           float64 `mapstructure:"min_segment_length"` // shortest surviving profile section, default 0.08mm
	DebounceLockoutTicks       int     `mapstructure:"debounce_lockout_ticks"`
	LimitTickMilliseconds      int     `mapstructure:"limit_tick_milliseconds"`
	RingDepth                  int     `mapstructure:"ring_depth"` // planner queue depth; board profiles shrink it on small targets
}

// Config is the complete motion core configuration.
type Config struct {
	Axes   []AxisConfig  `mapstructure:"axes"`
	Motors []MotorConfig `mapstructure:"motors"`
	System SystemConfig  `mapstructure:"system"`
	Logger LoggerConfig  `mapstructure:"logger"`
}

// LoggerConfig holds the logging settings consumed by internal/logger.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// MaxJerkFor returns the per-axis jerk for the composite-jerk formula:
// the homing jerk during a homing cycle, the normal max otherwise.
func (a AxisConfig) MaxJerkFor(homing bool) float64 {
	if homing {
		return a.HomingJerk
	}
	return a.MaxJerk
}

// Load reads axis/motor/system configuration from file and environment
// variables, falling back to stock defaults for anything unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("motioncore")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults.
	}

	v.SetEnvPrefix("MOTIONCORE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Axes) == 0 {
		cfg.Axes = DefaultAxes()
	}
	if len(cfg.Motors) == 0 {
		cfg.Motors = DefaultMotors()
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the structural invariants the planner and kinematics
// layer assume: at most 6 axes/motors, motor axis_map in range.
func Validate(cfg *Config) error {
	if len(cfg.Axes) > 6 {
		return fmt.Errorf("config: at most 6 axes, got %d", len(cfg.Axes))
	}
	if len(cfg.Motors) > 6 {
		return fmt.Errorf("config: at most 6 motors, got %d", len(cfg.Motors))
	}
	for i, m := range cfg.Motors {
		if m.AxisMap < 0 || m.AxisMap >= len(cfg.Axes) {
			return fmt.Errorf("config: motor %d axis_map %d out of range (have %d axes)", i, m.AxisMap, len(cfg.Axes))
		}
	}
	if cfg.System.DDARate <= 0 || math.IsNaN(cfg.System.DDARate) {
		return fmt.Errorf("config: dda_rate must be a positive finite number")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("system.corner_acceleration", 2_000_000.0) // mm/min^2
	v.SetDefault("system.nominal_segment_microseconds", 5000.0)
	v.SetDefault("system.dda_rate", 50_000.0)
	v.SetDefault("system.dda_substeps", 5_000_000.0)
	v.SetDefault("system.idle_timeout_seconds", 2.0)
	v.SetDefault("system.min_segment_length", 0.08)
	v.SetDefault("system.debounce_lockout_ticks", 25) // 250ms @ 10ms tick
	v.SetDefault("system.limit_tick_milliseconds", 10)
	v.SetDefault("system.ring_depth", 32)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".motioncore")
}

// DefaultAxes returns a stock 3-axis (X, Y, Z) configuration matching
// TinyG's typical bench-mill defaults, used when no config file supplies
// axes.
func DefaultAxes() []AxisConfig {
	mk := func(name string) AxisConfig {
		return AxisConfig{
			Name:              name,
			Mode:              AxisStandard,
			MaxVelocity:       16000,
			MaxFeedRate:       16000,
			MaxJerk:           5e9,
			HomingJerk:        5e9,
			JunctionDeviation: 0.05,
			TravelMin:         0,
			TravelMax:         300,
			SwitchModeMin:     SwitchHomingOnly,
			SwitchModeMax:     SwitchLimitOnly,
		}
	}
	return []AxisConfig{mk("X"), mk("Y"), mk("Z")}
}

// DefaultMotors returns one motor per default axis, 1.8 deg/step, 8
// microsteps, 5mm/rev lead screw — steps_per_unit = 320.
func DefaultMotors() []MotorConfig {
	mk := func(axis int) MotorConfig {
		return MotorConfig{
			AxisMap:      axis,
			StepAngle:    1.8,
			TravelPerRev: 5.0,
			Microsteps:   8,
			Polarity:     false,
			PowerMode:    PowerInCycleOnly,
		}
	}
	return []MotorConfig{mk(0), mk(1), mk(2)}
}
