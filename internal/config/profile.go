package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tinygo-motion/motioncore/internal/hal"
)

// Profile is a board-tier preset that scales the number of active axes
// and the ring pool size to the target's resources. The motion core is a
// single fixed pipeline, so there is nothing to toggle on or off, only
// axis count and queue depth to scale.
type Profile string

const (
	// ProfileMinimal targets a 2-axis machine on the smallest boards (Pi
	// Zero, Zero W, Zero 2 W): X/Y only, a shallow planner ring.
	ProfileMinimal Profile = "minimal"

	// ProfileStandard targets a 3-axis bench mill/router (Pi 1/2/3, and
	// any board DetectProfile does not recognise): X/Y/Z, the stock
	// 32-deep ring.
	ProfileStandard Profile = "standard"

	// ProfileFull targets the full 6-axis envelope (Pi 4/5):
	// X/Y/Z/A/B/C, the stock 32-deep ring.
	ProfileFull Profile = "full"
)

// ProfileConfig holds the axis/motor subset and ring depth for a profile.
type ProfileConfig struct {
	Name        Profile `mapstructure:"name"`
	Description string  `mapstructure:"description"`
	NumAxes     int     `mapstructure:"num_axes"`
	RingDepth   int     `mapstructure:"ring_depth"`
}

// GetDefaultProfiles returns the stock board-tier profiles.
func GetDefaultProfiles() map[Profile]*ProfileConfig {
	return map[Profile]*ProfileConfig{
		ProfileMinimal: {
			Name:        ProfileMinimal,
			Description: "2-axis (X/Y), shallow ring for Pi Zero / BeagleBone class boards",
			NumAxes:     2,
			RingDepth:   12,
		},
		ProfileStandard: {
			Name:        ProfileStandard,
			Description: "3-axis (X/Y/Z) bench mill/router profile, stock ring depth",
			NumAxes:     3,
			RingDepth:   32,
		},
		ProfileFull: {
			Name:        ProfileFull,
			Description: "Full 6-axis (X/Y/Z/A/B/C) envelope, stock ring depth",
			NumAxes:     6,
			RingDepth:   32,
		},
	}
}

// LoadProfile resolves a named profile, applying any user override file
// (profile-<name>.yaml) over the stock defaults.
func LoadProfile(profileName string) (*ProfileConfig, error) {
	profile := Profile(profileName)

	defaults := GetDefaultProfiles()
	defaultConfig, exists := defaults[profile]
	if !exists {
		return nil, fmt.Errorf("unknown profile: %s", profileName)
	}

	v := viper.New()
	v.SetConfigName(fmt.Sprintf("profile-%s", profileName))
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(getConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read profile config: %w", err)
		}
		return defaultConfig, nil
	}

	var cfg ProfileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile config: %w", err)
	}

	mergeProfileConfig(&cfg, defaultConfig)
	return &cfg, nil
}

// DetectProfile recommends a profile from the detected board model.
// Board identification itself lives in hal.DetectBoard, the sole
// authority on board identity in this module.
func DetectProfile() Profile {
	info, err := hal.DetectBoard()
	if err != nil {
		return ProfileStandard
	}

	switch info.Model {
	case hal.BoardRPiZero, hal.BoardRPiZeroW, hal.BoardRPiZero2W:
		return ProfileMinimal
	case hal.BoardRPi1, hal.BoardRPi2, hal.BoardRPi3, hal.BoardRPi3Plus:
		return ProfileStandard
	case hal.BoardRPi4, hal.BoardRPi5:
		return ProfileFull
	default:
		return ProfileStandard
	}
}

// GetProfileForAxisCount returns the narrowest profile that can hold
// numAxes active axes.
func GetProfileForAxisCount(numAxes int) Profile {
	switch {
	case numAxes <= 2:
		return ProfileMinimal
	case numAxes <= 3:
		return ProfileStandard
	default:
		return ProfileFull
	}
}

func mergeProfileConfig(cfg *ProfileConfig, defaults *ProfileConfig) {
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Description == "" {
		cfg.Description = defaults.Description
	}
	if cfg.NumAxes == 0 {
		cfg.NumAxes = defaults.NumAxes
	}
	if cfg.RingDepth == 0 {
		cfg.RingDepth = defaults.RingDepth
	}
}

// ValidateProfile validates a profile configuration.
func ValidateProfile(cfg *ProfileConfig) error {
	if cfg.NumAxes < 1 || cfg.NumAxes > 6 {
		return fmt.Errorf("num_axes must be between 1 and 6, got %d", cfg.NumAxes)
	}
	if cfg.RingDepth < 2 {
		return fmt.Errorf("ring_depth must be at least 2, got %d", cfg.RingDepth)
	}
	return nil
}
