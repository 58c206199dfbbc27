// Package hal is the hardware abstraction boundary between the motion core
// and the stepper driver pins / limit switch inputs it drives and reads.
// Everything above this package (planner, executor, preparer, DDA) is
// hardware-agnostic; everything below it is a concrete GPIO backend.
package hal

import (
	"fmt"
	"sync"
)

// PinMode is the electrical direction of a GPIO line. The motion core never
// needs PWM or analog modes: step/dir/enable lines are digital outputs,
// limit switches are digital inputs.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// PullMode is the input pull resistor configuration.
type PullMode int

const (
	PullNone PullMode = iota
	PullUp
	PullDown
)

// EdgeMode selects which transitions WatchEdge reports.
type EdgeMode int

const (
	EdgeNone EdgeMode = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// GPIOProvider is the digital I/O surface the motion core needs: step and
// direction pulses out, limit-switch edges in.
type GPIOProvider interface {
	// SetMode configures a pin as a digital input or output.
	SetMode(pin int, mode PinMode) error
	// SetPull configures the input pull resistor for a pin.
	SetPull(pin int, pull PullMode) error
	// DigitalRead reads the current level of a pin.
	DigitalRead(pin int) (bool, error)
	// DigitalWrite drives a pin to the given level. Used for step pulses,
	// direction bits, and motor enable lines.
	DigitalWrite(pin int, value bool) error
	// WatchEdge registers a callback to fire on the requested edge
	// transition. A callback registered here can feed
	// system.MotionSystem.OnLimitEdge; no code in this module registers one.
	WatchEdge(pin int, edge EdgeMode, callback func(pin int, value bool)) error
	// ActivePins returns the pins currently configured and their mode.
	ActivePins() map[int]PinMode
	// Close releases all lines held by this provider.
	Close() error
}

// HAL is the complete hardware surface the motion core depends on.
type HAL interface {
	// GPIO returns the digital I/O provider.
	GPIO() GPIOProvider
	// Info returns static information about the board this HAL targets.
	Info() BoardInfo
	// Close releases all hardware resources.
	Close() error
}

var (
	globalHAL HAL
	halMu     sync.RWMutex
)

// SetGlobalHAL installs the process-wide HAL instance. The machine has
// exactly one stepper driver attached at a time, so the HAL is kept as a
// package-level value; apart from it and internal/logger's process-wide
// logger, state lives on system.MotionSystem.
func SetGlobalHAL(hal HAL) {
	halMu.Lock()
	defer halMu.Unlock()
	globalHAL = hal
}

// GetGlobalHAL returns the installed HAL, or an error if none was set.
func GetGlobalHAL() (HAL, error) {
	halMu.RLock()
	defer halMu.RUnlock()
	if globalHAL == nil {
		return nil, fmt.Errorf("hal: not initialized")
	}
	return globalHAL, nil
}
