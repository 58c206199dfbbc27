//go:build !linux
// +build !linux

package hal

import "fmt"

// RpioGPIO is a stub on non-Linux hosts: go-rpio maps /dev/mem, which only
// exists on Linux, so the fast-path backend simply isn't available here —
// callers fall back to the gpiocdev/mock backend instead.
type RpioGPIO struct{}

func NewRpioGPIO() (*RpioGPIO, error) {
	return nil, fmt.Errorf("rpio: direct-register GPIO not supported on this platform")
}

func (g *RpioGPIO) SetMode(pin int, mode PinMode) error { return fmt.Errorf("rpio: not supported") }
func (g *RpioGPIO) SetPull(pin int, pull PullMode) error { return fmt.Errorf("rpio: not supported") }
func (g *RpioGPIO) DigitalRead(pin int) (bool, error)    { return false, fmt.Errorf("rpio: not supported") }
func (g *RpioGPIO) DigitalWrite(pin int, value bool) error { return fmt.Errorf("rpio: not supported") }
func (g *RpioGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, value bool)) error {
	return fmt.Errorf("rpio: not supported")
}
func (g *RpioGPIO) ActivePins() map[int]PinMode { return nil }
func (g *RpioGPIO) Close() error                { return nil }
